package mjpeg

import (
	"testing"

	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/codec"
	"github.com/pion/dcamera/pkg/codec/internal/codectest"
	"github.com/pion/dcamera/pkg/frame"
	"github.com/pion/dcamera/pkg/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var (
	rawProp  = prop.Video{Width: 16, Height: 8, FrameRate: 30, FrameFormat: frame.FormatRGBA, Codec: frame.CodecRaw}
	jpegProp = prop.Video{Width: 16, Height: 8, FrameRate: 30, FrameFormat: frame.FormatRGBA, Codec: frame.CodecMJPEG}
)

func rgbaFrame() *buffer.DataBuffer {
	b := buffer.New(16 * 8 * 4)
	pix := b.Data()
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = 200, 100, 50, 255
	}
	return b
}

func newEncoder() (codec.Engine, error) { return NewEncoder(Params{}) }

func TestShouldImplementEngine(t *testing.T) {
	var _ codec.Engine = &engine{}
}

func TestEncoderCloseTwice(t *testing.T) {
	defer goleak.VerifyNone(t)
	codectest.EngineCloseTwiceTest(t, newEncoder, rawProp, jpegProp)
}

func TestEncoderFeedAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	codectest.EngineFeedAfterCloseTest(t, newEncoder, rawProp, jpegProp, rgbaFrame())
}

func TestEncodeDecode(t *testing.T) {
	defer goleak.VerifyNone(t)

	encoded := codectest.EngineDrainTest(t, newEncoder, rawProp, jpegProp, rgbaFrame(), 5)
	for _, e := range encoded {
		f, _ := e.FindString(buffer.KeyFormat)
		assert.Equal(t, string(frame.FormatJPEG), f)
	}

	decoded := codectest.EngineDrainTest(t, NewDecoder, jpegProp, rawProp, encoded[0], 3)
	w, ok := decoded[0].FindInt64(buffer.KeyWidth)
	require.True(t, ok)
	assert.Equal(t, int64(16), w)
	assert.Len(t, decoded[0].Data(), 16*8*4)

	// JPEG is lossy, the flat color should survive within a small error.
	px := decoded[0].Data()[:4]
	assert.InDelta(t, 200, int(px[0]), 8)
	assert.InDelta(t, 100, int(px[1]), 8)
	assert.InDelta(t, 50, int(px[2]), 8)
}

func TestRegistered(t *testing.T) {
	enc, err := codec.BuildEncoder(frame.CodecMJPEG)
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	dec, err := codec.BuildDecoder(frame.CodecMJPEG)
	require.NoError(t, err)
	require.NoError(t, dec.Close())

	_, err = codec.BuildEncoder(frame.CodecH265)
	assert.Error(t, err)
}

func TestConfigureRejectsWrongInput(t *testing.T) {
	enc, err := NewEncoder(Params{})
	require.NoError(t, err)
	assert.Error(t, enc.Configure(jpegProp, jpegProp, func(*buffer.DataBuffer, error) {}))

	dec, err := NewDecoder()
	require.NoError(t, err)
	assert.Error(t, dec.Configure(rawProp, rawProp, func(*buffer.DataBuffer, error) {}))

	_, err = NewEncoder(Params{Quality: 101})
	assert.Error(t, err)
}

func TestShortFrameReportsError(t *testing.T) {
	defer goleak.VerifyNone(t)

	enc, err := NewEncoder(Params{})
	require.NoError(t, err)
	defer enc.Close()

	var gotErr error
	require.NoError(t, enc.Configure(rawProp, jpegProp, func(_ *buffer.DataBuffer, err error) { gotErr = err }))
	require.NoError(t, enc.Feed(buffer.New(10)))
	require.NoError(t, enc.Drain())
	assert.Error(t, gotErr)
}
