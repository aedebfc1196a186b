package media

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/channel"
	"github.com/pion/dcamera/pkg/status"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordChannel struct {
	packets [][]byte
}

func (c *recordChannel) Open(context.Context, channel.ReceiveFunc) error { return nil }

func (c *recordChannel) Send(_ context.Context, data []byte) error {
	c.packets = append(c.packets, data)
	return nil
}

func (c *recordChannel) Close() error { return nil }

func testFrame(size int, timeUs int64) *buffer.DataBuffer {
	b := buffer.New(size)
	for i := range b.Data() {
		b.Data()[i] = byte(i)
	}
	b.SetInt64(buffer.KeyTimeUs, timeUs)
	b.SetInt64(buffer.KeyWidth, 64)
	b.SetInt64(buffer.KeyHeight, 32)
	return b
}

type frames struct {
	mu  sync.Mutex
	ids []int
	got []*buffer.DataBuffer
}

func (f *frames) add(id int, b *buffer.DataBuffer) {
	f.mu.Lock()
	f.ids = append(f.ids, id)
	f.got = append(f.got, b)
	f.mu.Unlock()
}

func (f *frames) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func TestPayloader(t *testing.T) {
	chunks := framePayloader{}.Payload(5, []byte("abcdefghij"))
	require.Len(t, chunks, 3)
	assert.Equal(t, flagStart, chunks[0][0])
	assert.Equal(t, byte(0), chunks[1][0])
	assert.Equal(t, flagEnd, chunks[2][0])
	assert.Equal(t, "ij", string(chunks[2][1:]))

	single := framePayloader{}.Payload(100, []byte("x"))
	require.Len(t, single, 1)
	assert.Equal(t, flagStart|flagEnd, single[0][0])

	assert.Nil(t, framePayloader{}.Payload(1, []byte("x")))
}

func TestSendReceive(t *testing.T) {
	ch := &recordChannel{}
	s := NewSender(ch)

	src := testFrame(5000, 1_000_000)
	require.NoError(t, s.Send(context.Background(), 7, src))
	require.Greater(t, len(ch.packets), 4)
	for _, p := range ch.packets {
		assert.LessOrEqual(t, len(p), DefaultMTU)
	}

	var out frames
	r := NewReceiver(out.add)
	for _, p := range ch.packets {
		require.NoError(t, r.Receive(p))
	}

	require.Equal(t, 1, out.len())
	assert.Equal(t, 7, out.ids[0])
	assert.True(t, bytes.Equal(src.Data(), out.got[0].Data()))
	ts, _ := out.got[0].FindInt64(buffer.KeyTimeUs)
	assert.Equal(t, int64(1_000_000), ts)
	w, _ := out.got[0].FindInt64(buffer.KeyWidth)
	assert.Equal(t, int64(64), w)
	id, _ := out.got[0].FindInt64(buffer.KeyStreamID)
	assert.Equal(t, int64(7), id)
}

func TestTimestampsAdvance(t *testing.T) {
	ch := &recordChannel{}
	s := NewSender(ch)

	require.NoError(t, s.Send(context.Background(), 1, testFrame(10, 0)))
	require.NoError(t, s.Send(context.Background(), 1, testFrame(10, 100_000)))
	require.Len(t, ch.packets, 2)

	var first, second rtp.Packet
	require.NoError(t, first.Unmarshal(ch.packets[0]))
	require.NoError(t, second.Unmarshal(ch.packets[1]))
	assert.Equal(t, uint32(9000), second.Timestamp-first.Timestamp)
	assert.Equal(t, first.SequenceNumber+1, second.SequenceNumber)
	assert.True(t, first.Marker)
}

func TestLostPacketDropsFrame(t *testing.T) {
	ch := &recordChannel{}
	s := NewSender(ch)
	require.NoError(t, s.Send(context.Background(), 1, testFrame(3000, 1)))
	lossy := len(ch.packets)
	require.NoError(t, s.Send(context.Background(), 1, testFrame(3000, 2)))

	var out frames
	r := NewReceiver(out.add)
	for i, p := range ch.packets {
		if i == 1 {
			continue
		}
		require.NoError(t, r.Receive(p))
	}

	require.Equal(t, 1, out.len())
	ts, _ := out.got[0].FindInt64(buffer.KeyTimeUs)
	assert.Equal(t, int64(2), ts)
	assert.Equal(t, 1, r.Dropped())
	assert.Greater(t, lossy, 2)
}

func TestSendErrors(t *testing.T) {
	s := NewSender(&recordChannel{})
	assert.ErrorIs(t, s.Send(context.Background(), -1, testFrame(4, 0)), status.ErrInvalidArgument)
	assert.ErrorIs(t, s.Send(context.Background(), 1, buffer.New(0)), status.ErrInvalidArgument)

	small := NewSender(&recordChannel{}, WithMTU(20))
	assert.ErrorIs(t, small.Send(context.Background(), 1, testFrame(4, 0)), status.ErrInvalidArgument)

	r := NewReceiver(nil)
	assert.ErrorIs(t, r.Receive([]byte{1, 2}), status.ErrInvalidArgument)
}

func TestOverPipe(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	a, b := channel.NewPipe()
	var out frames
	r := NewReceiver(out.add)
	require.NoError(t, a.Open(ctx, nil))
	require.NoError(t, b.Open(ctx, r.Handle))

	s := NewSender(a, WithPayloadType(100))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Send(ctx, 2, testFrame(2500, int64(i)*33_000)))
	}
	assert.Eventually(t, func() bool { return out.len() == 5 }, time.Second, time.Millisecond)

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
}
