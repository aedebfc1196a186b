// Package mjpeg provides a reference codec engine that turns RGBA frames into
// independent JPEG pictures and back. Work is done on a dedicated goroutine
// and output is delivered from there, like a hardware codec would.
package mjpeg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/pion/dcamera/internal/logging"
	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/codec"
	"github.com/pion/dcamera/pkg/frame"
	"github.com/pion/dcamera/pkg/prop"
	"golang.org/x/image/draw"
)

const (
	// DefaultQuality is used when Params.Quality is zero.
	DefaultQuality = 80
	jobQueueSize   = 16
)

var (
	errClosed        = errors.New("mjpeg: engine is closed")
	errNotConfigured = errors.New("mjpeg: engine is not configured")
)

var logger = logging.NewLogger("codec/mjpeg")

func init() {
	codec.RegisterEncoder(frame.CodecMJPEG, func() (codec.Engine, error) {
		return NewEncoder(Params{})
	})
	codec.RegisterDecoder(frame.CodecMJPEG, func() (codec.Engine, error) {
		return NewDecoder()
	})
}

// Params tunes the encoder.
type Params struct {
	Quality int
}

type engine struct {
	encode  bool
	quality int

	mu       sync.Mutex
	in, out  prop.Video
	onOutput codec.OutputFunc
	jobs     chan *buffer.DataBuffer
	done     chan struct{}
	closed   bool
	pending  sync.WaitGroup
}

// NewEncoder creates an RGBA to JPEG engine.
func NewEncoder(p Params) (codec.Engine, error) {
	q := p.Quality
	if q == 0 {
		q = DefaultQuality
	}
	if q < 1 || q > 100 {
		return nil, fmt.Errorf("mjpeg: quality %d out of range [1, 100]", q)
	}
	return &engine{encode: true, quality: q}, nil
}

// NewDecoder creates a JPEG to RGBA engine.
func NewDecoder() (codec.Engine, error) {
	return &engine{}, nil
}

func (e *engine) Configure(in, out prop.Video, onOutput codec.OutputFunc) error {
	if onOutput == nil {
		return errors.New("mjpeg: nil output callback")
	}
	if e.encode {
		if in.Codec.Compressed() || (in.FrameFormat != "" && in.FrameFormat != frame.FormatRGBA) {
			return fmt.Errorf("mjpeg: encoder needs raw RGBA input, got %s", in)
		}
	} else if in.Codec != frame.CodecMJPEG {
		return fmt.Errorf("mjpeg: decoder needs mjpeg input, got %s", in)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errClosed
	}
	if e.jobs != nil {
		return errors.New("mjpeg: engine is already configured")
	}

	e.in, e.out, e.onOutput = in, out, onOutput
	e.jobs = make(chan *buffer.DataBuffer, jobQueueSize)
	e.done = make(chan struct{})
	go e.run()
	return nil
}

func (e *engine) Feed(buf *buffer.DataBuffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errClosed
	}
	if e.jobs == nil {
		return errNotConfigured
	}

	e.pending.Add(1)
	e.jobs <- buf
	return nil
}

func (e *engine) Drain() error {
	e.mu.Lock()
	configured := e.jobs != nil
	e.mu.Unlock()
	if !configured {
		return errNotConfigured
	}

	e.pending.Wait()
	return nil
}

func (e *engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	jobs, done := e.jobs, e.done
	e.mu.Unlock()

	if jobs != nil {
		close(jobs)
		<-done
	}
	return nil
}

func (e *engine) run() {
	defer close(e.done)

	for in := range e.jobs {
		var out *buffer.DataBuffer
		var err error
		if e.encode {
			out, err = e.encodeFrame(in)
		} else {
			out, err = e.decodeFrame(in)
		}
		if err != nil {
			logger.Warnf("failed to process frame: %v", err)
		}
		e.onOutput(out, err)
		e.pending.Done()
	}
}

func (e *engine) encodeFrame(in *buffer.DataBuffer) (*buffer.DataBuffer, error) {
	w, h := e.in.Width, e.in.Height
	size, err := frame.FrameSize(frame.FormatRGBA, w, h)
	if err != nil {
		return nil, err
	}
	pix := in.Data()
	if len(pix) < size {
		return nil, fmt.Errorf("mjpeg: frame has %d bytes, %dx%d RGBA needs %d", len(pix), w, h, size)
	}

	img := &image.RGBA{Pix: pix[:size], Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}
	var b bytes.Buffer
	if err := jpeg.Encode(&b, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, err
	}

	out := buffer.Wrap(b.Bytes())
	out.CopyMeta(in)
	out.SetString(buffer.KeyFormat, string(frame.FormatJPEG))
	return out, nil
}

func (e *engine) decodeFrame(in *buffer.DataBuffer) (*buffer.DataBuffer, error) {
	img, err := jpeg.Decode(bytes.NewReader(in.Data()))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Rect, img, bounds.Min, draw.Src)

	out := buffer.Wrap(rgba.Pix)
	out.CopyMeta(in)
	out.SetString(buffer.KeyFormat, string(frame.FormatRGBA))
	out.SetInt64(buffer.KeyWidth, int64(bounds.Dx()))
	out.SetInt64(buffer.KeyHeight, int64(bounds.Dy()))
	return out, nil
}
