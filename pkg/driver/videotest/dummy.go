// Package videotest provides dummy video driver for testing.
package videotest

import (
	"context"
	"io"
	"time"

	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/driver"
	"github.com/pion/dcamera/pkg/frame"
	"github.com/pion/dcamera/pkg/prop"
	"github.com/pion/dcamera/pkg/status"
)

func init() {
	_, _ = driver.GetManager().Register(
		New(),
		driver.Info{Label: "VideoTest", DeviceType: driver.VirtualCamera, Priority: driver.PriorityLow},
	)
}

// DefaultProperties are the modes a Camera created without modes supports.
var DefaultProperties = []prop.Video{
	{Width: 1280, Height: 720, FrameRate: 30, FrameFormat: frame.FormatRGBA, Codec: frame.CodecRaw},
	{Width: 640, Height: 480, FrameRate: 30, FrameFormat: frame.FormatRGBA, Codec: frame.CodecRaw},
	{Width: 320, Height: 240, FrameRate: 30, FrameFormat: frame.FormatRGBA, Codec: frame.CodecRaw},
}

// Camera renders moving color bars.
type Camera struct {
	props  []prop.Video
	closed <-chan struct{}
	cancel func()
	tick   *time.Ticker
}

// New returns a camera supporting props, or DefaultProperties when none
// are given.
func New(props ...prop.Video) *Camera {
	if len(props) == 0 {
		props = DefaultProperties
	}
	return &Camera{props: append([]prop.Video(nil), props...)}
}

func (d *Camera) Open() error {
	ctx, cancel := context.WithCancel(context.Background())
	d.closed = ctx.Done()
	d.cancel = cancel
	return nil
}

func (d *Camera) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.tick != nil {
		d.tick.Stop()
	}
	return nil
}

func (d *Camera) Properties() []prop.Video {
	return append([]prop.Video(nil), d.props...)
}

// VideoRecord produces RGBA frames of p's size at p's frame rate. Read
// blocks until the next frame is due.
func (d *Camera) VideoRecord(p prop.Video) (driver.Reader, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, status.Errorf(status.InvalidArgument, "videotest: invalid size %dx%d", p.Width, p.Height)
	}
	if p.FrameRate <= 0 {
		p.FrameRate = 30
	}

	colors := [][3]byte{
		{191, 191, 191},
		{191, 191, 0},
		{0, 191, 191},
		{0, 191, 0},
		{191, 0, 191},
		{191, 0, 0},
		{0, 0, 191},
	}

	stride := p.Width * 4
	base := make([]byte, stride*p.Height)
	hColorBarEnd := p.Height * 3 / 4
	for y := 0; y < p.Height; y++ {
		row := base[y*stride : (y+1)*stride]
		for x := 0; x < p.Width; x++ {
			px := row[x*4 : x*4+4]
			if y < hColorBarEnd {
				// Color bar
				c := colors[x*7/p.Width]
				px[0], px[1], px[2] = c[0], c[1], c[2]
			} else {
				// Gray gradation
				g := uint8(x * 255 / p.Width)
				px[0], px[1], px[2] = g, g, g
			}
			px[3] = 0xff
		}
	}

	tick := time.NewTicker(time.Duration(float32(time.Second) / p.FrameRate))
	d.tick = tick
	closed := d.closed
	start := time.Now()
	var n int

	r := driver.ReaderFunc(func() (*buffer.DataBuffer, error) {
		select {
		case <-closed:
			return nil, io.EOF
		default:
		}

		var now time.Time
		select {
		case <-closed:
			return nil, io.EOF
		case now = <-tick.C:
		}

		b := buffer.New(len(base))
		// The bars scroll one column per frame.
		shift := (n % p.Width) * 4
		for y := 0; y < p.Height; y++ {
			src := base[y*stride : (y+1)*stride]
			dst := b.Data()[y*stride : (y+1)*stride]
			copy(dst, src[shift:])
			copy(dst[stride-shift:], src[:shift])
		}
		n++

		b.SetInt64(buffer.KeyTimeUs, now.Sub(start).Microseconds())
		b.SetInt64(buffer.KeyWidth, int64(p.Width))
		b.SetInt64(buffer.KeyHeight, int64(p.Height))
		b.SetString(buffer.KeyFormat, string(frame.FormatRGBA))
		return b, nil
	})

	return r, nil
}
