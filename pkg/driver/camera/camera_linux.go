package camera

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blackjack/webcam"
	"github.com/pion/dcamera/internal/logging"
	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/driver"
	"github.com/pion/dcamera/pkg/frame"
	"github.com/pion/dcamera/pkg/prop"
	"github.com/pion/dcamera/pkg/status"
)

const (
	maxEmptyFrameCount = 5
	// frameTimeout is in seconds.
	frameTimeout = 5
	// nominalFrameRate is reported for every mode, V4L2 frame intervals
	// are not enumerated.
	nominalFrameRate = 30
)

// pixFmtMJPEG is V4L2_PIX_FMT_MJPEG, the fourcc "MJPG".
const pixFmtMJPEG = webcam.PixelFormat('M' | 'J'<<8 | 'P'<<16 | 'G'<<24)

var (
	errReadTimeout = errors.New("read timeout")
	errEmptyFrame  = errors.New("empty frame")
)

var logger = logging.NewLogger("driver/camera")

// camera captures MJPEG frames through v4l2.
// Reference: https://linuxtv.org/downloads/v4l-dvb-apis/uapi/v4l/videodev.html#videodev
type camera struct {
	path string

	mutex  sync.Mutex
	cam    *webcam.Webcam
	closed chan struct{}
}

// Discover registers every v4l2 device node of the host with m.
func Discover(m *driver.Manager) {
	discovered := make(map[string]struct{})
	discover(m, discovered, "/dev/v4l/by-path/*")
	discover(m, discovered, "/dev/video*")
}

// discover registers every device node matched by pattern that is not in
// discovered yet.
func discover(m *driver.Manager, discovered map[string]struct{}, pattern string) {
	devices, err := filepath.Glob(pattern)
	if err != nil {
		// No v4l device.
		return
	}
	for _, device := range devices {
		label := filepath.Base(device)
		reallink, err := os.Readlink(device)
		if err != nil {
			reallink = label
		} else {
			reallink = filepath.Base(reallink)
		}
		if _, ok := discovered[reallink]; ok {
			continue
		}
		discovered[reallink] = struct{}{}

		_, err = m.Register(newCamera(device), driver.Info{
			ID:         reallink,
			Label:      label + LabelSeparator + reallink,
			DeviceType: driver.Camera,
			Priority:   driver.PriorityNormal,
		})
		if err != nil {
			logger.Warnf("register %s: %v", device, err)
		}
	}
}

func newCamera(path string) *camera {
	return &camera{path: path}
}

func (c *camera) Open() error {
	cam, err := webcam.Open(c.path)
	if err != nil {
		return status.Errorf(status.BadOperate, "open %s: %v", c.path, err)
	}

	c.mutex.Lock()
	c.cam = cam
	c.closed = make(chan struct{})
	c.mutex.Unlock()
	return nil
}

func (c *camera) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.cam == nil {
		return nil
	}

	// The reader holds the mutex while it touches the mmap buffers, so
	// they are not freed under it.
	close(c.closed)
	_ = c.cam.StopStreaming()
	err := c.cam.Close()
	c.cam = nil
	return err
}

// VideoRecord streams MJPEG pictures of p's size. Every picture is copied
// out of the mmap buffer before it is returned.
func (c *camera) VideoRecord(p prop.Video) (driver.Reader, error) {
	if p.Codec != frame.CodecMJPEG {
		return nil, status.Errorf(status.InvalidArgument, "camera: unsupported codec %q", p.Codec)
	}

	c.mutex.Lock()
	cam, closed := c.cam, c.closed
	c.mutex.Unlock()
	if cam == nil {
		return nil, status.Errorf(status.WrongState, "camera %s is not opened", c.path)
	}

	if _, _, _, err := cam.SetImageFormat(pixFmtMJPEG, uint32(p.Width), uint32(p.Height)); err != nil {
		return nil, status.Errorf(status.BadOperate, "set format %s: %v", p, err)
	}
	if err := cam.StartStreaming(); err != nil {
		return nil, status.Errorf(status.BadOperate, "start streaming: %v", err)
	}

	start := time.Now()
	r := driver.ReaderFunc(func() (*buffer.DataBuffer, error) {
		c.mutex.Lock()
		defer c.mutex.Unlock()

		for i := 0; i < maxEmptyFrameCount; i++ {
			select {
			case <-closed:
				return nil, io.EOF
			default:
			}

			err := cam.WaitForFrame(frameTimeout)
			switch err.(type) {
			case nil:
			case *webcam.Timeout:
				return nil, errReadTimeout
			default:
				// Camera has been stopped.
				return nil, err
			}

			b, err := cam.ReadFrame()
			if err != nil {
				return nil, err
			}
			if len(b) == 0 {
				continue
			}

			out := buffer.New(len(b))
			copy(out.Data(), b)
			out.SetInt64(buffer.KeyTimeUs, time.Since(start).Microseconds())
			out.SetInt64(buffer.KeyWidth, int64(p.Width))
			out.SetInt64(buffer.KeyHeight, int64(p.Height))
			out.SetString(buffer.KeyFormat, string(frame.FormatJPEG))
			return out, nil
		}
		return nil, errEmptyFrame
	})

	return r, nil
}

// Properties lists the MJPEG frame sizes of the device.
func (c *camera) Properties() []prop.Video {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.cam == nil {
		return nil
	}

	var properties []prop.Video
	for format := range c.cam.GetSupportedFormats() {
		if format != pixFmtMJPEG {
			continue
		}
		for _, frameSize := range c.cam.GetSupportedFrameSizes(format) {
			properties = append(properties, prop.Video{
				Width:       int(frameSize.MaxWidth),
				Height:      int(frameSize.MaxHeight),
				FrameRate:   nominalFrameRate,
				FrameFormat: frame.FormatJPEG,
				Codec:       frame.CodecMJPEG,
			})
		}
	}
	return properties
}
