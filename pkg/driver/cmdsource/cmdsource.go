// Package cmdsource provides a camera backed by an external command that
// writes raw frames to its standard output, such as
//
//	ffmpeg -f lavfi -i testsrc -f rawvideo -pix_fmt rgba -
package cmdsource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/dcamera/internal/logging"
	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/driver"
	"github.com/pion/dcamera/pkg/frame"
	"github.com/pion/dcamera/pkg/prop"
	"github.com/pion/dcamera/pkg/status"
)

var (
	errReadTimeout    = errors.New("read timeout")
	errInvalidCommand = errors.New("invalid command")
)

var logger = logging.NewLogger("driver/cmdsource")

// DefaultReadTimeout bounds the wait for a single frame.
const DefaultReadTimeout = 10 * time.Second

// Source runs args each time a recording starts. Every property of the
// requested mode is exported to the command as DCAMERA_<Field>.
type Source struct {
	args        []string
	props       []prop.Video
	readTimeout time.Duration

	mu  sync.Mutex
	cmd *exec.Cmd
}

// New returns a source. readTimeout of zero selects DefaultReadTimeout.
func New(args []string, props []prop.Video, readTimeout time.Duration) (*Source, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, errInvalidCommand
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Source{
		args:        append([]string(nil), args...),
		props:       append([]prop.Video(nil), props...),
		readTimeout: readTimeout,
	}, nil
}

// Register adds a command camera to m.
func Register(m *driver.Manager, label string, args []string, props []prop.Video, readTimeout time.Duration) (driver.Driver, error) {
	s, err := New(args, props, readTimeout)
	if err != nil {
		return nil, err
	}
	return m.Register(s, driver.Info{
		Label:      label,
		DeviceType: driver.VirtualCamera,
		Priority:   driver.PriorityNormal,
	})
}

func (c *Source) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmd = exec.Command(c.args[0], c.args[1:]...)
	return nil
}

func (c *Source) Close() error {
	c.mu.Lock()
	cmd := c.cmd
	c.cmd = nil
	c.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = cmd.Process.Signal(os.Interrupt)
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
		// The command was interrupted on purpose, its exit status is noise.
		return nil
	case <-time.After(3 * time.Second):
		err := cmd.Process.Kill()
		<-done
		return err
	}
}

func (c *Source) Properties() []prop.Video {
	return append([]prop.Video(nil), c.props...)
}

// VideoRecord starts the command and reads one frame of p's size per Read.
func (c *Source) VideoRecord(p prop.Video) (driver.Reader, error) {
	frameSize, err := frame.FrameSize(p.FrameFormat, p.Width, p.Height)
	if err != nil {
		return nil, status.Errorf(status.InvalidArgument, "cmdsource: %v", err)
	}

	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil {
		return nil, status.Errorf(status.WrongState, "cmdsource: not opened")
	}

	stdErr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	stdOut, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Env = append(os.Environ(), envVars(p)...)
	if err := cmd.Start(); err != nil {
		return nil, status.Errorf(status.BadOperate, "cmdsource: start %s: %v", c.args[0], err)
	}

	go func() {
		prefix := fmt.Sprintf("(%s stderr): ", c.args[0])
		sc := bufio.NewScanner(stdErr)
		for sc.Scan() {
			logger.Debug(prefix + sc.Text())
		}
	}()

	start := time.Now()
	r := driver.ReaderFunc(func() (*buffer.DataBuffer, error) {
		b := buffer.New(frameSize)

		var timedOut atomic.Bool
		timer := time.AfterFunc(c.readTimeout, func() {
			timedOut.Store(true)
			_ = cmd.Process.Kill()
		})
		_, err := io.ReadFull(stdOut, b.Data())
		stopped := timer.Stop()

		switch {
		case err == nil:
		case !stopped && timedOut.Load():
			return nil, errReadTimeout
		case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, os.ErrClosed):
			return nil, io.EOF
		default:
			return nil, err
		}

		b.SetInt64(buffer.KeyTimeUs, time.Since(start).Microseconds())
		b.SetInt64(buffer.KeyWidth, int64(p.Width))
		b.SetInt64(buffer.KeyHeight, int64(p.Height))
		b.SetString(buffer.KeyFormat, string(p.FrameFormat))
		return b, nil
	})
	return r, nil
}

func envVars(p prop.Video) []string {
	values := reflect.ValueOf(p)
	types := values.Type()
	vars := make([]string, 0, values.NumField())
	for i := 0; i < values.NumField(); i++ {
		vars = append(vars, fmt.Sprintf("DCAMERA_%s=%v", types.Field(i).Name, values.Field(i)))
	}
	logger.Debugf("command environment: %v", vars)
	return vars
}
