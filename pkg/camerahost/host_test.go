package camerahost

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/channel"
	"github.com/pion/dcamera/pkg/command"
	"github.com/pion/dcamera/pkg/driver"
	"github.com/pion/dcamera/pkg/driver/videotest"
	"github.com/pion/dcamera/pkg/frame"
	"github.com/pion/dcamera/pkg/hal"
	"github.com/pion/dcamera/pkg/media"
	"github.com/pion/dcamera/pkg/prop"
	"github.com/pion/dcamera/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const waitFor = 3 * time.Second

var key = hal.SessionKey{DeviceID: "D1", HardwareID: "cam0"}

// sink is the remote end of a host connection.
type sink struct {
	t          *testing.T
	ctrl, data channel.Channel

	mu      sync.Mutex
	records []command.Record
	frames  map[int][]*buffer.DataBuffer
}

func connect(t *testing.T, h *Host) *sink {
	t.Helper()
	ctrl, data, err := h.Connect(context.Background(), key)
	require.NoError(t, err)

	s := &sink{t: t, ctrl: ctrl, data: data, frames: map[int][]*buffer.DataBuffer{}}
	r := media.NewReceiver(s.onFrame)
	require.NoError(t, ctrl.Open(context.Background(), s.onControl))
	require.NoError(t, data.Open(context.Background(), r.Handle))
	return s
}

func (s *sink) onControl(data []byte) {
	rec, err := command.Unmarshal(data)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
}

func (s *sink) onFrame(id int, b *buffer.DataBuffer) {
	s.mu.Lock()
	s.frames[id] = append(s.frames[id], b)
	s.mu.Unlock()
}

func (s *sink) send(rec command.Record) {
	s.t.Helper()
	data, err := command.Marshal(rec)
	require.NoError(s.t, err)
	require.NoError(s.t, s.ctrl.Send(context.Background(), data))
}

func (s *sink) frameCount(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames[id])
}

func (s *sink) lastFrame(id int) *buffer.DataBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.frames[id]
	return f[len(f)-1]
}

func (s *sink) find(cmd command.Command) (command.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Command == cmd {
			return s.records[i], true
		}
	}
	return command.Record{}, false
}

func (s *sink) close() {
	_ = s.ctrl.Close()
	_ = s.data.Close()
}

func newHost(t *testing.T) *Host {
	t.Helper()
	cam := videotest.New(prop.Video{Width: 32, Height: 16, FrameRate: 100, FrameFormat: frame.FormatRGBA})
	d, err := driver.NewManager().Register(cam, driver.Info{ID: "cam0", DeviceType: driver.VirtualCamera})
	require.NoError(t, err)
	h, err := New("cam0", d)
	require.NoError(t, err)
	return h
}

func TestHostCapture(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHost(t)
	s := connect(t, h)

	s.send(command.NewOpenChannel("cam0", "sink-dev"))
	assert.Eventually(t, func() bool {
		rec, ok := s.find(command.StateNotify)
		return ok && rec.Value.(command.Event).EventResult == hal.ResultChannelConnected
	}, waitFor, time.Millisecond)

	s.send(command.NewChannelNeg("cam0", command.ChannelInfo{
		SourceDevID: "sink-dev",
		Detail:      []command.ChannelDetail{{DataSessionFlag: "dataContinue"}},
	}))
	s.send(command.NewCapture("cam0", []hal.CaptureInfo{
		{StreamIDs: []int{1}, Width: 16, Height: 8, FrameRate: 50},
		{StreamIDs: []int{2}, Width: 32, Height: 16, FrameRate: 100},
	}))
	assert.Eventually(t, func() bool {
		return s.frameCount(1) >= 3 && s.frameCount(2) >= 3
	}, waitFor, time.Millisecond)
	assert.True(t, h.Capturing())

	small := s.lastFrame(1)
	assert.Equal(t, 16*8*4, small.Size())
	w, _ := small.FindInt64(buffer.KeyWidth)
	assert.EqualValues(t, 16, w)
	assert.Equal(t, 32*16*4, s.lastFrame(2).Size())

	sinkID, details := h.Negotiation()
	assert.Equal(t, "sink-dev", sinkID)
	assert.Len(t, details, 1)

	s.send(command.NewUpdateMetadata("cam0", []hal.Setting{{Type: hal.SettingUpdate, Value: "ae=on"}}))
	assert.Eventually(t, func() bool {
		_, ok := s.find(command.MetadataResult)
		return ok
	}, waitFor, time.Millisecond)
	assert.Equal(t, []hal.Setting{{Type: hal.SettingUpdate, Value: "ae=on"}}, h.Settings())

	s.send(command.NewStopCapture("cam0", []int{1}))
	time.Sleep(50 * time.Millisecond)
	assert.True(t, h.Capturing())

	s.send(command.NewStopCapture("cam0", nil))
	assert.Eventually(t, func() bool { return !h.Capturing() }, waitFor, time.Millisecond)

	s.send(command.NewCloseChannel("cam0"))
	assert.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.conn == nil
	}, waitFor, time.Millisecond)
	s.close()

	// A new sink can attach once the previous one is gone.
	s = connect(t, h)
	s.close()
	require.NoError(t, h.Close())
}

func TestHostConnectErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHost(t)
	_, _, err := h.Connect(context.Background(), hal.SessionKey{DeviceID: "D1", HardwareID: "cam9"})
	assert.ErrorIs(t, err, status.ErrNotFound)

	s := connect(t, h)
	_, _, err = h.Connect(context.Background(), key)
	assert.ErrorIs(t, err, status.ErrOpenConflict)

	s.close()
	require.NoError(t, h.Close())

	_, err = New("", nil)
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
}

func TestHostCaptureFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHost(t)
	s := connect(t, h)
	s.send(command.NewOpenChannel("cam0", "sink-dev"))
	s.send(command.NewCapture("cam0", []hal.CaptureInfo{{Width: 16, Height: 8}}))

	assert.Eventually(t, func() bool {
		rec, ok := s.find(command.StateNotify)
		return ok && rec.Value.(command.Event).EventResult == hal.ResultCaptureFailed
	}, waitFor, time.Millisecond)
	rec, _ := s.find(command.StateNotify)
	assert.Equal(t, int32(status.InvalidArgument), rec.Value.(command.Event).Code)
	assert.False(t, h.Capturing())

	s.close()
	require.NoError(t, h.Close())
}
