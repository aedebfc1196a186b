package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/channel"
	"github.com/pion/dcamera/pkg/command"
	"github.com/pion/dcamera/pkg/hal"
	"github.com/pion/dcamera/pkg/media"
	"github.com/pion/dcamera/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const waitFor = 2 * time.Second

type fakeProvider struct {
	mu        sync.Mutex
	enabled   bool
	enableErr error
	cb        hal.Callback
	events    []hal.HalEvent
	settings  [][]hal.Setting
	delivered map[int]int
	lastSize  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{delivered: map[int]int{}}
}

func (p *fakeProvider) EnableDevice(_ hal.SessionKey, _ string, cb hal.Callback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enableErr != nil {
		return p.enableErr
	}
	p.enabled, p.cb = true, cb
	return nil
}

func (p *fakeProvider) DisableDevice(hal.SessionKey) error {
	p.mu.Lock()
	p.enabled = false
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) Notify(_ hal.SessionKey, ev hal.HalEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) OnSettingsResult(_ hal.SessionKey, settings []hal.Setting) error {
	p.mu.Lock()
	p.settings = append(p.settings, settings)
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) DeliverBuffer(_ hal.SessionKey, streamID int, buf *buffer.DataBuffer) error {
	p.mu.Lock()
	p.delivered[streamID]++
	p.lastSize = buf.Size()
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) callback() hal.Callback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cb
}

func (p *fakeProvider) isEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *fakeProvider) lastEvent() (hal.HalEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return hal.HalEvent{}, false
	}
	return p.events[len(p.events)-1], true
}

func (p *fakeProvider) deliveredOn(id int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delivered[id]
}

// fakePeer plays the camera side: it records the commands it receives and
// can push records and frames back.
type fakePeer struct {
	mu         sync.Mutex
	connectErr error
	control    *channel.PipeEnd
	data       *channel.PipeEnd
	commands   []command.Command
	records    []command.Record
}

func (f *fakePeer) Connect(ctx context.Context, _ hal.SessionKey) (channel.Channel, channel.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, nil, f.connectErr
	}

	localControl, peerControl := channel.NewPipe()
	localData, peerData := channel.NewPipe()
	if err := peerControl.Open(ctx, f.onControl); err != nil {
		return nil, nil, err
	}
	if err := peerData.Open(ctx, nil); err != nil {
		return nil, nil, err
	}
	f.close()
	f.control, f.data = peerControl, peerData
	return localControl, localData, nil
}

func (f *fakePeer) onControl(data []byte) {
	rec, err := command.Unmarshal(data)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.commands = append(f.commands, rec.Command)
	f.records = append(f.records, rec)
	f.mu.Unlock()
}

func (f *fakePeer) received() []command.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]command.Command(nil), f.commands...)
}

func (f *fakePeer) send(t *testing.T, rec command.Record) {
	t.Helper()
	data, err := command.Marshal(rec)
	require.NoError(t, err)
	f.mu.Lock()
	ch := f.control
	f.mu.Unlock()
	require.NoError(t, ch.Send(context.Background(), data))
}

func (f *fakePeer) dataEnd() *channel.PipeEnd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data
}

// close must be called with f.mu held.
func (f *fakePeer) close() {
	if f.control != nil {
		_ = f.control.Close()
		_ = f.data.Close()
	}
	f.control, f.data = nil, nil
}

func (f *fakePeer) shutdown() {
	f.mu.Lock()
	f.close()
	f.mu.Unlock()
}

type registerResult struct {
	register bool
	reqID    string
	code     status.Code
}

type fakeListener struct {
	mu      sync.Mutex
	results []registerResult
}

func (l *fakeListener) OnRegisterNotify(_, _, reqID string, code status.Code, _ string) {
	l.mu.Lock()
	l.results = append(l.results, registerResult{true, reqID, code})
	l.mu.Unlock()
}

func (l *fakeListener) OnUnregisterNotify(_, _, reqID string, code status.Code, _ string) {
	l.mu.Lock()
	l.results = append(l.results, registerResult{false, reqID, code})
	l.mu.Unlock()
}

func (l *fakeListener) get() []registerResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]registerResult(nil), l.results...)
}

func waitState(t *testing.T, s *SourceSession, want StateKind) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, waitFor, time.Millisecond,
		"state is %s, want %s", s.State(), want)
}

func rgbaFrame(w, h int, timeUs int64) *buffer.DataBuffer {
	b := buffer.New(w * h * 4)
	b.SetInt64(buffer.KeyTimeUs, timeUs)
	b.SetInt64(buffer.KeyWidth, int64(w))
	b.SetInt64(buffer.KeyHeight, int64(h))
	return b
}

func TestNewSourceSessionValidates(t *testing.T) {
	_, err := NewSourceSession(hal.SessionKey{DeviceID: "D1"}, newFakeProvider(), &fakePeer{})
	assert.ErrorIs(t, err, status.ErrInvalidArgument)

	_, err = NewSourceSession(testKey, nil, &fakePeer{})
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
}

func TestSourceSessionLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := newFakeProvider()
	peer := &fakePeer{}
	listener := &fakeListener{}
	s, err := NewSourceSession(testKey, provider, peer,
		WithRegisterListener(listener), WithLocalDeviceID("sink"))
	require.NoError(t, err)

	require.NoError(t, s.RegisterHardware("req-1", "1.0", `{"codec":"raw"}`))
	waitState(t, s, StateRegistered)
	assert.True(t, provider.isEnabled())
	assert.Eventually(t, func() bool { return len(listener.get()) == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, registerResult{true, "req-1", status.OK}, listener.get()[0])

	cb := provider.callback()
	require.NotNil(t, cb)
	require.NoError(t, cb.OpenSession())
	waitState(t, s, StateOpened)
	assert.Eventually(t, func() bool { return len(peer.received()) == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, []command.Command{command.OpenChannel, command.ChannelNeg}, peer.received())

	require.NoError(t, cb.ConfigureStreams([]hal.StreamInfo{{StreamID: 1, Width: 32, Height: 16}}))
	waitState(t, s, StateStreamsConfigured)

	require.NoError(t, cb.StartCapture([]hal.CaptureInfo{{StreamIDs: []int{1}, Width: 32, Height: 16, FrameRate: 30}}))
	waitState(t, s, StateCapturing)
	assert.Eventually(t, func() bool { return len(peer.received()) == 3 }, waitFor, time.Millisecond)
	assert.Equal(t, command.Capture, peer.received()[2])

	sender := media.NewSender(peer.dataEnd())
	for i := 0; i < 3; i++ {
		require.NoError(t, sender.Send(context.Background(), 1, rgbaFrame(32, 16, int64(i)*33_333)))
	}
	assert.Eventually(t, func() bool { return provider.deliveredOn(1) == 3 }, waitFor, time.Millisecond)
	assert.Equal(t, 32*16*4, provider.lastSize)

	peer.send(t, command.NewStateNotify(testKey.HardwareID, hal.HalEvent{
		Type: hal.EventMessage, Result: hal.ResultChannelConnected, Content: "ready",
	}))
	assert.Eventually(t, func() bool {
		ev, ok := provider.lastEvent()
		return ok && ev.Content == "ready"
	}, waitFor, time.Millisecond)

	peer.send(t, command.NewMetadataResult(testKey.HardwareID, []hal.Setting{{Type: hal.SettingUpdate, Value: "ae=on"}}))
	assert.Eventually(t, func() bool {
		provider.mu.Lock()
		defer provider.mu.Unlock()
		return len(provider.settings) == 1
	}, waitFor, time.Millisecond)

	require.NoError(t, cb.StopCapture())
	waitState(t, s, StateStreamsConfigured)

	require.NoError(t, s.UnregisterHardware("req-2"))
	waitState(t, s, StateInit)
	assert.Eventually(t, func() bool { return len(listener.get()) == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, registerResult{false, "req-2", status.OK}, listener.get()[1])
	assert.False(t, provider.isEnabled())
	assert.Eventually(t, func() bool {
		got := peer.received()
		return len(got) == 6 && got[5] == command.CloseChannel
	}, waitFor, time.Millisecond)
	// The explicit stop, then the one unregister runs on its way down.
	assert.Equal(t, []command.Command{command.StopCapture, command.StopCapture}, peer.received()[3:5])

	s.Close()
	<-s.Done()
	peer.shutdown()
}

func TestSourceSessionReportsFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := newFakeProvider()
	peer := &fakePeer{connectErr: errors.New("unreachable")}
	s, err := NewSourceSession(testKey, provider, peer)
	require.NoError(t, err)
	defer func() {
		s.Close()
		<-s.Done()
	}()

	require.NoError(t, s.RegisterHardware("req-1", "1.0", ""))
	waitState(t, s, StateRegistered)

	require.NoError(t, s.OpenSession())
	assert.Eventually(t, func() bool {
		ev, ok := provider.lastEvent()
		return ok && ev.Result == hal.ResultDeviceError
	}, waitFor, time.Millisecond)
	ev, _ := provider.lastEvent()
	assert.Equal(t, hal.EventOperation, ev.Type)
	assert.Equal(t, status.BadOperate, ev.Code)
	assert.Equal(t, StateRegistered, s.State())

	require.NoError(t, s.ConfigureStreams([]hal.StreamInfo{{StreamID: 1, Width: 32, Height: 16}}))
	assert.Eventually(t, func() bool {
		ev, ok := provider.lastEvent()
		return ok && ev.Result == hal.ResultConfigFailed
	}, waitFor, time.Millisecond)
	ev, _ = provider.lastEvent()
	assert.Equal(t, status.WrongState, ev.Code)
}

func TestSourceSessionRegisterFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := newFakeProvider()
	provider.enableErr = errors.New("no slot")
	listener := &fakeListener{}
	s, err := NewSourceSession(testKey, provider, &fakePeer{}, WithRegisterListener(listener))
	require.NoError(t, err)

	require.NoError(t, s.RegisterHardware("req-1", "1.0", ""))
	assert.Eventually(t, func() bool { return len(listener.get()) == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, status.HalRegisterFailed, listener.get()[0].code)
	assert.Equal(t, StateInit, s.State())

	s.Close()
	<-s.Done()
	assert.ErrorIs(t, s.OpenSession(), status.ErrDisabledProcess)
}

func TestSourceSessionShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := newFakeProvider()
	peer := &fakePeer{}
	s, err := NewSourceSession(testKey, provider, peer)
	require.NoError(t, err)

	require.NoError(t, s.RegisterHardware("req-1", "1.0", ""))
	require.NoError(t, s.OpenSession())
	waitState(t, s, StateOpened)

	require.NoError(t, s.Shutdown())
	assert.Equal(t, StateInit, s.State())
	assert.False(t, provider.isEnabled())
	assert.Eventually(t, func() bool {
		got := peer.received()
		return len(got) > 0 && got[len(got)-1] == command.CloseChannel
	}, waitFor, time.Millisecond)
	assert.ErrorIs(t, s.CloseSession(), status.ErrDisabledProcess)
	peer.shutdown()
}

func TestCloseAfterPeerLoss(t *testing.T) {
	for name, capture := range map[string]bool{"configured": false, "capturing": true} {
		t.Run(name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			provider := newFakeProvider()
			peer := &fakePeer{}
			s, err := NewSourceSession(testKey, provider, peer)
			require.NoError(t, err)

			require.NoError(t, s.RegisterHardware("req-1", "1.0", ""))
			require.NoError(t, s.OpenSession())
			require.NoError(t, s.ConfigureStreams([]hal.StreamInfo{{StreamID: 1, Width: 32, Height: 16}}))
			waitState(t, s, StateStreamsConfigured)
			if capture {
				require.NoError(t, s.StartCapture([]hal.CaptureInfo{{StreamIDs: []int{1}, Width: 32, Height: 16, FrameRate: 30}}))
				waitState(t, s, StateCapturing)
			}

			peer.shutdown()
			require.NoError(t, s.CloseSession())
			waitState(t, s, StateRegistered)
			assert.Eventually(t, func() bool {
				ev, ok := provider.lastEvent()
				return ok && ev.Type == hal.EventOperation && ev.Result == hal.ResultDeviceError
			}, waitFor, time.Millisecond)

			provider.mu.Lock()
			failures := len(provider.events)
			provider.mu.Unlock()
			require.NoError(t, s.CloseSession())
			require.NoError(t, s.OpenSession())
			waitState(t, s, StateOpened)
			provider.mu.Lock()
			assert.Len(t, provider.events, failures)
			provider.mu.Unlock()

			require.NoError(t, s.Shutdown())
			peer.shutdown()
		})
	}
}

func TestControllerIndexes(t *testing.T) {
	c := NewController(testKey, "sink", newFakeProvider(), nil)
	assert.ErrorIs(t, c.Init(nil), status.ErrInvalidArgument)
	assert.ErrorIs(t, c.Init([]hal.SessionKey{testKey, testKey}), status.ErrInvalidArgument)
	assert.ErrorIs(t, c.Init([]hal.SessionKey{{DeviceID: "D1"}}), status.ErrInvalidArgument)
	assert.ErrorIs(t, c.DCameraNotify(hal.HalEvent{}), status.ErrInvalidArgument)

	require.NoError(t, c.Init([]hal.SessionKey{testKey}))
	assert.ErrorIs(t, c.UpdateSettings(context.Background(), nil), status.ErrBadOperate)
	assert.ErrorIs(t, c.StartCapture(context.Background(), nil), status.ErrInvalidArgument)
	assert.NoError(t, c.DCameraNotify(hal.HalEvent{}))

	c.UnInit()
	_, peer := channel.NewPipe()
	assert.ErrorIs(t, c.OpenChannel(context.Background(), peer), status.ErrInvalidArgument)
}

func TestControllerOpenConflict(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	c := NewController(testKey, "sink", newFakeProvider(), nil)
	require.NoError(t, c.Init([]hal.SessionKey{testKey}))

	local, remote := channel.NewPipe()
	require.NoError(t, remote.Open(ctx, nil))
	require.NoError(t, c.OpenChannel(ctx, local))

	other, _ := channel.NewPipe()
	assert.ErrorIs(t, c.OpenChannel(ctx, other), status.ErrOpenConflict)

	require.NoError(t, c.CloseChannel(ctx))
	require.NoError(t, c.CloseChannel(ctx))
	require.NoError(t, remote.Close())
}

func TestInputStreams(t *testing.T) {
	in := NewInput(testKey, nil, nil, nil)

	assert.ErrorIs(t, in.ConfigStreams([]hal.StreamInfo{{StreamID: 1}}), status.ErrInvalidArgument)
	assert.ErrorIs(t, in.ConfigStreams([]hal.StreamInfo{
		{StreamID: 1, Width: 8, Height: 8}, {StreamID: 1, Width: 8, Height: 8},
	}), status.ErrInvalidArgument)

	require.NoError(t, in.ConfigStreams([]hal.StreamInfo{
		{StreamID: 2, Width: 8, Height: 8}, {StreamID: 1, Width: 8, Height: 8},
	}))
	assert.Equal(t, []int{1, 2}, in.StreamIDs())

	assert.ErrorIs(t, in.StartCapture([]hal.CaptureInfo{{StreamIDs: []int{3}}}), status.ErrNotFound)
	assert.ErrorIs(t, in.StartCapture([]hal.CaptureInfo{{StreamIDs: []int{1}}, {StreamIDs: []int{1}}}), status.ErrAlreadyExists)

	require.NoError(t, in.StartCapture([]hal.CaptureInfo{{StreamIDs: []int{1, 2}, Width: 8, Height: 8}}))
	assert.True(t, in.Capturing())
	assert.ErrorIs(t, in.StartCapture([]hal.CaptureInfo{{StreamIDs: []int{1}}}), status.ErrAlreadyExists)
	assert.ErrorIs(t, in.ConfigStreams([]hal.StreamInfo{{StreamID: 1, Width: 4, Height: 4}}), status.ErrWrongState)

	assert.False(t, in.StopCapture([]int{1}))
	assert.True(t, in.StopCapture(nil))

	_, err := in.ReleaseStreams([]int{7})
	assert.ErrorIs(t, err, status.ErrNotFound)
	empty, err := in.ReleaseStreams([]int{1})
	require.NoError(t, err)
	assert.False(t, empty)
	in.ReleaseAllStreams()
	assert.Empty(t, in.StreamIDs())
}

func TestFailureEvent(t *testing.T) {
	ev := failureEvent(0, status.ErrWrongState)
	assert.Equal(t, hal.ResultDeviceError, ev.Result)
	assert.Equal(t, status.WrongState, ev.Code)
	assert.Equal(t, hal.EventOperation, ev.Type)
}
