// Package session implements the sink side of a distributed camera: one
// SourceSession per remote camera, driven by a state machine that decides
// which requests are legal in which lifecycle state.
package session

import (
	"context"
	"fmt"

	"github.com/pion/dcamera/internal/dispatch"
	"github.com/pion/dcamera/internal/logging"
	"github.com/pion/dcamera/pkg/channel"
	"github.com/pion/dcamera/pkg/event"
	"github.com/pion/dcamera/pkg/hal"
	"github.com/pion/dcamera/pkg/pipeline"
	"github.com/pion/dcamera/pkg/status"
)

var logger = logging.NewLogger("session")

// RegisterListener receives the outcome of register and unregister
// requests.
type RegisterListener interface {
	OnRegisterNotify(devID, dhID, reqID string, code status.Code, data string)
	OnUnregisterNotify(devID, dhID, reqID string, code status.Code, data string)
}

// Transport connects a session to the peer that owns the camera.
type Transport interface {
	Connect(ctx context.Context, key hal.SessionKey) (control, data channel.Channel, err error)
}

// Option configures a SourceSession.
type Option func(*SourceSession)

// WithRegisterListener sets the listener of register outcomes.
func WithRegisterListener(l RegisterListener) Option {
	return func(s *SourceSession) {
		s.listener = l
	}
}

// WithLocalDeviceID sets the id this device announces to the peer.
func WithLocalDeviceID(id string) Option {
	return func(s *SourceSession) {
		s.localDevID = id
	}
}

// WithScaler sets the scaling algorithm of the stream pipelines.
func WithScaler(sc pipeline.Scaler) Option {
	return func(s *SourceSession) {
		s.scaler = sc
	}
}

// SourceSession is the local stand-in for one remote camera. Every request
// becomes an event executed in order on the session's own goroutine.
type SourceSession struct {
	key        hal.SessionKey
	localDevID string
	provider   hal.Provider
	transport  Transport
	listener   RegisterListener
	scaler     pipeline.Scaler

	machine    *StateMachine
	controller *Controller
	input      *Input
	callback   *callbackAdapter
	queue      *dispatch.Queue[event.Event]

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSourceSession creates a session in StateInit and starts its event
// loop.
func NewSourceSession(key hal.SessionKey, provider hal.Provider, transport Transport, opts ...Option) (*SourceSession, error) {
	if !key.Valid() {
		return nil, status.Errorf(status.InvalidArgument, "invalid session key %+v", key)
	}
	if provider == nil || transport == nil {
		return nil, status.Errorf(status.InvalidArgument, "session %s needs a provider and a transport", key)
	}

	s := &SourceSession{
		key:       key,
		provider:  provider,
		transport: transport,
		machine:   NewStateMachine(),
	}
	for _, o := range opts {
		o(s)
	}

	consumer, _ := provider.(hal.BufferConsumer)
	s.controller = NewController(key, s.localDevID, provider, s.onPeerEvent)
	s.input = NewInput(key, consumer, s.scaler, s.onStreamError)
	s.callback = &callbackAdapter{s}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.queue = dispatch.NewQueue(s.handle)
	return s, nil
}

// Key returns the session key.
func (s *SourceSession) Key() hal.SessionKey { return s.key }

// State returns the current lifecycle state.
func (s *SourceSession) State() StateKind { return s.machine.Current() }

// Callback returns the adapter the hardware layer calls into.
func (s *SourceSession) Callback() hal.Callback { return s.callback }

func (s *SourceSession) RegisterHardware(reqID, version, attrs string) error {
	return s.post(event.NewRegister(event.RegisterParam{Key: s.key, RequestID: reqID, Version: version, Attrs: attrs}))
}

func (s *SourceSession) UnregisterHardware(reqID string) error {
	return s.post(event.NewUnregister(event.RegisterParam{Key: s.key, RequestID: reqID}))
}

func (s *SourceSession) DCameraNotify(ev hal.HalEvent) error {
	return s.post(event.NewNotify(ev))
}

func (s *SourceSession) OpenSession() error {
	return s.post(event.NewOpen(s.key))
}

func (s *SourceSession) CloseSession() error {
	return s.post(event.NewClose(s.key))
}

func (s *SourceSession) ConfigureStreams(streams []hal.StreamInfo) error {
	return s.post(event.NewConfigStreams(streams))
}

func (s *SourceSession) ReleaseStreams(ids []int) error {
	return s.post(event.NewReleaseStreams(ids))
}

func (s *SourceSession) StartCapture(captures []hal.CaptureInfo) error {
	return s.post(event.NewStartCapture(captures))
}

// StopCapture stops the given streams, every stream when ids is empty.
func (s *SourceSession) StopCapture(ids []int) error {
	return s.post(event.NewStopCapture(ids))
}

func (s *SourceSession) UpdateSettings(settings []hal.Setting) error {
	return s.post(event.NewUpdateSettings(settings))
}

// Close stops the event loop without waiting for it. Pending register and
// unregister requests are answered with DisabledProcess, other pending events
// are dropped. It is safe to call from a listener callback.
func (s *SourceSession) Close() {
	s.cancel()
	s.abandon(s.queue.Stop())
}

// Done is closed once the event loop has exited.
func (s *SourceSession) Done() <-chan struct{} {
	return s.queue.Done()
}

// Shutdown stops the event loop, waits for it, and tears down whatever the
// current state holds as an Unregister would. It must not be called from a
// listener callback.
func (s *SourceSession) Shutdown() error {
	pending := s.queue.Stop()
	<-s.queue.Done()
	s.abandon(pending)
	defer s.cancel()

	if s.machine.Current() == StateInit {
		return nil
	}
	return s.machine.Execute(sessionOps{s}, event.NewUnregister(event.RegisterParam{Key: s.key}))
}

func (s *SourceSession) abandon(pending []event.Event) {
	for _, ev := range pending {
		if k := ev.Kind(); k == event.Register || k == event.Unregister {
			s.notifyListener(ev, status.Errorf(status.DisabledProcess, "session %s is closed", s.key))
		}
	}
}

func (s *SourceSession) post(ev event.Event) error {
	if err := s.queue.Post(ev); err != nil {
		return status.Errorf(status.DisabledProcess, "session %s is closed", s.key)
	}
	return nil
}

func (s *SourceSession) handle(ev event.Event) {
	err := s.machine.Execute(sessionOps{s}, ev)

	switch ev.Kind() {
	case event.Register, event.Unregister:
		s.notifyListener(ev, err)
	case event.Open, event.Close, event.ConfigStreams, event.ReleaseStreams,
		event.StartCapture, event.StopCapture, event.UpdateSettings:
		if err != nil {
			_ = s.post(event.NewNotify(failureEvent(ev.Kind(), err)))
		}
	case event.Notify:
		if err != nil {
			logger.Warnf("%s: notify: %v", s.key, err)
		}
	}
}

func (s *SourceSession) notifyListener(ev event.Event, err error) {
	if s.listener == nil {
		return
	}

	p, ok := ev.Payload().(event.RegisterParam)
	if !ok {
		return
	}
	code := status.CodeOf(err)
	data := ""
	if err != nil {
		data = err.Error()
	}
	if ev.Kind() == event.Register {
		s.listener.OnRegisterNotify(p.Key.DeviceID, p.Key.HardwareID, p.RequestID, code, data)
	} else {
		s.listener.OnUnregisterNotify(p.Key.DeviceID, p.Key.HardwareID, p.RequestID, code, data)
	}
}

func (s *SourceSession) onPeerEvent(ev hal.HalEvent) {
	if err := s.post(event.NewNotify(ev)); err != nil {
		logger.Debugf("%s: peer event dropped: %v", s.key, err)
	}
}

func (s *SourceSession) onStreamError(streamID int, err error) {
	ev := hal.HalEvent{
		Type:    hal.EventMessage,
		Result:  hal.ResultCaptureFailed,
		Code:    status.CodeOf(err),
		Content: fmt.Sprintf("stream %d: %v", streamID, err),
	}
	if err := s.post(event.NewNotify(ev)); err != nil {
		logger.Debugf("%s: stream error dropped: %v", s.key, err)
	}
}

// failureEvent is reported to the hardware layer when a request failed.
func failureEvent(kind event.Kind, err error) hal.HalEvent {
	result := hal.ResultDeviceError
	switch kind {
	case event.ConfigStreams, event.ReleaseStreams:
		result = hal.ResultConfigFailed
	case event.StartCapture, event.StopCapture, event.UpdateSettings:
		result = hal.ResultCaptureFailed
	}
	return hal.HalEvent{
		Type:    hal.EventOperation,
		Result:  result,
		Code:    status.CodeOf(err),
		Content: fmt.Sprintf("%s failed: %v", kind, err),
	}
}
