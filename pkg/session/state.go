package session

import (
	"fmt"

	"github.com/pion/dcamera/pkg/event"
	"github.com/pion/dcamera/pkg/hal"
	"github.com/pion/dcamera/pkg/status"
)

// StateKind names a session state.
type StateKind int

const (
	StateInit StateKind = iota
	StateRegistered
	StateOpened
	StateStreamsConfigured
	StateCapturing
)

// StateKinds lists every state in lifecycle order.
var StateKinds = []StateKind{StateInit, StateRegistered, StateOpened, StateStreamsConfigured, StateCapturing}

var stateNames = [...]string{
	StateInit:              "init",
	StateRegistered:        "registered",
	StateOpened:            "opened",
	StateStreamsConfigured: "streams_configured",
	StateCapturing:         "capturing",
}

func (k StateKind) String() string {
	if k >= 0 && int(k) < len(stateNames) {
		return stateNames[k]
	}
	return fmt.Sprintf("state(%d)", int(k))
}

// Operator is the session as seen by a state during one Execute call. States
// never keep it.
type Operator interface {
	Key() hal.SessionKey
	RegisterHal(p event.RegisterParam) error
	UnregisterHal() error
	OpenSession() error
	CloseSession() error
	ConfigStreams(streams []hal.StreamInfo) error
	// ReleaseStreams reports whether no configured stream is left.
	ReleaseStreams(ids []int) (bool, error)
	ReleaseAllStreams() error
	StartCapture(captures []hal.CaptureInfo) error
	// StopCapture stops the given streams, or all of them when ids is empty,
	// and reports whether no capture is left running.
	StopCapture(ids []int) (bool, error)
	UpdateSettings(settings []hal.Setting) error
	Notify(ev hal.HalEvent) error
}

// State executes events for one lifecycle state. Execute returns the state
// the session moves to; it equals Kind() when nothing changes.
type State interface {
	Kind() StateKind
	Execute(op Operator, ev event.Event) (StateKind, error)
}

// newState returns the state for kind. States hold no data, so the same
// values are shared by every session.
func newState(kind StateKind) State {
	switch kind {
	case StateRegistered:
		return registeredState{}
	case StateOpened:
		return openedState{}
	case StateStreamsConfigured:
		return configuredState{}
	case StateCapturing:
		return capturingState{}
	default:
		return initState{}
	}
}

func wrongState(from StateKind, ev event.Event) error {
	return status.Errorf(status.WrongState, "%s is not allowed in state %s", ev.Kind(), from)
}

type initState struct{}

func (initState) Kind() StateKind { return StateInit }

func (s initState) Execute(op Operator, ev event.Event) (StateKind, error) {
	switch ev.Kind() {
	case event.Register:
		p := ev.Payload().(event.RegisterParam)
		if err := op.RegisterHal(p); err != nil {
			return StateInit, err
		}
		return StateRegistered, nil
	case event.Unregister:
		return StateInit, nil
	case event.Open, event.Close, event.ConfigStreams, event.ReleaseStreams,
		event.StartCapture, event.StopCapture, event.UpdateSettings, event.Notify:
		return StateInit, wrongState(StateInit, ev)
	default:
		return StateInit, wrongState(StateInit, ev)
	}
}

type registeredState struct{}

func (registeredState) Kind() StateKind { return StateRegistered }

func (s registeredState) Execute(op Operator, ev event.Event) (StateKind, error) {
	switch ev.Kind() {
	case event.Register, event.Close:
		return StateRegistered, nil
	case event.Unregister:
		return StateInit, op.UnregisterHal()
	case event.Open:
		if err := op.OpenSession(); err != nil {
			return StateRegistered, err
		}
		return StateOpened, nil
	case event.Notify:
		return StateRegistered, op.Notify(ev.Payload().(event.Notification).HalEvent)
	case event.ConfigStreams, event.ReleaseStreams, event.StartCapture,
		event.StopCapture, event.UpdateSettings:
		return StateRegistered, wrongState(StateRegistered, ev)
	default:
		return StateRegistered, wrongState(StateRegistered, ev)
	}
}

type openedState struct{}

func (openedState) Kind() StateKind { return StateOpened }

func (s openedState) Execute(op Operator, ev event.Event) (StateKind, error) {
	switch ev.Kind() {
	case event.Register, event.Open:
		return StateOpened, nil
	case event.Unregister:
		return StateInit, teardown(op, op.CloseSession, op.UnregisterHal)
	case event.Close:
		// The channels are dropped even when closing them fails.
		return StateRegistered, op.CloseSession()
	case event.ConfigStreams:
		streams := ev.Payload().(event.Streams)
		if err := op.ConfigStreams(streams); err != nil {
			return StateOpened, err
		}
		if len(streams) == 0 {
			return StateOpened, nil
		}
		return StateStreamsConfigured, nil
	case event.UpdateSettings:
		return StateOpened, op.UpdateSettings(ev.Payload().(event.Settings))
	case event.Notify:
		return StateOpened, op.Notify(ev.Payload().(event.Notification).HalEvent)
	case event.ReleaseStreams, event.StartCapture, event.StopCapture:
		return StateOpened, wrongState(StateOpened, ev)
	default:
		return StateOpened, wrongState(StateOpened, ev)
	}
}

type configuredState struct{}

func (configuredState) Kind() StateKind { return StateStreamsConfigured }

func (s configuredState) Execute(op Operator, ev event.Event) (StateKind, error) {
	switch ev.Kind() {
	case event.Register, event.Open, event.StopCapture:
		return StateStreamsConfigured, nil
	case event.Unregister:
		return StateInit, teardown(op, stopAll(op), op.ReleaseAllStreams, op.CloseSession, op.UnregisterHal)
	case event.Close:
		// Like Unregister, a failed step does not stop the teardown, and the
		// session holds nothing past Registered afterwards.
		return StateRegistered, teardown(op, stopAll(op), op.ReleaseAllStreams, op.CloseSession)
	case event.ConfigStreams:
		return StateStreamsConfigured, op.ConfigStreams(ev.Payload().(event.Streams))
	case event.ReleaseStreams:
		empty, err := op.ReleaseStreams(ev.Payload().(event.StreamIDs))
		if err != nil {
			return StateStreamsConfigured, err
		}
		if empty {
			return StateOpened, nil
		}
		return StateStreamsConfigured, nil
	case event.StartCapture:
		if err := op.StartCapture(ev.Payload().(event.Captures)); err != nil {
			return StateStreamsConfigured, err
		}
		return StateCapturing, nil
	case event.UpdateSettings:
		return StateStreamsConfigured, op.UpdateSettings(ev.Payload().(event.Settings))
	case event.Notify:
		return StateStreamsConfigured, op.Notify(ev.Payload().(event.Notification).HalEvent)
	default:
		return StateStreamsConfigured, wrongState(StateStreamsConfigured, ev)
	}
}

type capturingState struct{}

func (capturingState) Kind() StateKind { return StateCapturing }

func (s capturingState) Execute(op Operator, ev event.Event) (StateKind, error) {
	switch ev.Kind() {
	case event.Register:
		return StateCapturing, nil
	case event.Unregister:
		disconnect := func() error {
			return op.Notify(hal.HalEvent{
				Type:    hal.EventMessage,
				Result:  hal.ResultChannelDisconnected,
				Content: "unregistered while capturing",
			})
		}
		return StateInit, teardown(op, disconnect, stopAll(op), op.ReleaseAllStreams, op.CloseSession, op.UnregisterHal)
	case event.Close:
		// Streams are released too, so the session lands in Registered and a
		// repeated Close is a no-op. This holds when a step failed as well.
		return StateRegistered, teardown(op, stopAll(op), op.ReleaseAllStreams, op.CloseSession)
	case event.StopCapture:
		idle, err := op.StopCapture(ev.Payload().(event.StreamIDs))
		if err != nil {
			return StateCapturing, err
		}
		if idle {
			return StateStreamsConfigured, nil
		}
		return StateCapturing, nil
	case event.UpdateSettings:
		return StateCapturing, op.UpdateSettings(ev.Payload().(event.Settings))
	case event.Notify:
		return StateCapturing, op.Notify(ev.Payload().(event.Notification).HalEvent)
	case event.Open, event.ConfigStreams, event.ReleaseStreams, event.StartCapture:
		return StateCapturing, wrongState(StateCapturing, ev)
	default:
		return StateCapturing, wrongState(StateCapturing, ev)
	}
}

func stopAll(op Operator) func() error {
	return func() error {
		_, err := op.StopCapture(nil)
		return err
	}
}

// teardown runs every step in order, even after a failure, and returns the
// first error.
func teardown(op Operator, steps ...func() error) error {
	var first error
	for _, step := range steps {
		if err := step(); err != nil {
			logger.Warnf("%s teardown step failed: %v", op.Key(), err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
