// Package event defines the immutable events posted to a session. Every
// event has a Kind and exactly one payload; the payload type is fixed by the
// constructor used, so an event cannot carry a payload of the wrong kind.
package event

import (
	"fmt"

	"github.com/pion/dcamera/pkg/hal"
)

// Kind is the event kind.
type Kind int

const (
	Register Kind = iota
	Unregister
	Open
	Close
	ConfigStreams
	ReleaseStreams
	StartCapture
	StopCapture
	UpdateSettings
	Notify
)

// Kinds lists every kind in declaration order.
var Kinds = []Kind{
	Register, Unregister, Open, Close, ConfigStreams, ReleaseStreams,
	StartCapture, StopCapture, UpdateSettings, Notify,
}

var kindNames = [...]string{
	Register:       "register",
	Unregister:     "unregister",
	Open:           "open",
	Close:          "close",
	ConfigStreams:  "config_streams",
	ReleaseStreams: "release_streams",
	StartCapture:   "start_capture",
	StopCapture:    "stop_capture",
	UpdateSettings: "update_settings",
	Notify:         "notify",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Payload is implemented only by the payload types of this package.
type Payload interface {
	payload()
}

// RegisterParam carries the arguments of a register or unregister request.
type RegisterParam struct {
	Key       hal.SessionKey
	RequestID string
	Version   string
	Attrs     string
}

// Key carries the session key of an open or close request.
type Key struct {
	hal.SessionKey
}

// Streams carries stream descriptors to configure.
type Streams []hal.StreamInfo

// Captures carries capture descriptors to start.
type Captures []hal.CaptureInfo

// Settings carries metadata updates.
type Settings []hal.Setting

// StreamIDs carries stream ids to release or stop.
type StreamIDs []int

// Notification carries a notification for the peer or the hardware layer.
type Notification struct {
	hal.HalEvent
}

func (RegisterParam) payload() {}
func (Key) payload()           {}
func (Streams) payload()       {}
func (Captures) payload()      {}
func (Settings) payload()      {}
func (StreamIDs) payload()     {}
func (Notification) payload()  {}

// Event is a kind plus its payload. The zero Event is not valid; use the
// constructors.
type Event struct {
	kind    Kind
	payload Payload
}

// Kind returns the event kind.
func (e Event) Kind() Kind { return e.kind }

// Payload returns the payload. Its concrete type is determined by Kind.
func (e Event) Payload() Payload { return e.payload }

// Valid reports whether the payload has the type Kind requires. Only the
// zero Event and hand-built values fail.
func (e Event) Valid() bool {
	var ok bool
	switch e.kind {
	case Register, Unregister:
		_, ok = e.payload.(RegisterParam)
	case Open, Close:
		_, ok = e.payload.(Key)
	case ConfigStreams:
		_, ok = e.payload.(Streams)
	case ReleaseStreams, StopCapture:
		_, ok = e.payload.(StreamIDs)
	case StartCapture:
		_, ok = e.payload.(Captures)
	case UpdateSettings:
		_, ok = e.payload.(Settings)
	case Notify:
		_, ok = e.payload.(Notification)
	}
	return ok
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%+v)", e.kind, e.payload)
}

func NewRegister(p RegisterParam) Event   { return Event{Register, p} }
func NewUnregister(p RegisterParam) Event { return Event{Unregister, p} }

func NewOpen(key hal.SessionKey) Event  { return Event{Open, Key{key}} }
func NewClose(key hal.SessionKey) Event { return Event{Close, Key{key}} }

func NewConfigStreams(streams []hal.StreamInfo) Event {
	return Event{ConfigStreams, Streams(append([]hal.StreamInfo(nil), streams...))}
}

func NewReleaseStreams(ids []int) Event {
	return Event{ReleaseStreams, StreamIDs(append([]int(nil), ids...))}
}

func NewStartCapture(captures []hal.CaptureInfo) Event {
	return Event{StartCapture, Captures(append([]hal.CaptureInfo(nil), captures...))}
}

func NewStopCapture(ids []int) Event {
	return Event{StopCapture, StreamIDs(append([]int(nil), ids...))}
}

func NewUpdateSettings(settings []hal.Setting) Event {
	return Event{UpdateSettings, Settings(append([]hal.Setting(nil), settings...))}
}

func NewNotify(ev hal.HalEvent) Event { return Event{Notify, Notification{ev}} }
