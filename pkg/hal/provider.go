package hal

import (
	"github.com/pion/dcamera/pkg/buffer"
)

// Callback is implemented by a session and invoked by the hardware layer.
// Every method returns synchronously after queueing the request; the outcome
// is reported later through Provider.Notify.
type Callback interface {
	OpenSession() error
	CloseSession() error
	ConfigureStreams(streams []StreamInfo) error
	ReleaseStreams(streamIDs []int) error
	StartCapture(captures []CaptureInfo) error
	StopCapture() error
	UpdateSettings(settings []Setting) error
}

// Provider is the hardware layer as seen by a session.
type Provider interface {
	// EnableDevice exposes the remote camera locally, described by ability,
	// and routes its requests to cb.
	EnableDevice(key SessionKey, ability string, cb Callback) error
	DisableDevice(key SessionKey) error
	Notify(key SessionKey, ev HalEvent) error
	OnSettingsResult(key SessionKey, settings []Setting) error
}

// BufferConsumer is optionally implemented by a Provider that wants decoded
// frames delivered to it.
type BufferConsumer interface {
	DeliverBuffer(key SessionKey, streamID int, buf *buffer.DataBuffer) error
}
