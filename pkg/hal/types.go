// Package hal describes the boundary with the local hardware layer: the
// identity of a distributed camera, the stream and capture descriptors the
// hardware layer hands to a session, and the provider operations a session
// calls back into.
package hal

import (
	"github.com/pion/dcamera/pkg/frame"
	"github.com/pion/dcamera/pkg/status"
)

// SessionKey identifies one remote camera: the remote device and the
// hardware id of the camera on that device.
type SessionKey struct {
	DeviceID   string
	HardwareID string
}

func (k SessionKey) String() string {
	return k.DeviceID + k.HardwareID
}

// Less orders keys by the concatenation of both fields.
func (k SessionKey) Less(o SessionKey) bool {
	return k.String() < o.String()
}

// Valid reports whether both fields are set.
func (k SessionKey) Valid() bool {
	return k.DeviceID != "" && k.HardwareID != ""
}

// StreamType tells whether a stream delivers a continuous preview/video feed
// or single snapshots.
type StreamType int

const (
	StreamContinuous StreamType = iota
	StreamSnapshot
)

func (t StreamType) String() string {
	switch t {
	case StreamContinuous:
		return "continuous"
	case StreamSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// StreamInfo describes one stream the hardware layer wants configured.
type StreamInfo struct {
	StreamID   int
	Width      int
	Height     int
	Format     frame.Format
	Dataspace  int
	EncodeType frame.Codec
	StreamType StreamType
}

// CaptureInfo describes one capture request covering one or more streams.
type CaptureInfo struct {
	StreamIDs  []int
	Width      int
	Height     int
	Format     frame.Format
	Dataspace  int
	IsCapture  bool
	EncodeType frame.Codec
	StreamType StreamType
	FrameRate  float32
	Settings   []Setting
}

// SettingType tells how a Setting value applies to the camera metadata.
type SettingType int

const (
	SettingUpdate SettingType = iota + 1
	SettingEnable
	SettingDisable
	SettingReset
)

// Setting is one opaque camera metadata update.
type Setting struct {
	Type  SettingType
	Value string
}

// EventType classifies a HalEvent.
type EventType int

const (
	EventMessage EventType = iota
	EventOperation
)

// Results carried by HalEvent.Result for EventMessage.
const (
	ResultChannelConnected    = 0
	ResultChannelDisconnected = 1
	ResultConfigFailed        = 2
	ResultCaptureFailed       = 3
	ResultDeviceError         = 4
)

// HalEvent is a notification exchanged between the session, the remote
// peer, and the hardware layer.
type HalEvent struct {
	Type    EventType
	Result  int
	Code    status.Code
	Content string
}
