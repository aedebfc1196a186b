// Package command defines the control records exchanged between the sink
// and the source of a distributed camera, and their JSON encoding.
package command

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/dcamera/pkg/frame"
	"github.com/pion/dcamera/pkg/hal"
	"github.com/pion/dcamera/pkg/status"
)

// Type classifies a record.
type Type string

const (
	TypeOperation Type = "OPERATION"
	TypeMessage   Type = "MESSAGE"
)

// Command names the operation a record carries.
type Command string

const (
	Capture        Command = "CAPTURE"
	StopCapture    Command = "STOP_CAPTURE"
	ChannelNeg     Command = "CHANNEL_NEG"
	UpdateMetadata Command = "UPDATE_METADATA"
	MetadataResult Command = "METADATA_RESULT"
	OpenChannel    Command = "OPEN_CHANNEL"
	CloseChannel   Command = "CLOSE_CHANNEL"
	StateNotify    Command = "STATE_NOTIFY"
)

var ErrUnknownCommand = errors.New("command: unknown command")

// CaptureInfo asks the source to capture into the listed streams.
type CaptureInfo struct {
	StreamIDs       []int        `json:"streamIds"`
	Width           int          `json:"width"`
	Height          int          `json:"height"`
	Format          frame.Format `json:"format"`
	Dataspace       int          `json:"dataspace"`
	IsCapture       bool         `json:"isCapture"`
	EncodeType      frame.Codec  `json:"encodeType"`
	StreamType      int          `json:"streamType"`
	FrameRate       float32      `json:"frameRate,omitempty"`
	CaptureSettings []Setting    `json:"captureSettings,omitempty"`
}

// ChannelDetail announces one data session the sink will open.
type ChannelDetail struct {
	DataSessionFlag string `json:"dataSessionFlag"`
	StreamType      int    `json:"streamType"`
}

// ChannelInfo is the payload of CHANNEL_NEG.
type ChannelInfo struct {
	SourceDevID string          `json:"sourceDevId"`
	Detail      []ChannelDetail `json:"detail"`
}

// OpenInfo is the payload of OPEN_CHANNEL.
type OpenInfo struct {
	SourceDevID string `json:"sourceDevId"`
}

// Setting is a camera metadata entry.
type Setting struct {
	Type  int    `json:"type"`
	Value string `json:"value"`
}

// Event is the payload of STATE_NOTIFY.
type Event struct {
	EventType   int    `json:"eventType"`
	EventResult int    `json:"eventResult"`
	Code        int32  `json:"code"`
	Content     string `json:"content,omitempty"`
}

// Record is one control message. Value holds the typed payload for Command:
//
//	CAPTURE          []CaptureInfo
//	STOP_CAPTURE     []int, empty means every stream
//	CHANNEL_NEG      ChannelInfo
//	UPDATE_METADATA  []Setting
//	METADATA_RESULT  []Setting
//	OPEN_CHANNEL     OpenInfo
//	CLOSE_CHANNEL    nil
//	STATE_NOTIFY     Event
type Record struct {
	Type    Type
	DhID    string
	Command Command
	Value   interface{}
}

type wireRecord struct {
	Type    Type            `json:"type"`
	DhID    string          `json:"dhId"`
	Command Command         `json:"command"`
	Value   json.RawMessage `json:"value,omitempty"`
}

// Marshal encodes r.
func Marshal(r Record) ([]byte, error) {
	w := wireRecord{Type: r.Type, DhID: r.DhID, Command: r.Command}
	if r.Value != nil {
		v, err := json.Marshal(r.Value)
		if err != nil {
			return nil, fmt.Errorf("command: encode %s: %w", r.Command, err)
		}
		w.Value = v
	}
	return json.Marshal(w)
}

// Unmarshal decodes a record and its typed payload.
func Unmarshal(data []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, status.Errorf(status.InvalidArgument, "command: %v", err)
	}
	if w.DhID == "" {
		return Record{}, status.Errorf(status.InvalidArgument, "command: %s without dhId", w.Command)
	}

	r := Record{Type: w.Type, DhID: w.DhID, Command: w.Command}
	var err error
	switch w.Command {
	case Capture:
		var v []CaptureInfo
		err = decodeValue(w.Value, &v)
		r.Value = v
	case StopCapture:
		var v []int
		err = decodeValue(w.Value, &v)
		r.Value = v
	case ChannelNeg:
		var v ChannelInfo
		err = decodeValue(w.Value, &v)
		r.Value = v
	case UpdateMetadata, MetadataResult:
		var v []Setting
		err = decodeValue(w.Value, &v)
		r.Value = v
	case OpenChannel:
		var v OpenInfo
		err = decodeValue(w.Value, &v)
		r.Value = v
	case CloseChannel:
	case StateNotify:
		var v Event
		err = decodeValue(w.Value, &v)
		r.Value = v
	default:
		return Record{}, fmt.Errorf("%w %q", ErrUnknownCommand, w.Command)
	}
	if err != nil {
		return Record{}, status.Errorf(status.InvalidArgument, "command: %s value: %v", w.Command, err)
	}
	return r, nil
}

func decodeValue(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// NewCapture builds a CAPTURE record.
func NewCapture(dhID string, captures []hal.CaptureInfo) Record {
	infos := make([]CaptureInfo, 0, len(captures))
	for _, c := range captures {
		infos = append(infos, CaptureInfo{
			StreamIDs:       append([]int(nil), c.StreamIDs...),
			Width:           c.Width,
			Height:          c.Height,
			Format:          c.Format,
			Dataspace:       c.Dataspace,
			IsCapture:       c.IsCapture,
			EncodeType:      c.EncodeType,
			StreamType:      int(c.StreamType),
			FrameRate:       c.FrameRate,
			CaptureSettings: FromSettings(c.Settings),
		})
	}
	return Record{Type: TypeOperation, DhID: dhID, Command: Capture, Value: infos}
}

// NewStopCapture builds a STOP_CAPTURE record. No ids means every stream.
func NewStopCapture(dhID string, streamIDs []int) Record {
	return Record{Type: TypeOperation, DhID: dhID, Command: StopCapture, Value: append([]int{}, streamIDs...)}
}

// NewChannelNeg builds a CHANNEL_NEG record.
func NewChannelNeg(dhID string, info ChannelInfo) Record {
	return Record{Type: TypeOperation, DhID: dhID, Command: ChannelNeg, Value: info}
}

// NewUpdateMetadata builds an UPDATE_METADATA record.
func NewUpdateMetadata(dhID string, settings []hal.Setting) Record {
	return Record{Type: TypeOperation, DhID: dhID, Command: UpdateMetadata, Value: FromSettings(settings)}
}

// NewMetadataResult builds a METADATA_RESULT record.
func NewMetadataResult(dhID string, settings []hal.Setting) Record {
	return Record{Type: TypeMessage, DhID: dhID, Command: MetadataResult, Value: FromSettings(settings)}
}

// NewOpenChannel builds an OPEN_CHANNEL record.
func NewOpenChannel(dhID, sourceDevID string) Record {
	return Record{Type: TypeOperation, DhID: dhID, Command: OpenChannel, Value: OpenInfo{SourceDevID: sourceDevID}}
}

// NewCloseChannel builds a CLOSE_CHANNEL record.
func NewCloseChannel(dhID string) Record {
	return Record{Type: TypeOperation, DhID: dhID, Command: CloseChannel}
}

// NewStateNotify builds a STATE_NOTIFY record.
func NewStateNotify(dhID string, ev hal.HalEvent) Record {
	return Record{Type: TypeMessage, DhID: dhID, Command: StateNotify, Value: Event{
		EventType:   int(ev.Type),
		EventResult: ev.Result,
		Code:        int32(ev.Code),
		Content:     ev.Content,
	}}
}

// FromSettings converts hardware settings to their wire form.
func FromSettings(settings []hal.Setting) []Setting {
	out := make([]Setting, 0, len(settings))
	for _, s := range settings {
		out = append(out, Setting{Type: int(s.Type), Value: s.Value})
	}
	return out
}

// ToSettings converts wire settings to hardware settings.
func ToSettings(settings []Setting) []hal.Setting {
	out := make([]hal.Setting, 0, len(settings))
	for _, s := range settings {
		out = append(out, hal.Setting{Type: hal.SettingType(s.Type), Value: s.Value})
	}
	return out
}

// ToCaptureInfo converts a wire capture request to its hardware form.
func (c CaptureInfo) ToCaptureInfo() hal.CaptureInfo {
	return hal.CaptureInfo{
		StreamIDs:  append([]int(nil), c.StreamIDs...),
		Width:      c.Width,
		Height:     c.Height,
		Format:     c.Format,
		Dataspace:  c.Dataspace,
		IsCapture:  c.IsCapture,
		EncodeType: c.EncodeType,
		StreamType: hal.StreamType(c.StreamType),
		FrameRate:  c.FrameRate,
		Settings:   ToSettings(c.CaptureSettings),
	}
}

// HalEvent converts a STATE_NOTIFY payload to its hardware form.
func (e Event) HalEvent() hal.HalEvent {
	return hal.HalEvent{
		Type:    hal.EventType(e.EventType),
		Result:  e.EventResult,
		Code:    status.Code(e.Code),
		Content: e.Content,
	}
}
