package session

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/channel"
	"github.com/pion/dcamera/pkg/frame"
	"github.com/pion/dcamera/pkg/hal"
	"github.com/pion/dcamera/pkg/media"
	"github.com/pion/dcamera/pkg/pipeline"
	"github.com/pion/dcamera/pkg/prop"
	"github.com/pion/dcamera/pkg/status"
)

// Input receives media for configured streams, runs every stream through a
// sink pipeline and hands the result to the hardware layer.
type Input struct {
	key      hal.SessionKey
	consumer hal.BufferConsumer
	scaler   pipeline.Scaler
	onError  func(streamID int, err error)

	mu        sync.Mutex
	ch        channel.Channel
	receiver  *media.Receiver
	streams   map[int]hal.StreamInfo
	pipelines map[int]*pipeline.Pipeline
}

// NewInput creates an input. consumer may be nil, in which case frames are
// processed and then discarded.
func NewInput(key hal.SessionKey, consumer hal.BufferConsumer, scaler pipeline.Scaler, onError func(int, error)) *Input {
	return &Input{
		key:       key,
		consumer:  consumer,
		scaler:    scaler,
		onError:   onError,
		streams:   make(map[int]hal.StreamInfo),
		pipelines: make(map[int]*pipeline.Pipeline),
	}
}

// OpenChannel starts receiving media on ch.
func (in *Input) OpenChannel(ctx context.Context, ch channel.Channel) error {
	in.mu.Lock()
	if in.ch != nil {
		in.mu.Unlock()
		return status.Errorf(status.OpenConflict, "data channel of %s is already open", in.key)
	}
	receiver := media.NewReceiver(in.onFrame)
	in.ch, in.receiver = ch, receiver
	in.mu.Unlock()

	if err := ch.Open(ctx, receiver.Handle); err != nil {
		in.mu.Lock()
		in.ch, in.receiver = nil, nil
		in.mu.Unlock()
		_ = ch.Close()
		return status.Errorf(status.BadOperate, "open data channel: %v", err)
	}
	return nil
}

// CloseChannel stops receiving media.
func (in *Input) CloseChannel() error {
	in.mu.Lock()
	ch := in.ch
	in.ch, in.receiver = nil, nil
	in.mu.Unlock()
	if ch == nil {
		return nil
	}
	if err := ch.Close(); err != nil {
		return status.Errorf(status.BadOperate, "close data channel: %v", err)
	}
	return nil
}

// ConfigStreams adds or replaces stream descriptors.
func (in *Input) ConfigStreams(streams []hal.StreamInfo) error {
	seen := make(map[int]bool, len(streams))
	for _, s := range streams {
		if s.StreamID < 0 || s.Width <= 0 || s.Height <= 0 {
			return status.Errorf(status.InvalidArgument, "invalid stream %+v", s)
		}
		if seen[s.StreamID] {
			return status.Errorf(status.InvalidArgument, "duplicate stream id %d", s.StreamID)
		}
		seen[s.StreamID] = true
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	for _, s := range streams {
		if _, running := in.pipelines[s.StreamID]; running {
			return status.Errorf(status.WrongState, "stream %d is capturing", s.StreamID)
		}
	}
	for _, s := range streams {
		in.streams[s.StreamID] = s
	}
	return nil
}

// ReleaseStreams forgets the given streams and reports whether none is
// left.
func (in *Input) ReleaseStreams(ids []int) (bool, error) {
	in.mu.Lock()
	for _, id := range ids {
		if _, ok := in.streams[id]; !ok {
			in.mu.Unlock()
			return false, status.Errorf(status.NotFound, "stream %d is not configured", id)
		}
	}

	var stopped []*pipeline.Pipeline
	for _, id := range ids {
		delete(in.streams, id)
		if p, ok := in.pipelines[id]; ok {
			stopped = append(stopped, p)
			delete(in.pipelines, id)
		}
	}
	empty := len(in.streams) == 0
	in.mu.Unlock()

	for _, p := range stopped {
		p.Destroy()
	}
	return empty, nil
}

// ReleaseAllStreams forgets every stream.
func (in *Input) ReleaseAllStreams() {
	in.mu.Lock()
	ids := make([]int, 0, len(in.streams))
	for id := range in.streams {
		ids = append(ids, id)
	}
	in.mu.Unlock()

	_, _ = in.ReleaseStreams(ids)
}

// StreamIDs returns the configured stream ids in ascending order.
func (in *Input) StreamIDs() []int {
	in.mu.Lock()
	defer in.mu.Unlock()
	ids := make([]int, 0, len(in.streams))
	for id := range in.streams {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// StartCapture builds one sink pipeline per captured stream. Frames arrive
// encoded as described by the capture and leave as the stream asks.
func (in *Input) StartCapture(captures []hal.CaptureInfo) error {
	if len(captures) == 0 {
		return status.Errorf(status.InvalidArgument, "no capture to start")
	}

	type plan struct {
		id             int
		source, target prop.Video
	}
	var plans []plan
	planned := make(map[int]bool)

	in.mu.Lock()
	for _, c := range captures {
		if len(c.StreamIDs) == 0 {
			in.mu.Unlock()
			return status.Errorf(status.InvalidArgument, "capture without stream ids")
		}
		for _, id := range c.StreamIDs {
			s, ok := in.streams[id]
			if !ok {
				in.mu.Unlock()
				return status.Errorf(status.NotFound, "stream %d is not configured", id)
			}
			if _, running := in.pipelines[id]; running || planned[id] {
				in.mu.Unlock()
				return status.Errorf(status.AlreadyExists, "stream %d is already capturing", id)
			}
			planned[id] = true
			plans = append(plans, plan{id: id, source: captureProp(c, s), target: streamProp(c, s)})
		}
	}
	in.mu.Unlock()

	created := make(map[int]*pipeline.Pipeline, len(plans))
	for _, pl := range plans {
		id := pl.id
		p := pipeline.NewSink(
			pipeline.WithName(in.key.String()+"/"+strconv.Itoa(id)),
			pipeline.WithScaler(in.scaler),
			pipeline.WithErrorListener(func(err error) {
				if in.onError != nil {
					in.onError(id, err)
				}
			}),
		)
		if err := p.Create(pl.source, pl.target, func(bufs []*buffer.DataBuffer) {
			in.deliver(id, bufs)
		}); err != nil {
			for _, c := range created {
				c.Destroy()
			}
			return err
		}
		created[id] = p
	}

	in.mu.Lock()
	for id, p := range created {
		in.pipelines[id] = p
	}
	in.mu.Unlock()
	return nil
}

// StopCapture destroys the pipelines of ids, all when ids is empty, and
// reports whether no capture is left.
func (in *Input) StopCapture(ids []int) bool {
	in.mu.Lock()
	var stopped []*pipeline.Pipeline
	if len(ids) == 0 {
		for id, p := range in.pipelines {
			stopped = append(stopped, p)
			delete(in.pipelines, id)
		}
	}
	for _, id := range ids {
		if p, ok := in.pipelines[id]; ok {
			stopped = append(stopped, p)
			delete(in.pipelines, id)
		}
	}
	idle := len(in.pipelines) == 0
	in.mu.Unlock()

	for _, p := range stopped {
		p.Destroy()
	}
	return idle
}

// Capturing reports whether any stream has a running pipeline.
func (in *Input) Capturing() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pipelines) > 0
}

func (in *Input) onFrame(streamID int, buf *buffer.DataBuffer) {
	in.mu.Lock()
	p := in.pipelines[streamID]
	in.mu.Unlock()
	if p == nil {
		logger.Debugf("%s: frame for idle stream %d dropped", in.key, streamID)
		return
	}
	if err := p.ProcessData([]*buffer.DataBuffer{buf}); err != nil {
		logger.Debugf("%s: stream %d: %v", in.key, streamID, err)
	}
}

func (in *Input) deliver(streamID int, bufs []*buffer.DataBuffer) {
	if in.consumer == nil {
		return
	}
	for _, b := range bufs {
		b.SetInt64(buffer.KeyStreamID, int64(streamID))
		if err := in.consumer.DeliverBuffer(in.key, streamID, b); err != nil {
			logger.Warnf("%s: deliver stream %d: %v", in.key, streamID, err)
		}
	}
}

// DefaultFrameRate is assumed for captures that do not name a rate.
const DefaultFrameRate = 30

func captureRate(c hal.CaptureInfo) float32 {
	if c.FrameRate > 0 {
		return c.FrameRate
	}
	return DefaultFrameRate
}

// captureProp describes the frames the peer sends for stream s.
func captureProp(c hal.CaptureInfo, s hal.StreamInfo) prop.Video {
	p := prop.Video{
		Width:       c.Width,
		Height:      c.Height,
		FrameRate:   captureRate(c),
		FrameFormat: frame.FormatRGBA,
		Codec:       c.EncodeType,
	}
	if p.Width == 0 || p.Height == 0 {
		p.Width, p.Height = s.Width, s.Height
	}
	if p.Codec == "" {
		p.Codec = frame.CodecRaw
	}
	return p
}

// streamProp describes the frames the hardware layer wants for stream s.
func streamProp(c hal.CaptureInfo, s hal.StreamInfo) prop.Video {
	p := prop.Video{
		Width:       s.Width,
		Height:      s.Height,
		FrameRate:   captureRate(c),
		FrameFormat: frame.FormatRGBA,
		Codec:       s.EncodeType,
	}
	if p.Codec == "" {
		p.Codec = frame.CodecRaw
	}
	return p
}
