package media

import (
	"encoding/binary"
	"sync"

	"github.com/pion/dcamera/internal/logging"
	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/status"
	"github.com/pion/rtp"
)

var logger = logging.NewLogger("media")

// FrameFunc receives a reassembled frame.
type FrameFunc func(streamID int, buf *buffer.DataBuffer)

type assembly struct {
	started bool
	nextSeq uint16
	data    []byte
	timeUs  int64
	width   int64
	height  int64
}

// Receiver reassembles frames from packets produced by a Sender. Frames
// missing a packet are dropped.
type Receiver struct {
	onFrame FrameFunc

	mu      sync.Mutex
	streams map[uint32]*assembly
	dropped int
}

// NewReceiver creates a receiver handing complete frames to onFrame.
func NewReceiver(onFrame FrameFunc) *Receiver {
	return &Receiver{onFrame: onFrame, streams: make(map[uint32]*assembly)}
}

// Dropped returns the number of incomplete frames discarded so far.
func (r *Receiver) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Receive consumes one packet. Handle wraps it as a channel.ReceiveFunc.
func (r *Receiver) Receive(data []byte) error {
	var p rtp.Packet
	if err := p.Unmarshal(data); err != nil {
		return status.Errorf(status.InvalidArgument, "media: %v", err)
	}
	if len(p.Payload) < payloadHeaderSize {
		return status.Errorf(status.InvalidArgument, "media: packet without payload header")
	}
	flags := p.Payload[0]

	r.mu.Lock()
	a, ok := r.streams[p.SSRC]
	if !ok {
		a = &assembly{}
		r.streams[p.SSRC] = a
	}

	if flags&flagStart != 0 {
		if a.started {
			r.dropped++
			logger.Warnf("stream %d: frame truncated by a new start", p.SSRC)
		}
		*a = assembly{started: true, data: a.data[:0]}
		if ext := p.Header.GetExtension(extTimeUs); len(ext) == 8 {
			a.timeUs = int64(binary.BigEndian.Uint64(ext))
		}
		if ext := p.Header.GetExtension(extSize); len(ext) == 8 {
			a.width = int64(binary.BigEndian.Uint32(ext[:4]))
			a.height = int64(binary.BigEndian.Uint32(ext[4:]))
		}
	} else if !a.started || p.SequenceNumber != a.nextSeq {
		if a.started {
			r.dropped++
			logger.Warnf("stream %d: lost packet before seq %d", p.SSRC, p.SequenceNumber)
		}
		a.started = false
		r.mu.Unlock()
		return nil
	}

	a.data = append(a.data, p.Payload[payloadHeaderSize:]...)
	a.nextSeq = p.SequenceNumber + 1

	if !p.Marker && flags&flagEnd == 0 {
		r.mu.Unlock()
		return nil
	}

	buf := buffer.Wrap(append([]byte(nil), a.data...))
	buf.SetInt64(buffer.KeyTimeUs, a.timeUs)
	buf.SetInt64(buffer.KeyStreamID, int64(p.SSRC))
	if a.width > 0 && a.height > 0 {
		buf.SetInt64(buffer.KeyWidth, a.width)
		buf.SetInt64(buffer.KeyHeight, a.height)
	}
	a.started = false
	r.mu.Unlock()

	if r.onFrame != nil {
		r.onFrame(int(p.SSRC), buf)
	}
	return nil
}

// Handle adapts Receive to a channel receive callback, logging bad packets.
func (r *Receiver) Handle(data []byte) {
	if err := r.Receive(data); err != nil {
		logger.Warnf("%v", err)
	}
}
