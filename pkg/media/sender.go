package media

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/channel"
	"github.com/pion/dcamera/pkg/codec"
	"github.com/pion/dcamera/pkg/status"
	"github.com/pion/rtp"
)

const (
	// DefaultMTU bounds the size of one packet.
	DefaultMTU = 1200
	// DefaultPayloadType is a dynamic RTP payload type.
	DefaultPayloadType = 96

	videoClockRate = 90000
)

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithMTU sets the packet size limit.
func WithMTU(mtu uint16) SenderOption {
	return func(s *Sender) {
		s.mtu = mtu
	}
}

// WithPayloadType sets the RTP payload type.
func WithPayloadType(pt uint8) SenderOption {
	return func(s *Sender) {
		s.payloadType = pt
	}
}

type outStream struct {
	mu         sync.Mutex
	packetizer rtp.Packetizer
	samples    func(timeUs int64) uint32
}

// Sender packetizes frames and writes the packets to a channel. Each stream
// id is sent as its own SSRC.
type Sender struct {
	ch          channel.Channel
	mtu         uint16
	payloadType uint8
	now         func() time.Time

	mu      sync.Mutex
	streams map[int]*outStream
}

// NewSender creates a sender writing to ch.
func NewSender(ch channel.Channel, opts ...SenderOption) *Sender {
	s := &Sender{
		ch:          ch,
		mtu:         DefaultMTU,
		payloadType: DefaultPayloadType,
		now:         time.Now,
		streams:     make(map[int]*outStream),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Send writes buf as one frame of streamID. The frame timestamp comes from
// the buffer's timeUs meta, or the current time when it has none.
func (s *Sender) Send(ctx context.Context, streamID int, buf *buffer.DataBuffer) error {
	if streamID < 0 {
		return status.Errorf(status.InvalidArgument, "media: invalid stream id %d", streamID)
	}
	if buf == nil || buf.Size() == 0 {
		return status.Errorf(status.InvalidArgument, "media: empty frame")
	}
	if int(s.mtu) <= 12+extensionOverhead+payloadHeaderSize {
		return status.Errorf(status.InvalidArgument, "media: mtu %d too small", s.mtu)
	}

	st := s.stream(streamID)
	st.mu.Lock()
	defer st.mu.Unlock()

	timeUs, ok := buf.FindInt64(buffer.KeyTimeUs)
	if !ok {
		timeUs = s.now().UnixMicro()
	}

	// Advance before packetizing so the frame carries its own timestamp.
	st.packetizer.SkipSamples(st.samples(timeUs))
	pkts := st.packetizer.Packetize(buf.Data(), 0)
	if len(pkts) == 0 {
		return nil
	}

	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(timeUs))
	if err := pkts[0].Header.SetExtension(extTimeUs, ts); err != nil {
		return fmt.Errorf("media: %w", err)
	}
	w, _ := buf.FindInt64(buffer.KeyWidth)
	h, _ := buf.FindInt64(buffer.KeyHeight)
	size := make([]byte, 8)
	binary.BigEndian.PutUint32(size[:4], uint32(w))
	binary.BigEndian.PutUint32(size[4:], uint32(h))
	if err := pkts[0].Header.SetExtension(extSize, size); err != nil {
		return fmt.Errorf("media: %w", err)
	}

	for _, p := range pkts {
		data, err := p.Marshal()
		if err != nil {
			return fmt.Errorf("media: marshal packet: %w", err)
		}
		if err := s.ch.Send(ctx, data); err != nil {
			return status.Errorf(status.BadOperate, "media: send stream %d: %v", streamID, err)
		}
	}
	return nil
}

func (s *Sender) stream(id int) *outStream {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[id]
	if !ok {
		st = &outStream{
			packetizer: rtp.NewPacketizer(
				s.mtu-extensionOverhead,
				s.payloadType,
				uint32(id),
				framePayloader{},
				rtp.NewRandomSequencer(),
				videoClockRate,
			),
			samples: codec.NewTimestampSampler(videoClockRate),
		}
		s.streams[id] = st
	}
	return st
}
