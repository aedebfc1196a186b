package channel

import (
	"context"
	"sync"

	"github.com/pion/dcamera/internal/logging"
	"github.com/pion/webrtc/v4"
)

var logger = logging.NewLogger("channel")

// DataChannel is the part of *webrtc.DataChannel used by WebRTC.
type DataChannel interface {
	Label() string
	ReadyState() webrtc.DataChannelState
	OnOpen(f func())
	OnClose(f func())
	OnMessage(f func(msg webrtc.DataChannelMessage))
	Send(data []byte) error
	Close() error
}

var _ DataChannel = (*webrtc.DataChannel)(nil)

// WebRTC adapts a WebRTC data channel to Channel.
type WebRTC struct {
	dc DataChannel

	mu     sync.Mutex
	opened bool
	closed bool
}

// NewWebRTC wraps dc. Ownership of dc passes to the returned channel.
func NewWebRTC(dc DataChannel) *WebRTC {
	return &WebRTC{dc: dc}
}

func (w *WebRTC) Open(ctx context.Context, onReceive ReceiveFunc) error {
	w.mu.Lock()
	if w.opened {
		w.mu.Unlock()
		return ErrAlreadyOpen
	}
	w.opened = true
	w.mu.Unlock()

	label := w.dc.Label()
	w.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if onReceive != nil {
			onReceive(msg.Data)
		}
	})
	w.dc.OnClose(func() {
		logger.Infof("data channel %s closed", label)
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
	})

	if w.dc.ReadyState() == webrtc.DataChannelStateOpen {
		return nil
	}

	ready := make(chan struct{})
	var once sync.Once
	w.dc.OnOpen(func() {
		once.Do(func() { close(ready) })
	})
	select {
	case <-ready:
		logger.Debugf("data channel %s open", label)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *WebRTC) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	usable := w.opened && !w.closed
	w.mu.Unlock()
	if !usable || w.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotOpen
	}
	return w.dc.Send(data)
}

func (w *WebRTC) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	return w.dc.Close()
}
