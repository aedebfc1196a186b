// Package channel abstracts the message channels a session uses to talk to
// its remote peer: one for control records and one per media stream.
package channel

import (
	"context"
	"errors"
)

var (
	// ErrNotOpen is returned by Send before Open or after Close.
	ErrNotOpen = errors.New("channel: not open")
	// ErrPeerNotOpen is returned by Send when the other end cannot receive.
	ErrPeerNotOpen = errors.New("channel: peer is not open")
	// ErrAlreadyOpen is returned by a second Open.
	ErrAlreadyOpen = errors.New("channel: already open")
)

// ReceiveFunc is called for every message received, in order, on a goroutine
// owned by the channel.
type ReceiveFunc func(data []byte)

// Channel carries opaque messages to a peer.
type Channel interface {
	// Open starts delivering received messages to onReceive. It blocks until
	// the channel can send or ctx is done.
	Open(ctx context.Context, onReceive ReceiveFunc) error
	Send(ctx context.Context, data []byte) error
	Close() error
}
