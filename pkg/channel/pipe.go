package channel

import (
	"context"
	"sync"

	"github.com/pion/dcamera/internal/dispatch"
)

// PipeEnd is one end of an in-process channel pair.
type PipeEnd struct {
	mu    sync.Mutex
	peer  *PipeEnd
	queue *dispatch.Queue[[]byte]
}

// NewPipe returns two connected ends. Messages sent on one are received by
// the other, asynchronously and in order.
func NewPipe() (*PipeEnd, *PipeEnd) {
	a, b := &PipeEnd{}, &PipeEnd{}
	a.peer, b.peer = b, a
	return a, b
}

func (p *PipeEnd) Open(ctx context.Context, onReceive ReceiveFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue != nil {
		return ErrAlreadyOpen
	}
	p.queue = dispatch.NewQueue(func(data []byte) {
		if onReceive != nil {
			onReceive(data)
		}
	})
	return nil
}

func (p *PipeEnd) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.isOpen() {
		return ErrNotOpen
	}

	peer := p.peer
	peer.mu.Lock()
	q := peer.queue
	peer.mu.Unlock()
	if q == nil {
		return ErrPeerNotOpen
	}
	if err := q.Post(append([]byte(nil), data...)); err != nil {
		return ErrPeerNotOpen
	}
	return nil
}

// Close stops delivery and waits for the receive goroutine to exit. It must
// not be called from the receive callback.
func (p *PipeEnd) Close() error {
	p.mu.Lock()
	q := p.queue
	p.mu.Unlock()
	if q == nil {
		return nil
	}
	q.Close()
	<-q.Done()
	return nil
}

func (p *PipeEnd) isOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		return false
	}
	select {
	case <-p.queue.Done():
		return false
	default:
		return true
	}
}
