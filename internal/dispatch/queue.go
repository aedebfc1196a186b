// Package dispatch provides the single-consumer event queue used by sessions
// and source pipelines. Producers never block; exactly one goroutine drains
// the queue in FIFO order.
package dispatch

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Post after Close has been called.
var ErrClosed = errors.New("dispatch: queue is closed")

// Queue is an unbounded FIFO drained by one goroutine that calls the handler
// for every posted item. A handler may Post to its own queue.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	closed  bool
	handler func(T)

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewQueue starts the consumer goroutine and returns the queue.
func NewQueue[T any](handler func(T)) *Queue[T] {
	q := &Queue[T]{
		handler: handler,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Post appends item to the queue. It never blocks.
func (q *Queue[T]) Post(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of items waiting to be handled.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting items and discards the ones not yet handled. The item
// being handled, if any, runs to completion. Close does not wait for the
// consumer, so it is safe to call from inside the handler; use Done to wait.
func (q *Queue[T]) Close() {
	q.Stop()
}

// Stop is Close that returns the discarded items in posting order. Only the
// first call returns them.
func (q *Queue[T]) Stop() []T {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	pending := q.items
	q.items = nil
	q.mu.Unlock()

	close(q.stop)
	return pending
}

// Done is closed once the consumer goroutine has exited.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

func (q *Queue[T]) run() {
	defer close(q.done)

	for {
		item, ok := q.next()
		if !ok {
			return
		}
		q.handler(item)
	}
}

func (q *Queue[T]) next() (T, bool) {
	var zero T
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return zero, false
		}
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.stop:
		}
	}
}
