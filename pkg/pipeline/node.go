// Package pipeline implements the frame processing chain: an ordered list of
// nodes, each handing its output to its successor, with the last one
// delivering to the pipeline's output callback.
package pipeline

import (
	"sync/atomic"

	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/prop"
	"github.com/pion/dcamera/pkg/status"
)

// Node is one transform stage.
type Node interface {
	// Init prepares the node for frames described by source that should come
	// out of the pipeline as described by target.
	Init(source, target prop.Video) error
	// Process consumes bufs and forwards whatever it produces to the next node.
	Process(bufs []*buffer.DataBuffer) error
	// Release frees resources. After Release, Process fails with
	// status.ErrDisabledProcess.
	Release()
	// SetNext links the successor.
	SetNext(next Node)
}

// ErrorReporter is implemented by nodes that fail asynchronously, after
// Process has returned.
type ErrorReporter interface {
	SetErrorHandler(func(error))
}

// link is embedded by nodes to get successor handling and the released flag.
type link struct {
	next     Node
	released atomic.Bool
}

func (l *link) SetNext(next Node) {
	l.next = next
}

func (l *link) forward(bufs []*buffer.DataBuffer) error {
	if l.next == nil || len(bufs) == 0 {
		return nil
	}
	return l.next.Process(bufs)
}

func (l *link) checkReleased() error {
	if l.released.Load() {
		return status.ErrDisabledProcess
	}
	return nil
}

// outputNode terminates every chain and hands buffers to the pipeline owner.
type outputNode struct {
	link
	fn OutputFunc
}

func (n *outputNode) Init(_, _ prop.Video) error { return nil }

func (n *outputNode) Process(bufs []*buffer.DataBuffer) error {
	if err := n.checkReleased(); err != nil {
		return err
	}
	if n.fn != nil {
		n.fn(bufs)
	}
	return nil
}

func (n *outputNode) Release() {
	n.released.Store(true)
}
