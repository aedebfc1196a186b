package codec

import (
	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/prop"
)

// OutputFunc receives one output buffer from an Engine, or the error that
// prevented producing it. Engines may call it from their own goroutine.
type OutputFunc func(buf *buffer.DataBuffer, err error)

// Engine is a video encoder or decoder driven by configure/feed/drain.
type Engine interface {
	// Configure prepares the engine to turn frames described by in into
	// frames described by out. Output is delivered to onOutput.
	Configure(in, out prop.Video, onOutput OutputFunc) error
	// Feed queues one input buffer. It does not wait for the output.
	Feed(buf *buffer.DataBuffer) error
	// Drain blocks until every fed buffer has been delivered to onOutput.
	Drain() error
	// Close releases the engine. Closing twice is not an error.
	Close() error
}

// Builder creates a fresh Engine.
type Builder func() (Engine, error)
