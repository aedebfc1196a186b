package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/codec"
	"github.com/pion/dcamera/pkg/prop"
	"github.com/pion/dcamera/pkg/status"
)

const bitrateWindow = time.Second

// CodecNode feeds frames to a codec engine and forwards the engine output.
// Output arrives on the engine's goroutine, so the count of outputs still
// owed by the engine is guarded by a mutex.
type CodecNode struct {
	link

	encode  bool
	builder codec.Builder
	engine  codec.Engine
	bitrate *codec.BitrateTracker

	mu      sync.Mutex
	pending int
	onError func(error)
}

// CodecNodeOption configures a CodecNode.
type CodecNodeOption func(*CodecNode)

// WithEngineBuilder overrides the registry lookup.
func WithEngineBuilder(b codec.Builder) CodecNodeOption {
	return func(n *CodecNode) {
		n.builder = b
	}
}

// NewEncodeNode creates a node that encodes into the target codec.
func NewEncodeNode(opts ...CodecNodeOption) *CodecNode {
	return newCodecNode(true, opts...)
}

// NewDecodeNode creates a node that decodes the source codec.
func NewDecodeNode(opts ...CodecNodeOption) *CodecNode {
	return newCodecNode(false, opts...)
}

func newCodecNode(encode bool, opts ...CodecNodeOption) *CodecNode {
	n := &CodecNode{
		encode:  encode,
		bitrate: codec.NewBitrateTracker(bitrateWindow),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *CodecNode) SetErrorHandler(fn func(error)) {
	n.mu.Lock()
	n.onError = fn
	n.mu.Unlock()
}

func (n *CodecNode) Init(source, target prop.Video) error {
	var err error
	engine := codec.Engine(nil)
	switch {
	case n.builder != nil:
		engine, err = n.builder()
	case n.encode:
		engine, err = codec.BuildEncoder(target.Codec)
	default:
		engine, err = codec.BuildDecoder(source.Codec)
	}
	if err != nil {
		return status.Errorf(status.InitError, "%v", err)
	}

	in, out := source, target
	if !n.encode {
		// A decoder produces raw frames at the source resolution.
		out = source
		out.Codec = target.Codec
		out.FrameFormat = target.FrameFormat
	}
	if err := engine.Configure(in, out, n.onOutput); err != nil {
		engine.Close()
		return status.Errorf(status.InitError, "configure %s: %v", n.name(), err)
	}

	n.engine = engine
	n.released.Store(false)
	return nil
}

func (n *CodecNode) Process(bufs []*buffer.DataBuffer) error {
	if err := n.checkReleased(); err != nil {
		return err
	}

	for _, b := range bufs {
		n.mu.Lock()
		n.pending++
		n.mu.Unlock()

		if err := n.engine.Feed(b); err != nil {
			n.mu.Lock()
			n.pending--
			n.mu.Unlock()
			return status.Errorf(status.BadOperate, "%s feed: %v", n.name(), err)
		}
	}
	return nil
}

// Pending returns the number of fed frames whose output has not arrived yet.
func (n *CodecNode) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pending
}

// Bitrate returns the output bitrate in bits per second over the last second.
func (n *CodecNode) Bitrate() float64 {
	return n.bitrate.GetBitrate()
}

// Flush waits until every fed frame has been forwarded.
func (n *CodecNode) Flush() error {
	if n.engine == nil {
		return status.ErrInitError
	}
	return n.engine.Drain()
}

func (n *CodecNode) Release() {
	if n.released.Swap(true) {
		return
	}
	if n.engine != nil {
		n.engine.Close()
	}
	n.bitrate.Reset()
}

func (n *CodecNode) onOutput(buf *buffer.DataBuffer, err error) {
	n.mu.Lock()
	n.pending--
	onError := n.onError
	n.mu.Unlock()

	if err == nil {
		n.bitrate.AddFrame(buf.Size(), time.Now())
		err = n.forward([]*buffer.DataBuffer{buf})
	}
	if err != nil && onError != nil {
		onError(fmt.Errorf("%s output: %w", n.name(), err))
	}
}

func (n *CodecNode) name() string {
	if n.encode {
		return "encoder"
	}
	return "decoder"
}
