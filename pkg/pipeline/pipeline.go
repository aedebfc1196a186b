package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/dcamera/internal/dispatch"
	"github.com/pion/dcamera/internal/logging"
	"github.com/pion/dcamera/internal/metrics"
	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/frame"
	"github.com/pion/dcamera/pkg/prop"
	"github.com/pion/dcamera/pkg/status"
)

var logger = logging.NewLogger("pipeline")

// OutputFunc receives the buffers leaving the last node.
type OutputFunc func([]*buffer.DataBuffer)

// Mode selects how ProcessData runs the chain.
type Mode int

const (
	// ModeSink runs the chain on the caller's goroutine.
	ModeSink Mode = iota
	// ModeSource queues input and runs the chain on the pipeline's own
	// goroutine, in arrival order.
	ModeSource
)

func (m Mode) String() string {
	if m == ModeSource {
		return "source"
	}
	return "sink"
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithName sets the name used in logs and metrics.
func WithName(name string) Option {
	return func(p *Pipeline) {
		p.name = name
	}
}

// WithErrorListener sets the callback invoked once when a node fails.
func WithErrorListener(fn func(error)) Option {
	return func(p *Pipeline) {
		p.onError = fn
	}
}

// WithScaler sets the algorithm used when the pipeline resizes frames.
func WithScaler(s Scaler) Option {
	return func(p *Pipeline) {
		p.scaler = s
	}
}

// WithFrameRateClock sets the clock of the frame rate controller built by
// Create.
func WithFrameRateClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

type job struct {
	bufs    []*buffer.DataBuffer
	flushed chan struct{}
}

// Pipeline owns an ordered chain of nodes.
type Pipeline struct {
	mode    Mode
	name    string
	onError func(error)
	scaler  Scaler
	clock   func() time.Time

	mu    sync.Mutex
	nodes []Node
	head  Node
	queue *dispatch.Queue[job]

	destroyed atomic.Bool
	failed    atomic.Bool
}

// NewSource creates a pipeline that processes input asynchronously.
func NewSource(opts ...Option) *Pipeline {
	return newPipeline(ModeSource, opts...)
}

// NewSink creates a pipeline that processes input on the caller's goroutine.
func NewSink(opts ...Option) *Pipeline {
	return newPipeline(ModeSink, opts...)
}

func newPipeline(mode Mode, opts ...Option) *Pipeline {
	p := &Pipeline{
		mode:  mode,
		name:  mode.String(),
		clock: time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Mode returns the dispatch mode.
func (p *Pipeline) Mode() Mode {
	return p.mode
}

type stage struct {
	node        Node
	source, out prop.Video
}

// Create builds the chain that turns frames described by source into frames
// described by target:
//
//	decode -> frame rate control -> scale -> encode
//
// A stage is added only when the pair needs it.
func (p *Pipeline) Create(source, target prop.Video, output OutputFunc) error {
	if err := source.Validate(); err != nil {
		return status.Errorf(status.InvalidArgument, "source: %v", err)
	}
	if err := target.Validate(); err != nil {
		return status.Errorf(status.InvalidArgument, "target: %v", err)
	}

	needScale := target.Width > 0 && target.Height > 0 &&
		(source.Width != target.Width || source.Height != target.Height)
	codecDiffers := source.Codec != target.Codec
	needDecode := source.Codec.Compressed() && (codecDiffers || needScale)
	needEncode := target.Codec.Compressed() && (codecDiffers || needScale)
	needRate := target.FrameRate == 0 || target.FrameRate < source.FrameRate

	var stages []stage
	cur := source
	if needDecode {
		raw := cur
		raw.Codec = frame.CodecRaw
		raw.FrameFormat = frame.FormatRGBA
		stages = append(stages, stage{NewDecodeNode(), cur, raw})
		cur = raw
	}
	if needRate {
		stages = append(stages, stage{NewFrameRateController(WithClock(p.clock)), cur, target})
		cur.FrameRate = target.FrameRate
	}
	if needScale {
		stages = append(stages, stage{NewScaleNode(p.scaler), cur, target})
		cur.Width, cur.Height = target.Width, target.Height
	}
	if needEncode {
		stages = append(stages, stage{NewEncodeNode(), cur, target})
	}

	return p.build(stages, output)
}

// CreateWithNodes builds a chain from caller supplied nodes. Every node is
// initialized with the same source and target.
func (p *Pipeline) CreateWithNodes(source, target prop.Video, nodes []Node, output OutputFunc) error {
	stages := make([]stage, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			return status.Errorf(status.InvalidArgument, "nil node")
		}
		stages = append(stages, stage{n, source, target})
	}
	return p.build(stages, output)
}

func (p *Pipeline) build(stages []stage, output OutputFunc) error {
	if p.destroyed.Load() {
		return status.ErrDisabledProcess
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.head != nil {
		return status.Errorf(status.AlreadyExists, "pipeline %s is already created", p.name)
	}

	nodes := make([]Node, 0, len(stages)+1)
	for _, s := range stages {
		if err := s.node.Init(s.source, s.out); err != nil {
			for _, n := range nodes {
				n.Release()
			}
			return fmt.Errorf("pipeline %s: %w", p.name, err)
		}
		if r, ok := s.node.(ErrorReporter); ok {
			r.SetErrorHandler(p.fail)
		}
		nodes = append(nodes, s.node)
	}
	nodes = append(nodes, &outputNode{fn: output})

	for i := 0; i < len(nodes)-1; i++ {
		nodes[i].SetNext(nodes[i+1])
	}

	p.nodes = nodes
	p.head = nodes[0]
	if p.mode == ModeSource {
		p.queue = dispatch.NewQueue(p.run)
	}
	logger.Debugf("pipeline %s created with %d nodes", p.name, len(stages))
	return nil
}

// Nodes returns the chain, excluding the terminal output node.
func (p *Pipeline) Nodes() []Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.nodes) == 0 {
		return nil
	}
	return append([]Node(nil), p.nodes[:len(p.nodes)-1]...)
}

// ProcessData pushes bufs into the head node. In source mode it only queues
// them.
func (p *Pipeline) ProcessData(bufs []*buffer.DataBuffer) error {
	if len(bufs) == 0 {
		return status.Errorf(status.InvalidArgument, "pipeline %s: empty input", p.name)
	}
	if p.destroyed.Load() || p.failed.Load() {
		return status.ErrDisabledProcess
	}

	p.mu.Lock()
	head, queue := p.head, p.queue
	p.mu.Unlock()
	if head == nil {
		return status.Errorf(status.InitError, "pipeline %s is not created", p.name)
	}

	if p.mode == ModeSink {
		if err := head.Process(bufs); err != nil {
			p.fail(err)
			return err
		}
		return nil
	}

	if err := queue.Post(job{bufs: append([]*buffer.DataBuffer(nil), bufs...)}); err != nil {
		if errors.Is(err, dispatch.ErrClosed) {
			return status.ErrDisabledProcess
		}
		return err
	}
	return nil
}

// Flush waits until input queued so far has left the pipeline, including
// output still owed by codec nodes. It must not be called from the output
// callback.
func (p *Pipeline) Flush() error {
	p.mu.Lock()
	nodes, queue := p.nodes, p.queue
	p.mu.Unlock()
	if nodes == nil {
		return status.Errorf(status.InitError, "pipeline %s is not created", p.name)
	}

	if queue != nil {
		flushed := make(chan struct{})
		if err := queue.Post(job{flushed: flushed}); err != nil {
			return status.ErrDisabledProcess
		}
		select {
		case <-flushed:
		case <-queue.Done():
		}
	}

	for _, n := range nodes {
		if c, ok := n.(*CodecNode); ok {
			if err := c.Flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Destroy releases every node. Input queued but not yet processed is
// discarded. It waits for the source goroutine to exit, so it must not be
// called from the output callback or the error listener.
func (p *Pipeline) Destroy() {
	if p.destroyed.Swap(true) {
		return
	}

	p.mu.Lock()
	nodes, queue := p.nodes, p.queue
	p.mu.Unlock()

	if queue != nil {
		queue.Close()
		<-queue.Done()
	}
	for _, n := range nodes {
		n.Release()
	}
	logger.Debugf("pipeline %s destroyed", p.name)
}

func (p *Pipeline) run(j job) {
	if j.flushed != nil {
		close(j.flushed)
		return
	}
	if p.destroyed.Load() || p.failed.Load() {
		return
	}
	if err := p.head.Process(j.bufs); err != nil {
		p.fail(err)
	}
}

// fail disables the pipeline and reports err once. Errors caused by Destroy
// itself are not reported.
func (p *Pipeline) fail(err error) {
	if p.destroyed.Load() || p.failed.Swap(true) {
		return
	}

	metrics.IncPipelineError(p.name)
	logger.Errorf("pipeline %s disabled: %v", p.name, err)
	if p.onError != nil {
		p.onError(err)
	}
}
