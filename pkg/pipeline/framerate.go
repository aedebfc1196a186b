package pipeline

import (
	"math"
	"sync"
	"time"

	"github.com/pion/dcamera/internal/logging"
	"github.com/pion/dcamera/internal/metrics"
	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/prop"
	"github.com/pion/dcamera/pkg/status"
)

const (
	frameTimesWindow = 60
	// A gap longer than this starts a new burst and forgets the history.
	burstResetMs = 700
	// Only arrivals this recent count toward the rate estimate.
	rateSearchWindowMs = 2000
	// Arrivals slower than target*fastFrameRatio are treated as on-rate.
	fastFrameRatio = 1.1
	// Every correctionPeriod-th fast frame bumps the estimate by one.
	correctionPeriod = 4
	// Fewer than target/minFramesDivisor arrivals are too few to estimate.
	minFramesDivisor = 3
	minFramesForRate = 2
	// Divisor applied to the overshoot remainder after a drop.
	overshootRemainderDivisor = 3
)

var frcLogger = logging.NewLogger("pipeline/framerate")

// FrameRateController drops frames so the forwarded rate stays within the
// target frame rate. Drops are spread uniformly instead of in bursts.
type FrameRateController struct {
	link

	clock func() time.Time

	mu     sync.Mutex
	target int
	// times[0] is the newest arrival, in ms.
	times [frameTimesWindow]int64
	count int

	factor    float64
	factorRun int

	// keepCount counts admitted frames between drops while the overshoot is
	// under half the incoming rate; dropCount counts dropped frames between
	// admits otherwise.
	keepCount   int
	dropCount   int
	overshootMd int
}

// FrameRateOption configures a FrameRateController.
type FrameRateOption func(*FrameRateController)

// WithClock replaces time.Now. Only millisecond resolution is used.
func WithClock(clock func() time.Time) FrameRateOption {
	return func(c *FrameRateController) {
		c.clock = clock
	}
}

// NewFrameRateController creates a controller. The target rate is taken
// from the target config passed to Init.
func NewFrameRateController(opts ...FrameRateOption) *FrameRateController {
	c := &FrameRateController{clock: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *FrameRateController) Init(_, target prop.Video) error {
	if target.FrameRate < 0 {
		return status.Errorf(status.InvalidArgument, "negative target frame rate %g", target.FrameRate)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	c.target = int(math.Round(float64(target.FrameRate)))
	c.released.Store(false)
	frcLogger.Debugf("target frame rate %d", c.target)
	return nil
}

// SetTargetFrameRate changes the target at runtime. The arrival history is
// kept.
func (c *FrameRateController) SetTargetFrameRate(fps int) {
	if fps < 0 {
		fps = 0
	}
	c.mu.Lock()
	c.target = fps
	c.mu.Unlock()
}

func (c *FrameRateController) Process(bufs []*buffer.DataBuffer) error {
	if err := c.checkReleased(); err != nil {
		return err
	}

	nowMs := c.clock().UnixMilli()

	kept := bufs[:0:0]
	c.mu.Lock()
	for _, b := range bufs {
		if c.shouldDrop(nowMs) {
			metrics.IncFrame("dropped")
			continue
		}
		metrics.IncFrame("forwarded")
		kept = append(kept, b)
	}
	c.mu.Unlock()

	return c.forward(kept)
}

func (c *FrameRateController) Release() {
	c.released.Store(true)

	c.mu.Lock()
	c.reset()
	c.mu.Unlock()
}

func (c *FrameRateController) reset() {
	c.times = [frameTimesWindow]int64{}
	c.count = 0
	c.factor = 0
	c.factorRun = 0
	c.keepCount = 0
	c.dropCount = 0
	c.overshootMd = 0
}

// shouldDrop records an arrival at nowMs and decides whether to drop it.
func (c *FrameRateController) shouldDrop(nowMs int64) bool {
	if c.target == 0 {
		return true
	}

	c.updateFrameTimes(nowMs)
	c.updateCorrectionFactor()
	incoming := int(math.Floor(c.estimateFrameRate(nowMs)))
	return c.dropUniformly(incoming)
}

func (c *FrameRateController) updateFrameTimes(nowMs int64) {
	if c.count > 0 && nowMs-c.times[0] > burstResetMs {
		c.times = [frameTimesWindow]int64{}
		c.count = 0
	}

	n := c.count
	if n == frameTimesWindow {
		n--
	}
	copy(c.times[1:n+1], c.times[:n])
	c.times[0] = nowMs
	c.count = n + 1
}

func (c *FrameRateController) updateCorrectionFactor() {
	if c.count < 2 {
		c.factor = 0
		return
	}

	span := c.times[0] - c.times[1]
	if span > 0 && 1000/float64(span) <= fastFrameRatio*float64(c.target) {
		c.factor = 0.5
		c.factorRun = 0
		return
	}

	c.factorRun++
	if c.factorRun%correctionPeriod == 0 {
		c.factor = 1.0
	} else {
		c.factor = 0
	}
}

func (c *FrameRateController) estimateFrameRate(nowMs int64) float64 {
	valid := 0
	for i := 0; i < c.count; i++ {
		if nowMs-c.times[i] > rateSearchWindowMs {
			break
		}
		valid++
	}
	if valid == 0 {
		return 0
	}

	elapsed := nowMs - c.times[valid-1]
	if float64(valid) > float64(c.target)/minFramesDivisor && valid > minFramesForRate && elapsed > 0 {
		return float64(valid)*1000/float64(elapsed) + c.factor
	}
	return float64(valid)
}

func (c *FrameRateController) dropUniformly(incoming int) bool {
	if incoming <= c.target {
		return false
	}

	overshoot := c.overshootMd + (incoming - c.target)
	if overshoot < 0 {
		overshoot = 0
		c.overshootMd = 0
	}

	if overshoot > 0 && 2*overshoot < incoming {
		c.dropCount = 0
		dropVar := incoming / overshoot
		if c.keepCount >= dropVar {
			c.overshootMd = -(incoming % overshoot) / overshootRemainderDivisor
			c.keepCount = 1
			return true
		}
		c.keepCount++
		return false
	}

	c.keepCount = 0
	dropVar := overshoot / c.target
	if c.dropCount < dropVar {
		c.dropCount++
		return true
	}
	c.overshootMd = overshoot % c.target
	c.dropCount = 0
	return false
}
