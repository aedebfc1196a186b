package codec

import (
	"sync"
	"time"
)

// BitrateTracker computes the bitrate of encoded output over a sliding
// window. It is safe for concurrent use since engines deliver output on
// their own goroutine.
type BitrateTracker struct {
	mu         sync.Mutex
	windowSize time.Duration
	buffer     []int
	times      []time.Time
}

func NewBitrateTracker(windowSize time.Duration) *BitrateTracker {
	return &BitrateTracker{
		windowSize: windowSize,
	}
}

func (bt *BitrateTracker) AddFrame(sizeBytes int, timestamp time.Time) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.buffer = append(bt.buffer, sizeBytes)
	bt.times = append(bt.times, timestamp)

	// Remove old entries outside the window
	cutoff := timestamp.Add(-bt.windowSize)
	i := 0
	for ; i < len(bt.times); i++ {
		if bt.times[i].After(cutoff) {
			break
		}
	}
	bt.buffer = bt.buffer[i:]
	bt.times = bt.times[i:]
}

// GetBitrate returns bits per second over the current window.
func (bt *BitrateTracker) GetBitrate() float64 {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	if len(bt.times) < 2 {
		return 0
	}
	totalBytes := 0
	for _, b := range bt.buffer {
		totalBytes += b
	}
	duration := bt.times[len(bt.times)-1].Sub(bt.times[0]).Seconds()
	if duration <= 0 {
		return 0
	}
	return float64(totalBytes*8) / duration
}

// Reset forgets every recorded frame.
func (bt *BitrateTracker) Reset() {
	bt.mu.Lock()
	bt.buffer = nil
	bt.times = nil
	bt.mu.Unlock()
}
