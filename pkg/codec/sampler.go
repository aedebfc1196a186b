package codec

import (
	"math"
	"time"
)

// SamplerFunc returns the number of samples. Each invocation may return different
// different amount of samples due to how it's calculated/measured.
type SamplerFunc func() uint32

// NewVideoSampler creates a video sampler that uses the actual video frame rate and
// the codec's clock rate to come up with a duration for each sample.
func NewVideoSampler(clockRate uint32) SamplerFunc {
	return NewVideoSamplerWithClock(clockRate, time.Now)
}

// NewVideoSamplerWithClock is NewVideoSampler with an injectable clock.
func NewVideoSamplerWithClock(clockRate uint32, now func() time.Time) SamplerFunc {
	clockRateFloat := float64(clockRate)
	lastTimestamp := now()

	return SamplerFunc(func() uint32 {
		t := now()
		duration := t.Sub(lastTimestamp).Seconds()
		samples := uint32(math.Round(clockRateFloat * duration))
		lastTimestamp = t

		return samples
	})
}

// NewTimestampSampler derives samples from successive presentation
// timestamps in microseconds instead of wall clock time. Non-increasing
// timestamps yield zero samples.
func NewTimestampSampler(clockRate uint32) func(timeUs int64) uint32 {
	var last int64
	first := true

	return func(timeUs int64) uint32 {
		if first || timeUs <= last {
			first = false
			last = timeUs
			return 0
		}
		samples := uint32(math.Round(float64(clockRate) * float64(timeUs-last) / 1e6))
		last = timeUs
		return samples
	}
}
