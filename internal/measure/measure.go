// Package measure samples the output of a frame reader.
package measure

import (
	"errors"
	"io"
	"time"

	"github.com/pion/dcamera/pkg/driver"
)

// Result is what a reader produced during one measurement.
type Result struct {
	Frames  int
	Bytes   int
	Elapsed time.Duration
}

// BitRate is the average bit rate in bits per second.
func (r Result) BitRate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Bytes*8) / r.Elapsed.Seconds()
}

// FrameRate is the average frame rate in frames per second.
func (r Result) FrameRate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Frames) / r.Elapsed.Seconds()
}

// Reader reads r as fast as possible for dur, or until it reports io.EOF.
func Reader(r driver.Reader, dur time.Duration) (Result, error) {
	var res Result
	start := time.Now()
	end := start.Add(dur)
	for now := start; now.Before(end); now = time.Now() {
		b, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return res, err
		}
		res.Frames++
		res.Bytes += b.Size()
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
