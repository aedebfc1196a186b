// Package codectest provides shared test for codec implementations.
package codectest

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/codec"
	"github.com/pion/dcamera/pkg/prop"
)

func assertNoPanic(t *testing.T, fn func() error, msg string) error {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("panic: %v: %s", r, msg)
		}
	}()
	return fn()
}

// EngineCloseTwiceTest checks that closing a configured engine twice neither
// panics nor fails.
func EngineCloseTwiceTest(t *testing.T, b codec.Builder, in, out prop.Video) {
	e, err := b()
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Configure(in, out, func(*buffer.DataBuffer, error) {}); err != nil {
		t.Fatal(err)
	}

	if err := assertNoPanic(t, e.Close, "on first Close()"); err != nil {
		t.Fatal(err)
	}
	if err := assertNoPanic(t, e.Close, "on second Close()"); err != nil {
		t.Fatal(err)
	}
}

// EngineFeedAfterCloseTest checks that feeding a closed engine fails instead
// of panicking.
func EngineFeedAfterCloseTest(t *testing.T, b codec.Builder, in, out prop.Video, input *buffer.DataBuffer) {
	e, err := b()
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Configure(in, out, func(*buffer.DataBuffer, error) {}); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	if err := assertNoPanic(t, func() error { return e.Feed(input) }, "on Feed() after Close()"); err == nil {
		t.Fatal("expected Feed() after Close() to fail")
	}
}

// EngineDrainTest feeds n copies of input and checks that Drain returns only
// after every output has been delivered, and that outputs keep the input
// timestamps in order.
func EngineDrainTest(t *testing.T, b codec.Builder, in, out prop.Video, input *buffer.DataBuffer, n int) []*buffer.DataBuffer {
	e, err := b()
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	var mu sync.Mutex
	var outputs []*buffer.DataBuffer
	err = e.Configure(in, out, func(buf *buffer.DataBuffer, err error) {
		if err != nil {
			t.Errorf("unexpected output error: %v", err)
			return
		}
		mu.Lock()
		outputs = append(outputs, buf)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < n; i++ {
		frame := input.Clone()
		frame.SetInt64(buffer.KeyTimeUs, int64(i)*int64(time.Second/30/time.Microsecond))
		if err := e.Feed(frame); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.Drain(); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(outputs) != n {
		t.Fatalf("expected %d outputs after Drain(), got %d", n, len(outputs))
	}
	var last int64 = -1
	for _, o := range outputs {
		ts, ok := o.FindInt64(buffer.KeyTimeUs)
		if !ok {
			t.Fatal("output lost its timestamp")
		}
		if ts <= last {
			t.Fatalf("outputs out of order: %d after %d", ts, last)
		}
		last = ts
	}
	return outputs
}
