package codec

import (
	"fmt"
	"sync"

	"github.com/pion/dcamera/pkg/frame"
)

var (
	mu       sync.RWMutex
	encoders = make(map[frame.Codec]Builder)
	decoders = make(map[frame.Codec]Builder)
)

// RegisterEncoder makes an encoder for c available to BuildEncoder.
func RegisterEncoder(c frame.Codec, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	encoders[c] = b
}

// RegisterDecoder makes a decoder for c available to BuildDecoder.
func RegisterDecoder(c frame.Codec, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	decoders[c] = b
}

// BuildEncoder creates an encoder that outputs c.
func BuildEncoder(c frame.Codec) (Engine, error) {
	mu.RLock()
	b, ok := encoders[c]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("codec: can't find %s video encoder", c)
	}

	return b()
}

// BuildDecoder creates a decoder that consumes c.
func BuildDecoder(c frame.Codec) (Engine, error) {
	mu.RLock()
	b, ok := decoders[c]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("codec: can't find %s video decoder", c)
	}

	return b()
}
