// Package buffer provides DataBuffer, the unit of data that flows through
// pipelines and over the media channel.
package buffer

import (
	"github.com/pion/dcamera/pkg/status"
)

// Well-known meta keys.
const (
	KeyTimeUs    = "timeUs"
	KeyStreamID  = "streamId"
	KeyFrameType = "frameType"
	KeyWidth     = "width"
	KeyHeight    = "height"
	KeyFormat    = "format"
)

// DataBuffer owns a byte slice and exposes a window [offset, offset+size)
// of it. A small typed side-table carries per-frame metadata such as
// presentation timestamps.
type DataBuffer struct {
	data   []byte
	offset int
	size   int

	int64Meta  map[string]int64
	stringMeta map[string]string
}

// New allocates a buffer with the given capacity. The view covers the whole
// capacity.
func New(capacity int) *DataBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &DataBuffer{data: make([]byte, capacity), size: capacity}
}

// Wrap takes ownership of b without copying.
func Wrap(b []byte) *DataBuffer {
	return &DataBuffer{data: b, size: len(b)}
}

// Data returns the current view.
func (b *DataBuffer) Data() []byte {
	return b.data[b.offset : b.offset+b.size]
}

// Capacity returns the size of the underlying storage.
func (b *DataBuffer) Capacity() int {
	return len(b.data)
}

// Offset returns the start of the view.
func (b *DataBuffer) Offset() int {
	return b.offset
}

// Size returns the length of the view.
func (b *DataBuffer) Size() int {
	return b.size
}

// SetRange moves the view without copying.
func (b *DataBuffer) SetRange(offset, size int) error {
	if offset < 0 || size < 0 || offset+size > len(b.data) {
		return status.Errorf(status.InvalidArgument, "range [%d, %d) exceeds capacity %d", offset, offset+size, len(b.data))
	}
	b.offset = offset
	b.size = size
	return nil
}

// Write copies p to the start of the storage and sets the view to cover it.
// If the storage is too small, an InsufficientBufferError wrapped as a
// memory operation error is returned and the buffer is left unchanged.
func (b *DataBuffer) Write(p []byte) error {
	n, err := Copy(b.data, p)
	if err != nil {
		return &status.Error{Code: status.MemoryOperationError, Msg: err.Error()}
	}
	b.offset = 0
	b.size = n
	return nil
}

// SetInt64 stores an integer meta value.
func (b *DataBuffer) SetInt64(key string, v int64) {
	if b.int64Meta == nil {
		b.int64Meta = make(map[string]int64)
	}
	b.int64Meta[key] = v
}

// FindInt64 looks up an integer meta value.
func (b *DataBuffer) FindInt64(key string) (int64, bool) {
	v, ok := b.int64Meta[key]
	return v, ok
}

// SetString stores a string meta value.
func (b *DataBuffer) SetString(key, v string) {
	if b.stringMeta == nil {
		b.stringMeta = make(map[string]string)
	}
	b.stringMeta[key] = v
}

// FindString looks up a string meta value.
func (b *DataBuffer) FindString(key string) (string, bool) {
	v, ok := b.stringMeta[key]
	return v, ok
}

// CopyMeta copies every meta entry of src into b.
func (b *DataBuffer) CopyMeta(src *DataBuffer) {
	for k, v := range src.int64Meta {
		b.SetInt64(k, v)
	}
	for k, v := range src.stringMeta {
		b.SetString(k, v)
	}
}

// Clone returns a deep copy holding only the current view.
func (b *DataBuffer) Clone() *DataBuffer {
	view := b.Data()
	c := New(len(view))
	copy(c.data, view)
	c.CopyMeta(b)
	return c
}
