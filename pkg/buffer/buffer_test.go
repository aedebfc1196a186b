package buffer

import (
	"errors"
	"testing"

	"github.com/pion/dcamera/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopy(t *testing.T) {
	var dst []byte
	src := make([]byte, 4)

	n, err := Copy(dst, src)
	if err == nil {
		t.Fatal("expected err to be non-nill")
	}
	if n != 0 {
		t.Fatalf("expected n to be 0, but got %d", n)
	}

	var e *InsufficientBufferError
	if !errors.As(err, &e) {
		t.Fatalf("expected error to be InsufficientBufferError")
	}
	if e.RequiredSize != len(src) {
		t.Fatalf("expected required size to be %d, but got %d", len(src), e.RequiredSize)
	}

	dst = make([]byte, 2*e.RequiredSize)
	n, err = Copy(dst, src)
	if err != nil {
		t.Fatalf("expected to not get an error after expanding the buffer")
	}
	if n != len(src) {
		t.Fatalf("expected n to be %d, but got %d", len(src), n)
	}
}

func TestDataBufferView(t *testing.T) {
	b := Wrap([]byte{0, 1, 2, 3, 4, 5})

	require.NoError(t, b.SetRange(2, 3))
	assert.Equal(t, []byte{2, 3, 4}, b.Data())
	assert.Equal(t, 6, b.Capacity())
	assert.Equal(t, 2, b.Offset())
	assert.Equal(t, 3, b.Size())

	// The view shares storage with the buffer.
	b.Data()[0] = 9
	require.NoError(t, b.SetRange(0, 6))
	assert.Equal(t, []byte{0, 1, 9, 3, 4, 5}, b.Data())

	err := b.SetRange(4, 3)
	assert.True(t, errors.Is(err, status.ErrInvalidArgument))
}

func TestDataBufferWrite(t *testing.T) {
	b := New(4)
	require.NoError(t, b.Write([]byte{7, 8}))
	assert.Equal(t, []byte{7, 8}, b.Data())

	err := b.Write([]byte{1, 2, 3, 4, 5})
	assert.True(t, errors.Is(err, status.ErrMemoryOperationError))
	assert.Equal(t, []byte{7, 8}, b.Data())
}

func TestDataBufferMeta(t *testing.T) {
	b := New(1)
	b.SetInt64(KeyTimeUs, 33000)
	b.SetString(KeyFormat, "RGBA")

	v, ok := b.FindInt64(KeyTimeUs)
	assert.True(t, ok)
	assert.Equal(t, int64(33000), v)

	_, ok = b.FindInt64(KeyStreamID)
	assert.False(t, ok)

	c := b.Clone()
	s, ok := c.FindString(KeyFormat)
	assert.True(t, ok)
	assert.Equal(t, "RGBA", s)

	c.SetInt64(KeyTimeUs, 1)
	v, _ = b.FindInt64(KeyTimeUs)
	assert.Equal(t, int64(33000), v)
}
