// Package driver is the camera side device layer: adapters for physical or
// synthetic cameras, the state guard every adapter is wrapped with, and a
// registry of the wrapped drivers.
package driver

import (
	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/prop"
)

// OpenCloser is a driver capable of being opened and closed.
type OpenCloser interface {
	Open() error
	Close() error
}

// Infoer is a driver that describes itself.
type Infoer interface {
	Info() Info
}

// Info describes a driver.
type Info struct {
	// ID is the registry key. A random id is assigned when empty.
	ID         string
	Label      string
	DeviceType DeviceType
	// Priority orders drivers of the same type, higher first.
	Priority Priority
}

// Adapter is the contract a camera implementation fulfils.
type Adapter interface {
	OpenCloser
	// Properties lists the modes the camera supports. Only valid once opened.
	Properties() []prop.Video
}

// Reader yields captured frames. Read returns io.EOF once the recording
// has ended.
type Reader interface {
	Read() (*buffer.DataBuffer, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func() (*buffer.DataBuffer, error)

func (f ReaderFunc) Read() (*buffer.DataBuffer, error) {
	return f()
}

// VideoRecorder is an adapter that can capture frames.
type VideoRecorder interface {
	VideoRecord(p prop.Video) (Reader, error)
}

// Driver is a wrapped adapter. All methods are safe for concurrent use.
type Driver interface {
	Adapter
	VideoRecorder
	Infoer
	ID() string
	Status() State
}
