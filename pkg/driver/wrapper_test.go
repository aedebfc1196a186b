package driver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/prop"
	"github.com/pion/dcamera/pkg/status"
)

var (
	recordErr = fmt.Errorf("failed to start recording")
)

type adapterMock struct {
	closed int
}

func (a *adapterMock) Open() error               { return nil }
func (a *adapterMock) Close() error              { a.closed++; return nil }
func (a *adapterMock) Properties() []prop.Video { return []prop.Video{{Width: 640, Height: 480}} }

type videoAdapterMock struct{ adapterMock }

func (a *videoAdapterMock) VideoRecord(p prop.Video) (Reader, error) {
	return ReaderFunc(func() (*buffer.DataBuffer, error) { return buffer.New(4), nil }), nil
}

type videoAdapterBrokenMock struct{ adapterMock }

func (a *videoAdapterBrokenMock) VideoRecord(p prop.Video) (Reader, error) {
	return nil, recordErr
}

func TestVideoWrapperState(t *testing.T) {
	var a videoAdapterMock
	d := wrapAdapter(&a, Info{})

	if d.Properties() != nil {
		t.Errorf("expected nil, but got %v", d.Properties())
	}
	if d.ID() == "" {
		t.Error("expected a generated id")
	}

	_, err := d.VideoRecord(prop.Video{})
	if !errors.Is(err, status.ErrWrongState) {
		t.Errorf("expected to get an invalid state, but got %v", err)
	}

	err = d.Open()
	if err != nil {
		t.Errorf("expected to successfully open, but got %v", err)
	}
	if len(d.Properties()) != 1 {
		t.Errorf("expected one property, but got %v", d.Properties())
	}

	r, err := d.VideoRecord(prop.Video{})
	if err != nil {
		t.Errorf("expected to successfully start recording, but got %v", err)
	}
	if b, err := r.Read(); err != nil || b.Size() != 4 {
		t.Errorf("unexpected read %v, %v", b, err)
	}
	if d.Status() != StateRunning {
		t.Errorf("expected the status to be %v, but got %v", StateRunning, d.Status())
	}

	if err := d.Close(); err != nil {
		t.Errorf("expected to close, but got %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("expected a second close to be a no-op, but got %v", err)
	}
	if a.closed != 1 {
		t.Errorf("expected the adapter to be closed once, but got %d", a.closed)
	}
}

func TestVideoWrapperWithBrokenRecorderState(t *testing.T) {
	var a videoAdapterBrokenMock
	d := wrapAdapter(&a, Info{ID: "broken"})

	err := d.Open()
	if err != nil {
		t.Errorf("expected to open successfully")
	}

	_, err = d.VideoRecord(prop.Video{})
	if err == nil {
		t.Errorf("expected to get an error")
	}

	if err != recordErr {
		t.Errorf("expected to get %v, but got %v", recordErr, err)
	}

	if d.Status() != StateClosed {
		t.Errorf("expected the status to be %v, but got %v", StateClosed, d.Status())
	}
	if d.ID() != "broken" {
		t.Errorf("expected id broken, but got %s", d.ID())
	}
}

func TestWrapperWithoutRecorder(t *testing.T) {
	d := wrapAdapter(&adapterMock{}, Info{})
	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.VideoRecord(prop.Video{}); !errors.Is(err, status.ErrBadOperate) {
		t.Errorf("expected bad operate, but got %v", err)
	}
}
