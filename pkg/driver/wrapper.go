package driver

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/dcamera/pkg/prop"
	"github.com/pion/dcamera/pkg/status"
)

func wrapAdapter(a Adapter, info Info) Driver {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	return &adapterWrapper{Adapter: a, info: info, state: StateClosed}
}

type adapterWrapper struct {
	Adapter
	info Info

	mu    sync.Mutex
	state State
}

func (w *adapterWrapper) ID() string {
	return w.info.ID
}

func (w *adapterWrapper) Info() Info {
	return w.info
}

func (w *adapterWrapper) Status() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *adapterWrapper) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Update(StateOpened, w.Adapter.Open)
}

func (w *adapterWrapper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateClosed {
		return nil
	}
	return w.state.Update(StateClosed, w.Adapter.Close)
}

func (w *adapterWrapper) Properties() []prop.Video {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateClosed {
		return nil
	}
	return w.Adapter.Properties()
}

// VideoRecord starts the camera in mode p. A failed start closes the
// adapter, so the driver can be opened again from scratch.
func (w *adapterWrapper) VideoRecord(p prop.Video) (Reader, error) {
	rec, ok := w.Adapter.(VideoRecorder)
	if !ok {
		return nil, status.Errorf(status.BadOperate, "driver %s cannot record video", w.info.ID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var r Reader
	err := w.state.Update(StateRunning, func() error {
		var err error
		r, err = rec.VideoRecord(p)
		return err
	})
	if err != nil && w.state != StateClosed && status.CodeOf(err) != status.WrongState {
		if closeErr := w.state.Update(StateClosed, w.Adapter.Close); closeErr != nil {
			logger.Warnf("close %s after failed record: %v", w.info.ID, closeErr)
		}
	}
	return r, err
}
