package driver

import "github.com/pion/dcamera/pkg/status"

// State represents driver's state
type State string

const (
	// StateClosed means that the driver has not been opened. The modes the
	// camera supports are still unknown.
	StateClosed State = "closed"
	// StateOpened means that the driver is opened and its modes may be
	// queried.
	StateOpened State = "opened"
	// StateRunning means that the driver is producing frames.
	StateRunning State = "running"
)

// Update updates current state, s, to next. If f fails to execute,
// s will stay unchanged. Otherwise, s will be updated to next
func (s *State) Update(next State, f func() error) error {
	checks := map[State]func() error{
		StateOpened:  s.toOpened,
		StateClosed:  s.toClosed,
		StateRunning: s.toRunning,
	}

	check, ok := checks[next]
	if !ok {
		return status.Errorf(status.InvalidArgument, "unknown driver state %q", next)
	}
	if err := check(); err != nil {
		return err
	}

	if err := f(); err != nil {
		return err
	}
	*s = next
	return nil
}

func (s *State) toOpened() error {
	if *s != StateClosed {
		return status.Errorf(status.WrongState, "driver is already opened")
	}
	return nil
}

func (s *State) toClosed() error {
	return nil
}

func (s *State) toRunning() error {
	switch *s {
	case StateClosed:
		return status.Errorf(status.WrongState, "driver is closed")
	case StateRunning:
		return status.Errorf(status.WrongState, "driver is already running")
	}
	return nil
}
