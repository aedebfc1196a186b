package session

import (
	"sync"

	"github.com/pion/dcamera/internal/metrics"
	"github.com/pion/dcamera/pkg/event"
	"github.com/pion/dcamera/pkg/status"
)

// StateMachine holds the current state of one session and runs events
// against it. It does not keep a reference to the session; the Operator is
// passed in for each event.
type StateMachine struct {
	mu      sync.Mutex
	current State
}

// NewStateMachine returns a machine in StateInit.
func NewStateMachine() *StateMachine {
	return &StateMachine{current: newState(StateInit)}
}

// Execute runs ev in the current state and applies the resulting
// transition. Events rejected with a wrong state error leave the state
// unchanged, as do events not built by the event constructors.
func (m *StateMachine) Execute(op Operator, ev event.Event) error {
	if !ev.Valid() {
		return status.Errorf(status.InvalidArgument, "malformed event %s", ev)
	}

	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()

	next, err := cur.Execute(op, ev)
	metrics.IncSessionEvent(ev.Kind().String(), status.CodeOf(err).String())
	if err != nil {
		logger.Debugf("%s: %s in %s: %v", op.Key(), ev.Kind(), cur.Kind(), err)
	}
	if next != cur.Kind() {
		m.UpdateState(next)
	}
	return err
}

// UpdateState moves the machine to kind.
func (m *StateMachine) UpdateState(kind StateKind) {
	m.mu.Lock()
	from := m.current.Kind()
	m.current = newState(kind)
	m.mu.Unlock()

	if from != kind {
		metrics.IncStateTransition(from.String(), kind.String())
		logger.Infof("state %s -> %s", from, kind)
	}
}

// Current returns the current state.
func (m *StateMachine) Current() StateKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Kind()
}
