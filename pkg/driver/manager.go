package driver

import (
	"sort"
	"sync"

	"github.com/pion/dcamera/internal/logging"
	"github.com/pion/dcamera/pkg/status"
)

var logger = logging.NewLogger("driver")

// FilterFn is being used to decide if a driver should be included in the
// query result.
type FilterFn func(Driver) bool

// FilterVideoRecorder returns a filter function to get video recorders
func FilterVideoRecorder() FilterFn {
	return func(d Driver) bool {
		if w, ok := d.(*adapterWrapper); ok {
			_, ok = w.Adapter.(VideoRecorder)
			return ok
		}
		return true
	}
}

// FilterID returns a filter function to match a driver by id.
func FilterID(id string) FilterFn {
	return func(d Driver) bool {
		return d.ID() == id
	}
}

// FilterDeviceType returns a filter function to match specified device type.
func FilterDeviceType(t DeviceType) FilterFn {
	return func(d Driver) bool {
		return d.Info().DeviceType == t
	}
}

// FilterNot returns a filter function to negate provided filter.
func FilterNot(filter FilterFn) FilterFn {
	return func(d Driver) bool {
		return !filter(d)
	}
}

// FilterAnd returns a filter function to take logical conjunction of given filters.
func FilterAnd(filters ...FilterFn) FilterFn {
	return func(d Driver) bool {
		for _, f := range filters {
			if !f(d) {
				return false
			}
		}
		return true
	}
}

// Manager is a registry of drivers.
type Manager struct {
	mu      sync.Mutex
	drivers map[string]Driver
}

var manager = NewManager()

// GetManager returns the process wide registry. Built-in drivers register
// themselves here from init.
func GetManager() *Manager {
	return manager
}

// NewManager returns an empty registry.
func NewManager() *Manager {
	return &Manager{drivers: make(map[string]Driver)}
}

// Register wraps a and stores it under info.ID, or a random id when empty.
func (m *Manager) Register(a Adapter, info Info) (Driver, error) {
	if a == nil {
		return nil, status.Errorf(status.InvalidArgument, "nil adapter")
	}
	d := wrapAdapter(a, info)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[d.ID()]; ok {
		return nil, status.Errorf(status.AlreadyExists, "driver %s is already registered", d.ID())
	}
	m.drivers[d.ID()] = d
	logger.Debugf("registered %s %q (%s)", info.DeviceType, info.Label, d.ID())
	return d, nil
}

// Unregister closes and forgets the driver with the given id.
func (m *Manager) Unregister(id string) error {
	m.mu.Lock()
	d, ok := m.drivers[id]
	delete(m.drivers, id)
	m.mu.Unlock()
	if !ok {
		return status.Errorf(status.NotFound, "driver %s is not registered", id)
	}
	return d.Close()
}

// Query returns the drivers accepted by filter, highest priority first.
func (m *Manager) Query(filter FilterFn) []Driver {
	m.mu.Lock()
	results := make([]Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		if filter == nil || filter(d) {
			results = append(results, d)
		}
	}
	m.mu.Unlock()

	sort.Slice(results, func(i, j int) bool {
		pi, pj := results[i].Info().Priority, results[j].Info().Priority
		if pi != pj {
			return pi > pj
		}
		return results[i].ID() < results[j].ID()
	})
	return results
}

// Get returns the driver with the given id.
func (m *Manager) Get(id string) (Driver, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	return d, ok
}
