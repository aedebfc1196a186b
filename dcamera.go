// Package dcamera exposes cameras of remote devices as local cameras. A
// Manager keeps one session per remote camera and drives it through
// registration, the session lifecycle and capture.
package dcamera

import (
	"errors"
	"sort"
	"sync"

	"github.com/pion/dcamera/internal/logging"
	"github.com/pion/dcamera/pkg/hal"
	"github.com/pion/dcamera/pkg/session"
	"github.com/pion/dcamera/pkg/status"
)

var logger = logging.NewLogger("manager")

// Manager is the registry of distributed cameras. Sessions are created by
// RegisterDistributedHardware and destroyed once unregistration succeeds or
// registration fails.
type Manager struct {
	provider  hal.Provider
	transport session.Transport
	ManagerOptions

	mu       sync.Mutex
	sessions map[hal.SessionKey]*session.SourceSession
	retired  []*session.SourceSession
	closed   bool
}

// NewManager creates a manager that exposes cameras through provider and
// reaches their owners through transport.
func NewManager(provider hal.Provider, transport session.Transport, opts ...ManagerOption) (*Manager, error) {
	if provider == nil || transport == nil {
		return nil, status.Errorf(status.InvalidArgument, "manager needs a provider and a transport")
	}

	m := &Manager{
		provider:  provider,
		transport: transport,
		sessions:  make(map[hal.SessionKey]*session.SourceSession),
	}
	for _, o := range opts {
		o(&m.ManagerOptions)
	}
	return m, nil
}

// RegisterDistributedHardware starts registering the camera dhID of device
// devID. The outcome is reported to the register listener.
func (m *Manager) RegisterDistributedHardware(devID, dhID, reqID, version, attrs string) error {
	key := hal.SessionKey{DeviceID: devID, HardwareID: dhID}
	if !key.Valid() {
		return status.Errorf(status.InvalidArgument, "invalid camera %q/%q", devID, dhID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return status.Errorf(status.DisabledProcess, "manager is closed")
	}

	s, ok := m.sessions[key]
	if !ok {
		l := &sessionListener{m: m, key: key}
		var err error
		s, err = session.NewSourceSession(key, m.provider, m.transport,
			session.WithRegisterListener(l),
			session.WithLocalDeviceID(m.localDevID),
			session.WithScaler(m.scaler),
		)
		if err != nil {
			return err
		}
		l.s = s
		m.sessions[key] = s
		logger.Debugf("session %s created", key)
	}
	return s.RegisterHardware(reqID, version, attrs)
}

// UnregisterDistributedHardware starts unregistering the camera dhID of
// device devID.
func (m *Manager) UnregisterDistributedHardware(devID, dhID, reqID string) error {
	key := hal.SessionKey{DeviceID: devID, HardwareID: dhID}

	m.mu.Lock()
	s, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return status.Errorf(status.NotFound, "camera %s is not registered", key)
	}
	return s.UnregisterHardware(reqID)
}

// Session returns the session of key.
func (m *Manager) Session(key hal.SessionKey) (*session.SourceSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Sessions returns the keys of every live session in key order.
func (m *Manager) Sessions() []hal.SessionKey {
	m.mu.Lock()
	keys := make([]hal.SessionKey, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Close tears down every session and waits for all of them to exit. It must
// not be called from a listener callback.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	live := make([]*session.SourceSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.sessions = make(map[hal.SessionKey]*session.SourceSession)
	retired := m.retired
	m.retired = nil
	m.mu.Unlock()

	var errs []error
	for _, s := range live {
		if err := s.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range retired {
		<-s.Done()
	}
	return errors.Join(errs...)
}

// retire drops s from the registry if it is still the session of key. The
// session loop is stopped without waiting, since retire runs on it.
func (m *Manager) retire(key hal.SessionKey, s *session.SourceSession) {
	m.mu.Lock()
	if cur, ok := m.sessions[key]; !ok || cur != s {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, key)
	m.retired = append(m.retired, s)
	m.mu.Unlock()

	s.Close()
	logger.Debugf("session %s destroyed", key)
}

// sessionListener forwards each outcome, then removes its session from the
// registry when registration failed or unregistration succeeded. Requests
// still queued on a removed session are answered with DisabledProcess.
type sessionListener struct {
	m   *Manager
	key hal.SessionKey
	s   *session.SourceSession
}

func (l *sessionListener) OnRegisterNotify(devID, dhID, reqID string, code status.Code, data string) {
	if l.m.listener != nil {
		l.m.listener.OnRegisterNotify(devID, dhID, reqID, code, data)
	}
	if code != status.OK {
		l.m.retire(l.key, l.s)
	}
}

func (l *sessionListener) OnUnregisterNotify(devID, dhID, reqID string, code status.Code, data string) {
	if l.m.listener != nil {
		l.m.listener.OnUnregisterNotify(devID, dhID, reqID, code, data)
	}
	if code == status.OK {
		l.m.retire(l.key, l.s)
	}
}
