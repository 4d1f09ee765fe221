package orchestrator

import (
	"errors"
	"sync"

	"fleetwatch/internal/mission"
)

// ErrSessionNotFound signals a lookup for an unknown session id
var ErrSessionNotFound = errors.New("session not found")

// SessionManager owns all live diagnose-repair sessions
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	dispatcher mission.Dispatcher
	repairable bool
	maxLoops   int
}

func NewSessionManager(dispatcher mission.Dispatcher, repairable bool, maxLoops int) *SessionManager {
	return &SessionManager{
		sessions:   make(map[string]*Session),
		dispatcher: dispatcher,
		repairable: repairable,
		maxLoops:   maxLoops,
	}
}

// Create makes a new session with the manager's defaults
func (m *SessionManager) Create() *Session {
	session := NewSession(m.dispatcher, m.repairable, m.maxLoops)

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	return session
}

// Get returns the session with the given id
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Remove drops a session from the manager
func (m *SessionManager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// List returns the state of every live session
func (m *SessionManager) List() []State {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	states := make([]State, 0, len(sessions))
	for _, session := range sessions {
		states = append(states, session.State())
	}
	return states
}
