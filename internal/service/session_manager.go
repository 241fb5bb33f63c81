package service

import (
	"context"
	"sync"
)

// SessionManager keeps one running Session per user.
type SessionManager struct {
	deps     SessionDeps
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(deps SessionDeps) *SessionManager {
	return &SessionManager{deps: deps, sessions: make(map[string]*Session)}
}

// Open returns the user's session, starting one if needed.
func (m *SessionManager) Open(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user", Reason: "must not be empty"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s, nil
	}
	s := NewSession(userID, m.deps)
	if err := s.Start(ctx); err != nil {
		s.Stop()
		return nil, err
	}
	m.sessions[userID] = s
	return s, nil
}

// Get returns a running session without starting one.
func (m *SessionManager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Close stops and forgets the user's session. Unknown users are ignored.
func (m *SessionManager) Close(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		s.Stop()
	}
}

// CloseAll stops every session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}

// ResyncAll queues a full reload on every session, used after the change
// feed reconnects.
func (m *SessionManager) ResyncAll() {
	for _, s := range m.snapshot() {
		s.RequestResync()
	}
}

// Each calls fn for every running session.
func (m *SessionManager) Each(fn func(*Session)) {
	for _, s := range m.snapshot() {
		fn(s)
	}
}

func (m *SessionManager) snapshot() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}
