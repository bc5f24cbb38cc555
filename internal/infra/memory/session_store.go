package memory

import (
	"sync"

	"livequiz-service/internal/app"
)

// SessionStore is the in-memory join-code registry, an implementation of
// app.SessionRepository. It holds every live coordinator in the process.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(joinCode string, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[joinCode] = session
}

func (s *SessionStore) Get(joinCode string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[joinCode]
	return session, ok
}

func (s *SessionStore) Delete(joinCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, joinCode)
}
