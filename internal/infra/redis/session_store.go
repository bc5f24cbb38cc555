package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"livequiz-service/internal/app"
)

// SessionStore is a Redis-aware join-code registry.
// Notes:
//   - Coordinators stay in the local map because the broadcast fan-out is
//     in-process; Redis only marks which join codes are live.
//   - The liveness keys let other instances (or ops tooling) see active
//     codes and avoid collisions; cross-instance fan-out would need a
//     pub/sub projector on top, which is out of scope here.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(joinCode string, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[joinCode] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(joinCode), session.QuizID(), s.ttl).Err()
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
	_ = s.client.Del(context.Background(), s.key(joinCode)).Err()
}

func (s *SessionStore) key(joinCode string) string {
	return "livequiz:session:" + joinCode
}
