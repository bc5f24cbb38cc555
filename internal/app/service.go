package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/scoring"
)

// SessionRepository abstracts how live sessions are registered (in-memory,
// Redis-marked, etc). Join codes are unique among registered sessions.
type SessionRepository interface {
	Put(joinCode string, session *Session)
	Get(joinCode string) (*Session, bool)
	Delete(joinCode string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultsRepository persists final session results for reporting.
type ResultsRepository interface {
	SaveResult(ctx context.Context, result domain.SessionResult) error
}

// SessionService creates sessions and resolves join codes to their
// coordinators. results and runner may be nil: results then stay in memory
// only, and coding questions grade as incorrect.
type SessionService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	results  ResultsRepository
	runner   scoring.CodeRunner
	defaults domain.SessionConfig
}

func NewSessionService(sessions SessionRepository, quizzes QuizRepository, results ResultsRepository, runner scoring.CodeRunner, defaults domain.SessionConfig) *SessionService {
	return &SessionService{
		sessions: sessions,
		quizzes:  quizzes,
		results:  results,
		runner:   runner,
		defaults: mergeConfig(defaults, domain.DefaultSessionConfig()),
	}
}

// Create builds a pending session for the quiz, with a join code unique
// among currently registered sessions (regenerated on collision).
func (s *SessionService) Create(ctx context.Context, quizID string, override *domain.SessionConfig) (*Session, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	cfg := s.defaults
	if override != nil {
		cfg = mergeConfig(*override, s.defaults)
	}

	var code string
	for attempt := 0; ; attempt++ {
		code, err = newJoinCode()
		if err != nil {
			return nil, err
		}
		if _, taken := s.sessions.Get(code); !taken {
			break
		}
		if attempt >= 10 {
			return nil, fmt.Errorf("could not allocate a unique join code")
		}
	}

	session := NewSession(code, quiz, cfg, s.runner)
	session.SetResultSink(func(result domain.SessionResult) {
		if s.results != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.results.SaveResult(ctx, result); err != nil {
				// Reporting is best-effort; the session already ended cleanly.
				log.Printf("persist results for session %s: %v", result.JoinCode, err)
			}
		}
		s.sessions.Delete(result.JoinCode)
	})
	s.sessions.Put(code, session)
	return session, nil
}

// Session resolves a join code to its coordinator.
func (s *SessionService) Session(joinCode string) (*Session, error) {
	session, ok := s.sessions.Get(joinCode)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// mergeConfig fills zero-valued fields of cfg from fallback. Booleans are
// taken from cfg as-is: overriding a default-true flag to false must stick.
func mergeConfig(cfg, fallback domain.SessionConfig) domain.SessionConfig {
	if cfg.MaxParticipants == 0 {
		cfg.MaxParticipants = fallback.MaxParticipants
	}
	if cfg.MinBonusFraction == 0 {
		cfg.MinBonusFraction = fallback.MinBonusFraction
	}
	if cfg.MaxViolations == 0 {
		cfg.MaxViolations = fallback.MaxViolations
	}
	if cfg.ViolationActions == nil {
		cfg.ViolationActions = fallback.ViolationActions
	}
	if cfg.EscalationAction == "" {
		cfg.EscalationAction = fallback.EscalationAction
	}
	return cfg
}
