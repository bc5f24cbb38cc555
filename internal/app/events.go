package app

import (
	"time"

	"livequiz-service/internal/domain"
)

// Broadcast event types. Events for one session are emitted in FIFO order;
// instructor-only events are filtered out for participant subscribers.
const (
	EventQuestionStarted   = "question_started"
	EventQuestionEnded     = "question_ended"
	EventLeaderboardUpdate = "leaderboard_update"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventViolationAlert    = "violation_alert"
	EventAnswerProgress    = "answer_progress"
	EventSessionPaused     = "session_paused"
	EventSessionResumed    = "session_resumed"
	EventSessionEnded      = "session_ended"
)

// Event is one message fanned out to session subscribers.
type Event struct {
	Type           string
	InstructorOnly bool
	Payload        any
}

// QuestionView is the participant-safe projection of a question: no answer
// key and no expected test outputs.
type QuestionView struct {
	ID         string              `json:"id"`
	Type       domain.QuestionType `json:"type"`
	Prompt     string              `json:"prompt"`
	Options    []string            `json:"options,omitempty"`
	Language   string              `json:"language,omitempty"`
	TestInputs []string            `json:"testInputs,omitempty"`
	Points     int                 `json:"points"`
	TimeLimit  int                 `json:"timeLimitSeconds"`
	TimeBonus  bool                `json:"timeBonus"`
}

// QuestionStartedPayload announces the session's new current question.
type QuestionStartedPayload struct {
	Index     int          `json:"index"`
	Total     int          `json:"total"`
	Question  QuestionView `json:"question"`
	StartedAt time.Time    `json:"startedAt"`
}

// QuestionEndedPayload closes out a question phase.
type QuestionEndedPayload struct {
	QuestionID string `json:"questionId"`
	Answered   int    `json:"answered"`
	Roster     int    `json:"roster"`
}

// RosterPayload reports a participant joining or leaving.
type RosterPayload struct {
	ParticipantID string `json:"participantId"`
	Nickname      string `json:"nickname"`
	Rejoined      bool   `json:"rejoined,omitempty"`
	Roster        int    `json:"roster"`
}

// AnswerProgressPayload tells the instructor how answer intake is going for
// the current question.
type AnswerProgressPayload struct {
	QuestionID    string `json:"questionId"`
	ParticipantID string `json:"participantId"`
	Nickname      string `json:"nickname"`
	Answered      int    `json:"answered"`
	Roster        int    `json:"roster"`
}

// ViolationAlertPayload notifies the instructor channel of an anti-cheat event.
type ViolationAlertPayload struct {
	ParticipantID string                 `json:"participantId"`
	Nickname      string                 `json:"nickname"`
	Violation     domain.ViolationType   `json:"violation"`
	Action        domain.ViolationAction `json:"action"`
	Total         int                    `json:"total"`
	Escalated     bool                   `json:"escalated"`
	Flagged       bool                   `json:"flagged"`
}

// SessionEndedPayload carries the final standings.
type SessionEndedPayload struct {
	Leaderboard domain.Leaderboard `json:"leaderboard"`
}
