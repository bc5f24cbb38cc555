package domain

import "time"

// QuestionType discriminates the supported question variants.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionCoding         QuestionType = "coding"
)

// TestCase is one input/expected pair for a coding question.
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// Question models one quiz question. The answer key applies to
// multiple-choice and true/false; coding questions carry test cases instead.
type Question struct {
	ID        string       `json:"id"`
	Type      QuestionType `json:"type"`
	Prompt    string       `json:"prompt"`
	Options   []string     `json:"options,omitempty"`
	AnswerKey string       `json:"answerKey,omitempty"`
	Language  string       `json:"language,omitempty"`
	TestCases []TestCase   `json:"testCases,omitempty"`
	Points    int          `json:"points"`           // defaults to 1 if zero
	TimeLimit int          `json:"timeLimitSeconds"` // 0 means untimed
	TimeBonus bool         `json:"timeBonus"`
}

// BasePoints returns the question's point value with the default applied.
func (q Question) BasePoints() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Quiz is an ordered, immutable collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// ViolationType classifies client-reported anti-cheat signals.
type ViolationType string

const (
	ViolationFullscreenExit ViolationType = "fullscreen_exit"
	ViolationTabSwitch      ViolationType = "tab_switch"
	ViolationCopyPaste      ViolationType = "copy_paste"
)

// ViolationAction is what the session does in response to a violation.
type ViolationAction string

const (
	ActionWarn    ViolationAction = "warn"
	ActionPause   ViolationAction = "pause"
	ActionShuffle ViolationAction = "shuffle"
	ActionClose   ViolationAction = "close"
)

// SessionStatus tracks the lifecycle of a live session.
type SessionStatus string

const (
	StatusPending        SessionStatus = "pending"
	StatusQuestionActive SessionStatus = "question_active"
	StatusQuestionBreak  SessionStatus = "question_break"
	StatusEnded          SessionStatus = "ended"
)

// SessionConfig is the per-session configuration snapshot taken at creation.
type SessionConfig struct {
	MaxParticipants  int                               `json:"maxParticipants" yaml:"max_participants"`
	ShuffleQuestions bool                              `json:"shuffleQuestions" yaml:"shuffle_questions"`
	ShuffleOptions   bool                              `json:"shuffleOptions" yaml:"shuffle_options"`
	AllowLateJoin    bool                              `json:"allowLateJoin" yaml:"allow_late_join"`
	AutoAdvance      bool                              `json:"autoAdvance" yaml:"auto_advance"`
	AllowResubmit    bool                              `json:"allowResubmit" yaml:"allow_resubmit"`
	MinBonusFraction float64                           `json:"minBonusFraction" yaml:"min_bonus_fraction"`
	MaxViolations    int                               `json:"maxViolations" yaml:"max_violations"`
	ViolationActions map[ViolationType]ViolationAction `json:"violationActions" yaml:"violation_actions"`
	EscalationAction ViolationAction                   `json:"escalationAction" yaml:"escalation_action"`
}

// DefaultSessionConfig returns the configuration used when the creator
// does not override anything.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxParticipants:  100,
		AllowLateJoin:    true,
		MinBonusFraction: 0.5,
		MaxViolations:    3,
		ViolationActions: map[ViolationType]ViolationAction{
			ViolationFullscreenExit: ActionPause,
			ViolationTabSwitch:      ActionWarn,
			ViolationCopyPaste:      ActionWarn,
		},
		EscalationAction: ActionClose,
	}
}

// Participant is one student's presence and accumulated state in a session.
// Participants are never deleted mid-session; disconnects only flip Active.
type Participant struct {
	ID                string
	Nickname          string
	Score             int
	Correct           int
	Attempted         int
	AvgResponseTime   float64 // seconds
	JoinOrder         int
	JoinedAt          time.Time
	LastSeen          time.Time
	Active            bool
	LeftAt            time.Time
	FullscreenExits   int
	TabSwitches       int
	CopyPasteAttempts int
	IsFlagged         bool
	IsPaused          bool
	PauseReason       string
}

// ViolationTotal sums the violation counters across all categories.
func (p *Participant) ViolationTotal() int {
	return p.FullscreenExits + p.TabSwitches + p.CopyPasteAttempts
}

// Response is one participant's answer to one question.
type Response struct {
	ParticipantID string    `json:"participantId"`
	QuestionID    string    `json:"questionId"`
	Answer        string    `json:"answer"`
	TestResults   []bool    `json:"testResults,omitempty"`
	Correct       bool      `json:"correct"`
	Points        int       `json:"points"`
	ResponseTime  float64   `json:"responseTime"`
	AnsweredAt    time.Time `json:"answeredAt"`
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	QuestionID string
	Answer     string
	Source     string // coding submissions
}

// AnswerResult summarizes the outcome of a submission for a single user.
type AnswerResult struct {
	QuestionID   string  `json:"questionId"`
	Correct      bool    `json:"correct"`
	Awarded      int     `json:"awarded"`
	TotalScore   int     `json:"totalScore"`
	ResponseTime float64 `json:"responseTime"`
}

// LeaderboardEntry is a snapshot-friendly ranked view of a participant.
type LeaderboardEntry struct {
	Rank            int     `json:"rank"`
	ParticipantID   string  `json:"participantId"`
	Nickname        string  `json:"nickname"`
	Score           int     `json:"score"`
	Correct         int     `json:"correct"`
	Attempted       int     `json:"attempted"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	IsFlagged       bool    `json:"isFlagged"`
}

// Leaderboard captures the ordered standings for a session.
type Leaderboard struct {
	JoinCode  string             `json:"joinCode"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// SessionResult is the final record handed to the reporting store when a
// session ends.
type SessionResult struct {
	JoinCode    string      `json:"joinCode"`
	QuizID      string      `json:"quizId"`
	EndedAt     time.Time   `json:"endedAt"`
	Leaderboard Leaderboard `json:"leaderboard"`
	Responses   []Response  `json:"responses"`
}
