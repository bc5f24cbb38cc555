package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/scoring"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Fractions and loops",
		Questions: []domain.Question{
			{
				ID:        "q1",
				Type:      domain.QuestionMultipleChoice,
				Prompt:    "What is 2 + 2?",
				Options:   []string{"3", "4", "5"},
				AnswerKey: "4",
				Points:    100,
				TimeLimit: 30,
				TimeBonus: true,
			},
			{
				ID:        "q2",
				Type:      domain.QuestionTrueFalse,
				Prompt:    "The sky is green.",
				AnswerKey: "false",
				Points:    50,
				TimeLimit: 20,
			},
		},
	}
}

func newTestSession(t *testing.T, clock *fakeClock, cfg domain.SessionConfig) *app.Session {
	t.Helper()
	return app.NewSessionWithClock("ABC123", sampleQuiz(), cfg, nil, clock.Now)
}

func nextEvent(t *testing.T, ch <-chan app.Event) app.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return app.Event{}
	}
}

func expectEvent(t *testing.T, ch <-chan app.Event, wantType string) app.Event {
	t.Helper()
	ev := nextEvent(t, ch)
	if ev.Type != wantType {
		t.Fatalf("expected event %s, got %s", wantType, ev.Type)
	}
	return ev
}

func TestStartRequiresPendingAndQuestions(t *testing.T) {
	clock := newFakeClock()
	s := newTestSession(t, clock, domain.DefaultSessionConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second start should be invalid, got %v", err)
	}

	empty := app.NewSessionWithClock("EMPTY1", domain.Quiz{ID: "quiz-x"}, domain.DefaultSessionConfig(), nil, clock.Now)
	if err := empty.Start(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("starting a quiz with no questions should be invalid, got %v", err)
	}
}

func TestJoinCapacityAndNicknames(t *testing.T) {
	clock := newFakeClock()
	cfg := domain.DefaultSessionConfig()
	cfg.MaxParticipants = 2
	s := newTestSession(t, clock, cfg)

	if _, err := s.Join("u1", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := s.Join("u2", "alice"); !errors.Is(err, domain.ErrNicknameTaken) {
		t.Fatalf("nickname uniqueness is case-insensitive, got %v", err)
	}
	if _, err := s.Join("u2", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := s.Join("u3", "Carol"); !errors.Is(err, domain.ErrSessionFull) {
		t.Fatalf("expected capacity rejection, got %v", err)
	}
}

func TestJoinAfterStartHonorsLateJoinFlag(t *testing.T) {
	clock := newFakeClock()
	cfg := domain.DefaultSessionConfig()
	cfg.AllowLateJoin = false
	s := newTestSession(t, clock, cfg)

	if _, err := s.Join("u1", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := s.Join("u2", "Bob"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("late join disabled: expected rejection, got %v", err)
	}

	// Rejoin by identity is not a late join; Alice reconnects fine.
	p, err := s.Join("u1", "Alice")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !p.Active {
		t.Fatalf("rejoined participant should be active")
	}
}

func TestSubmitAppliesTimeBonus(t *testing.T) {
	clock := newFakeClock()
	s := newTestSession(t, clock, domain.DefaultSessionConfig())

	if _, err := s.Join("u1", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(15 * time.Second)

	res, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "q1", Answer: "4"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Correct || res.Awarded != 75 {
		t.Fatalf("expected 75 points at the halfway mark, got %+v", res)
	}
	if res.ResponseTime != 15 {
		t.Fatalf("expected 15s response time, got %v", res.ResponseTime)
	}

	lb := s.Leaderboard()
	if len(lb.Entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(lb.Entries))
	}
	e := lb.Entries[0]
	if e.Score != 75 || e.Correct != 1 || e.Attempted != 1 || e.AvgResponseTime != 15 {
		t.Fatalf("aggregates off: %+v", e)
	}
}

func TestSubmitAtLimitStillScores(t *testing.T) {
	clock := newFakeClock()
	s := newTestSession(t, clock, domain.DefaultSessionConfig())
	s.Join("u1", "Alice")
	s.Start()
	clock.Advance(30 * time.Second)

	res, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "q1", Answer: "4"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Correct || res.Awarded != 50 {
		t.Fatalf("answer exactly at the limit should earn the floor, got %+v", res)
	}
}

func TestLateSubmitScoresZero(t *testing.T) {
	clock := newFakeClock()
	s := newTestSession(t, clock, domain.DefaultSessionConfig())
	s.Join("u1", "Alice")
	s.Start()
	clock.Advance(31 * time.Second)

	res, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "q1", Answer: "4"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Correct {
		t.Fatalf("correctness is still evaluated for late answers")
	}
	if res.Awarded != 0 || res.TotalScore != 0 {
		t.Fatalf("late answers never score, got %+v", res)
	}
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	clock := newFakeClock()
	s := newTestSession(t, clock, domain.DefaultSessionConfig())
	s.Join("u1", "Alice")
	s.Start()

	if _, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "q1", Answer: "4"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "q1", Answer: "5"})
	if !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	lb := s.Leaderboard()
	if lb.Entries[0].Score != 100 || lb.Entries[0].Attempted != 1 {
		t.Fatalf("rejected submission must not change state: %+v", lb.Entries[0])
	}
}

func TestResubmitOverwritesWhenConfigured(t *testing.T) {
	clock := newFakeClock()
	cfg := domain.DefaultSessionConfig()
	cfg.AllowResubmit = true
	s := newTestSession(t, clock, cfg)
	s.Join("u1", "Alice")
	s.Start()

	if _, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "q1", Answer: "5"}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	clock.Advance(15 * time.Second)
	res, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "q1", Answer: "4"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if res.Awarded != 75 {
		t.Fatalf("expected overwrite to rescore, got %+v", res)
	}

	e := s.Leaderboard().Entries[0]
	if e.Score != 75 || e.Attempted != 1 || e.Correct != 1 || e.AvgResponseTime != 15 {
		t.Fatalf("overwrite must keep aggregates consistent: %+v", e)
	}
}

func TestStaleAndUnknownQuestions(t *testing.T) {
	clock := newFakeClock()
	s := newTestSession(t, clock, domain.DefaultSessionConfig())
	s.Join("u1", "Alice")
	s.Start()

	_, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "q2", Answer: "false"})
	if !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("submitting for a non-current question: expected stale, got %v", err)
	}
	_, err = s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "nope", Answer: "x"})
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("unknown question id: expected not-found, got %v", err)
	}
}

func TestAdvanceLifecycleAndEvents(t *testing.T) {
	clock := newFakeClock()
	s := newTestSession(t, clock, domain.DefaultSessionConfig())
	s.Join("u1", "Alice")

	events, cancel := s.Subscribe(false)
	defer cancel()

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	started := expectEvent(t, events, app.EventQuestionStarted)
	payload, ok := started.Payload.(app.QuestionStartedPayload)
	if !ok || payload.Question.ID != "q1" {
		t.Fatalf("unexpected question_started payload: %+v", started.Payload)
	}
	if payload.Question.Points != 100 {
		t.Fatalf("view should carry points, got %+v", payload.Question)
	}

	if err := s.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	expectEvent(t, events, app.EventQuestionEnded)
	expectEvent(t, events, app.EventLeaderboardUpdate)
	started = expectEvent(t, events, app.EventQuestionStarted)
	if started.Payload.(app.QuestionStartedPayload).Question.ID != "q2" {
		t.Fatalf("expected q2 next, got %+v", started.Payload)
	}

	if err := s.Advance(); err != nil {
		t.Fatalf("final advance: %v", err)
	}
	expectEvent(t, events, app.EventQuestionEnded)
	expectEvent(t, events, app.EventLeaderboardUpdate)
	ended := expectEvent(t, events, app.EventSessionEnded)
	if _, ok := ended.Payload.(app.SessionEndedPayload); !ok {
		t.Fatalf("session_ended should carry final standings")
	}
	if s.Status() != domain.StatusEnded {
		t.Fatalf("expected ended status, got %s", s.Status())
	}

	if err := s.Advance(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("advance after end must be invalid, got %v", err)
	}
	if s.Status() != domain.StatusEnded {
		t.Fatalf("failed advance must leave state unchanged")
	}
}

func TestEndQuestionEntersBreak(t *testing.T) {
	clock := newFakeClock()
	s := newTestSession(t, clock, domain.DefaultSessionConfig())
	s.Join("u1", "Alice")
	s.Start()

	if err := s.EndQuestion(); err != nil {
		t.Fatalf("end question: %v", err)
	}
	if s.Status() != domain.StatusQuestionBreak {
		t.Fatalf("expected question_break, got %s", s.Status())
	}
	if _, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "q1", Answer: "4"}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("submissions during break must be rejected, got %v", err)
	}

	if err := s.Advance(); err != nil {
		t.Fatalf("advance from break: %v", err)
	}
	if cur, ok := s.CurrentQuestion(); !ok || cur.Question.ID != "q2" {
		t.Fatalf("expected q2 after break, got %+v ok=%v", cur, ok)
	}
}

func TestPauseFreezesQuestionClock(t *testing.T) {
	clock := newFakeClock()
	s := newTestSession(t, clock, domain.DefaultSessionConfig())
	s.Join("u1", "Alice")
	s.Start()

	clock.Advance(5 * time.Second)
	if err := s.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "q1", Answer: "4"}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("paused session must reject submissions, got %v", err)
	}
	if err := s.Advance(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("paused session must reject advance, got %v", err)
	}

	clock.Advance(100 * time.Second) // wall time passes while paused
	if err := s.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	clock.Advance(5 * time.Second)

	res, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "q1", Answer: "4"})
	if err != nil {
		t.Fatalf("submit after resume: %v", err)
	}
	if res.ResponseTime != 10 {
		t.Fatalf("paused time must not count toward elapsed, got %v", res.ResponseTime)
	}
}

func TestViolationEnforcement(t *testing.T) {
	clock := newFakeClock()
	cfg := domain.DefaultSessionConfig()
	cfg.MaxViolations = 3
	s := newTestSession(t, clock, cfg)
	s.Join("u1", "Alice")
	s.Start()

	instructor, cancelInstructor := s.Subscribe(true)
	defer cancelInstructor()
	participant, cancelParticipant := s.Subscribe(false)
	defer cancelParticipant()

	// Fullscreen exit maps to pause by default.
	d, err := s.ReportViolation("u1", domain.ViolationFullscreenExit)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if d.Action != domain.ActionPause {
		t.Fatalf("expected pause action, got %+v", d)
	}
	alert := expectEvent(t, instructor, app.EventViolationAlert)
	if !alert.InstructorOnly {
		t.Fatalf("violation alerts are instructor-only")
	}
	select {
	case ev := <-participant:
		t.Fatalf("participants must not receive instructor alerts, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "q1", Answer: "4"}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("paused participant cannot submit, got %v", err)
	}

	// Two more violations cross the threshold and close the participant.
	s.ReportViolation("u1", domain.ViolationTabSwitch)
	d, _ = s.ReportViolation("u1", domain.ViolationCopyPaste)
	if d.Action != domain.ActionClose || !d.Escalated {
		t.Fatalf("expected escalation to close, got %+v", d)
	}
	if !s.Leaderboard().Entries[0].IsFlagged {
		t.Fatalf("escalated participant must be flagged on the leaderboard")
	}
}

func TestLeaveKeepsHistoricalRecord(t *testing.T) {
	clock := newFakeClock()
	s := newTestSession(t, clock, domain.DefaultSessionConfig())
	s.Join("u1", "Alice")
	s.Start()
	s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "q1", Answer: "4"})

	if err := s.Leave("u1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	lb := s.Leaderboard()
	if len(lb.Entries) != 1 || lb.Entries[0].Score != 100 {
		t.Fatalf("leaving must not erase the participant, got %+v", lb.Entries)
	}
	if _, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "q1", Answer: "4"}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("inactive participant cannot submit, got %v", err)
	}
}

type fakeRunner struct {
	results []scoring.TestResult
	err     error
}

func (r *fakeRunner) Run(_ context.Context, _, _ string, _ []domain.TestCase) ([]scoring.TestResult, error) {
	return r.results, r.err
}

func codingQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-code",
		Questions: []domain.Question{
			{
				ID:       "c1",
				Type:     domain.QuestionCoding,
				Prompt:   "Sum two ints from stdin.",
				Language: "python",
				TestCases: []domain.TestCase{
					{Input: "1 2", Expected: "3"},
					{Input: "4 5", Expected: "9"},
				},
				Points:    100,
				TimeLimit: 60,
			},
		},
	}
}

func TestCodingSubmissionAggregatesTestResults(t *testing.T) {
	clock := newFakeClock()
	runner := &fakeRunner{results: []scoring.TestResult{{Passed: true}, {Passed: true}}}
	s := app.NewSessionWithClock("CODE01", codingQuiz(), domain.DefaultSessionConfig(), runner, clock.Now)
	s.Join("u1", "Alice")
	s.Start()

	res, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "c1", Source: "print(sum(map(int, input().split())))"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Correct || res.Awarded != 100 {
		t.Fatalf("all tests passing should score fully, got %+v", res)
	}
}

func TestCodingRunnerFailureGradesIncorrect(t *testing.T) {
	clock := newFakeClock()
	runner := &fakeRunner{err: errors.New("sandbox timeout")}
	s := app.NewSessionWithClock("CODE02", codingQuiz(), domain.DefaultSessionConfig(), runner, clock.Now)
	s.Join("u1", "Alice")
	s.Start()

	res, err := s.Submit(context.Background(), "u1", domain.AnswerSubmission{QuestionID: "c1", Source: "whatever"})
	if err != nil {
		t.Fatalf("runner failure must not surface to the client: %v", err)
	}
	if res.Correct || res.Awarded != 0 {
		t.Fatalf("runner failure degrades to incorrect, got %+v", res)
	}
}

func TestAutoAdvanceEndsSessionOnExpiry(t *testing.T) {
	cfg := domain.DefaultSessionConfig()
	cfg.AutoAdvance = true
	quiz := domain.Quiz{
		ID: "quiz-timer",
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionTrueFalse, AnswerKey: "true", TimeLimit: 1},
		},
	}
	s := app.NewSession("TIMER1", quiz, cfg, nil)
	s.Join("u1", "Alice")
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for s.Status() != domain.StatusEnded {
		if time.Now().After(deadline) {
			t.Fatalf("expected auto-advance to end the session, status %s", s.Status())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestManualAdvanceCancelsPendingTimer(t *testing.T) {
	cfg := domain.DefaultSessionConfig()
	cfg.AutoAdvance = true
	quiz := domain.Quiz{
		ID: "quiz-timer",
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionTrueFalse, AnswerKey: "true", TimeLimit: 1},
			{ID: "q2", Type: domain.QuestionTrueFalse, AnswerKey: "false"}, // untimed
		},
	}
	s := app.NewSession("TIMER2", quiz, cfg, nil)
	s.Join("u1", "Alice")
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Advance(); err != nil {
		t.Fatalf("manual advance: %v", err)
	}

	// If q1's timer were still live it would fire around the 1s mark and
	// advance again, ending the session.
	time.Sleep(1300 * time.Millisecond)
	cur, ok := s.CurrentQuestion()
	if !ok || cur.Question.ID != "q2" {
		t.Fatalf("canceled timer must not double-advance; status=%s", s.Status())
	}
}
