package app

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/scoring"
	"livequiz-service/internal/violation"
)

// Session is the coordinator for one live quiz run. It is the only writer of
// the session's state; every operation takes the session mutex, so
// submissions, advancement and violation handling never interleave.
// Operations on distinct sessions share nothing.
type Session struct {
	joinCode string
	quiz     domain.Quiz
	cfg      domain.SessionConfig
	runner   scoring.CodeRunner
	now      func() time.Time
	onEnded  func(domain.SessionResult)

	mu                sync.RWMutex
	status            domain.SessionStatus
	paused            bool
	pausedElapsed     time.Duration
	order             []int
	current           int
	questionStartedAt time.Time
	createdAt         time.Time
	joinSeq           int
	participants      map[string]*domain.Participant
	responses         map[string]map[string]*domain.Response
	subscribers       map[chan Event]bool
	timer             *time.Timer
	timerGen          int
	rnd               *rand.Rand
}

// NewSession builds a pending session for one quiz run. runner may be nil
// when no code-execution collaborator is configured; coding questions then
// grade as incorrect.
func NewSession(joinCode string, quiz domain.Quiz, cfg domain.SessionConfig, runner scoring.CodeRunner) *Session {
	return NewSessionWithClock(joinCode, quiz, cfg, runner, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(joinCode string, quiz domain.Quiz, cfg domain.SessionConfig, runner scoring.CodeRunner, now func() time.Time) *Session {
	return &Session{
		joinCode:     joinCode,
		quiz:         quiz,
		cfg:          cfg,
		runner:       runner,
		now:          now,
		status:       domain.StatusPending,
		current:      -1,
		createdAt:    now(),
		participants: make(map[string]*domain.Participant),
		responses:    make(map[string]map[string]*domain.Response),
		subscribers:  make(map[chan Event]bool),
		rnd:          rand.New(rand.NewSource(now().UnixNano())),
	}
}

// SetResultSink registers the callback invoked (on its own goroutine) with
// the final results when the session ends. Must be called before Start.
func (s *Session) SetResultSink(fn func(domain.SessionResult)) {
	s.onEnded = fn
}

// JoinCode returns the session's join code.
func (s *Session) JoinCode() string { return s.joinCode }

// QuizID returns the id of the quiz this session runs.
func (s *Session) QuizID() string { return s.quiz.ID }

// Status returns the session's lifecycle status.
func (s *Session) Status() domain.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Join adds a participant, or re-attaches one already in the roster
// (rejoin-by-identity after a disconnect). New joins are rejected once the
// session is full, ended, or underway without late join configured.
func (s *Session) Join(userID, nickname string) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusEnded {
		return domain.Participant{}, domain.ErrInvalidState
	}

	now := s.now()
	if p, ok := s.participants[userID]; ok {
		p.Active = true
		p.LastSeen = now
		s.broadcastLocked(Event{Type: EventParticipantJoined, Payload: RosterPayload{
			ParticipantID: p.ID, Nickname: p.Nickname, Rejoined: true, Roster: len(s.participants),
		}})
		return *p, nil
	}

	if s.status != domain.StatusPending && !s.cfg.AllowLateJoin {
		return domain.Participant{}, domain.ErrInvalidState
	}
	if s.cfg.MaxParticipants > 0 && len(s.participants) >= s.cfg.MaxParticipants {
		return domain.Participant{}, domain.ErrSessionFull
	}
	for _, p := range s.participants {
		if strings.EqualFold(p.Nickname, nickname) {
			return domain.Participant{}, domain.ErrNicknameTaken
		}
	}

	s.joinSeq++
	p := &domain.Participant{
		ID:        userID,
		Nickname:  nickname,
		JoinOrder: s.joinSeq,
		JoinedAt:  now,
		LastSeen:  now,
		Active:    true,
	}
	s.participants[userID] = p
	s.broadcastLocked(Event{Type: EventParticipantJoined, Payload: RosterPayload{
		ParticipantID: p.ID, Nickname: p.Nickname, Roster: len(s.participants),
	}})
	return *p, nil
}

// Start moves the session from pending to its first question.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusPending || len(s.quiz.Questions) == 0 {
		return domain.ErrInvalidState
	}

	s.order = make([]int, len(s.quiz.Questions))
	for i := range s.order {
		s.order[i] = i
	}
	if s.cfg.ShuffleQuestions {
		s.rnd.Shuffle(len(s.order), func(i, j int) {
			s.order[i], s.order[j] = s.order[j], s.order[i]
		})
	}

	s.current = 0
	s.startQuestionLocked()
	return nil
}

// Advance ends the current question phase and either starts the next
// question or ends the session. Manual instructor advancement and the
// auto-advance timer both land here, so the two paths cannot diverge; a
// manual advance bumps the timer generation, which cancels any pending
// auto-advance callback.
func (s *Session) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || (s.status != domain.StatusQuestionActive && s.status != domain.StatusQuestionBreak) {
		return domain.ErrInvalidState
	}
	s.advanceLocked()
	return nil
}

// EndQuestion stops answer intake for the current question without moving on,
// leaving the session in the break phase until Advance.
func (s *Session) EndQuestion() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || s.status != domain.StatusQuestionActive {
		return domain.ErrInvalidState
	}
	s.finishQuestionLocked()
	return nil
}

// Pause freezes the session: submissions are rejected and the auto-advance
// timer stops. Question timing resumes where it left off.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || (s.status != domain.StatusQuestionActive && s.status != domain.StatusQuestionBreak) {
		return domain.ErrInvalidState
	}
	s.paused = true
	if s.status == domain.StatusQuestionActive {
		s.pausedElapsed = s.now().Sub(s.questionStartedAt)
		s.cancelTimerLocked()
	}
	s.broadcastLocked(Event{Type: EventSessionPaused})
	return nil
}

// Resume returns a paused session to its prior phase.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		return domain.ErrInvalidState
	}
	s.paused = false
	if s.status == domain.StatusQuestionActive {
		s.questionStartedAt = s.now().Add(-s.pausedElapsed)
		if q, ok := s.currentQuestionLocked(); ok && s.cfg.AutoAdvance && q.TimeLimit > 0 {
			remaining := time.Duration(q.TimeLimit)*time.Second - s.pausedElapsed
			if remaining < 0 {
				remaining = 0
			}
			s.scheduleTimerLocked(remaining)
		}
	}
	s.pausedElapsed = 0
	s.broadcastLocked(Event{Type: EventSessionResumed})
	return nil
}

// Submit grades one participant's answer to the current question and updates
// their aggregates. Coding submissions run their test cases through the
// external runner outside the session lock; the question and duplicate checks
// are re-validated before anything is recorded, so a session that advanced
// while code was executing rejects the submission instead of mis-filing it.
func (s *Session) Submit(ctx context.Context, userID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	s.mu.Lock()
	q, elapsed, err := s.admitSubmissionLocked(userID, sub.QuestionID)
	s.mu.Unlock()
	if err != nil {
		return domain.AnswerResult{}, err
	}

	var (
		correct bool
		tests   []bool
	)
	if q.Type == domain.QuestionCoding {
		results := s.runTests(ctx, q, sub.Source)
		correct = scoring.AllPassed(results, len(q.TestCases))
		tests = make([]bool, len(results))
		for i, r := range results {
			tests[i] = r.Passed
		}
	} else {
		correct = scoring.MatchKey(q, sub.Answer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, err := s.admitSubmissionLocked(userID, sub.QuestionID); err != nil {
		return domain.AnswerResult{}, err
	}

	p := s.participants[userID]
	points := scoring.Points(q, correct, elapsed, s.cfg.MinBonusFraction)
	resp := &domain.Response{
		ParticipantID: userID,
		QuestionID:    q.ID,
		Answer:        sub.Answer,
		TestResults:   tests,
		Correct:       correct,
		Points:        points,
		ResponseTime:  elapsed,
		AnsweredAt:    s.now(),
	}
	if q.Type == domain.QuestionCoding {
		resp.Answer = sub.Source
	}
	s.recordResponseLocked(p, resp)

	answered := len(s.responsesForLocked(q.ID))
	s.broadcastLocked(Event{Type: EventAnswerProgress, InstructorOnly: true, Payload: AnswerProgressPayload{
		QuestionID: q.ID, ParticipantID: p.ID, Nickname: p.Nickname, Answered: answered, Roster: len(s.participants),
	}})
	s.broadcastLocked(Event{Type: EventLeaderboardUpdate, InstructorOnly: true, Payload: s.rankLocked()})

	return domain.AnswerResult{
		QuestionID:   q.ID,
		Correct:      correct,
		Awarded:      points,
		TotalScore:   p.Score,
		ResponseTime: elapsed,
	}, nil
}

// admitSubmissionLocked validates the submission preconditions and returns
// the current question plus the elapsed time at admission.
func (s *Session) admitSubmissionLocked(userID, questionID string) (domain.Question, float64, error) {
	if s.paused || s.status != domain.StatusQuestionActive {
		return domain.Question{}, 0, domain.ErrInvalidState
	}
	p, ok := s.participants[userID]
	if !ok {
		return domain.Question{}, 0, domain.ErrParticipantNotFound
	}
	if !p.Active || p.IsPaused {
		return domain.Question{}, 0, domain.ErrInvalidState
	}
	q, ok := s.currentQuestionLocked()
	if !ok {
		return domain.Question{}, 0, domain.ErrInvalidState
	}
	if q.ID != questionID {
		for _, other := range s.quiz.Questions {
			if other.ID == questionID {
				return domain.Question{}, 0, domain.ErrStaleQuestion
			}
		}
		return domain.Question{}, 0, domain.ErrQuestionNotFound
	}
	if _, exists := s.responses[userID][q.ID]; exists && !s.cfg.AllowResubmit {
		return domain.Question{}, 0, domain.ErrDuplicateSubmission
	}
	return q, s.now().Sub(s.questionStartedAt).Seconds(), nil
}

// recordResponseLocked stores the response and folds it into the
// participant's aggregates. Overwrites (resubmission configured) first back
// out the previous response so totals stay consistent.
func (s *Session) recordResponseLocked(p *domain.Participant, resp *domain.Response) {
	byQuestion, ok := s.responses[p.ID]
	if !ok {
		byQuestion = make(map[string]*domain.Response)
		s.responses[p.ID] = byQuestion
	}

	sum := p.AvgResponseTime * float64(p.Attempted)
	if old, exists := byQuestion[resp.QuestionID]; exists {
		p.Score -= old.Points
		if old.Correct {
			p.Correct--
		}
		sum -= old.ResponseTime
	} else {
		p.Attempted++
	}

	byQuestion[resp.QuestionID] = resp
	p.Score += resp.Points
	if resp.Correct {
		p.Correct++
	}
	sum += resp.ResponseTime
	p.AvgResponseTime = sum / float64(p.Attempted)
	p.LastSeen = resp.AnsweredAt
}

// runTests executes a coding submission via the external runner. Runner
// failures and timeouts degrade to all-tests-failed so quiz flow continues.
func (s *Session) runTests(ctx context.Context, q domain.Question, source string) []scoring.TestResult {
	if s.runner == nil {
		return nil
	}
	results, err := s.runner.Run(ctx, q.Language, source, q.TestCases)
	if err != nil {
		log.Printf("code runner failed for session %s question %s: %v", s.joinCode, q.ID, err)
		return nil
	}
	return results
}

// ReportViolation applies the anti-cheat policy to one reported event and
// carries out the resulting enforcement on the participant.
func (s *Session) ReportViolation(userID string, vtype domain.ViolationType) (violation.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusEnded {
		return violation.Decision{}, domain.ErrInvalidState
	}
	p, ok := s.participants[userID]
	if !ok {
		return violation.Decision{}, domain.ErrParticipantNotFound
	}

	d := violation.Record(p, vtype, s.cfg)
	switch d.Action {
	case domain.ActionPause:
		p.IsPaused = true
		p.PauseReason = "violation: " + string(vtype)
	case domain.ActionClose:
		p.Active = false
		p.IsFlagged = true
		p.PauseReason = "removed: violation limit"
	}

	s.broadcastLocked(Event{Type: EventViolationAlert, InstructorOnly: true, Payload: ViolationAlertPayload{
		ParticipantID: p.ID,
		Nickname:      p.Nickname,
		Violation:     vtype,
		Action:        d.Action,
		Total:         d.Total,
		Escalated:     d.Escalated,
		Flagged:       p.IsFlagged,
	}})
	return d, nil
}

// Heartbeat refreshes a participant's liveness timestamp.
func (s *Session) Heartbeat(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[userID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	p.LastSeen = s.now()
	return nil
}

// Leave marks a participant inactive. The roster entry and score persist for
// results and for rejoin-by-identity.
func (s *Session) Leave(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[userID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	now := s.now()
	p.Active = false
	p.LeftAt = now
	p.LastSeen = now
	s.broadcastLocked(Event{Type: EventParticipantLeft, Payload: RosterPayload{
		ParticipantID: p.ID, Nickname: p.Nickname, Roster: len(s.participants),
	}})
	return nil
}

// Leaderboard recomputes the standings from current participant state.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rankLocked()
}

// CurrentQuestion returns the in-flight question announcement, for catching
// up late joiners and reconnections. ok is false between questions.
func (s *Session) CurrentQuestion() (QuestionStartedPayload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != domain.StatusQuestionActive {
		return QuestionStartedPayload{}, false
	}
	q, ok := s.currentQuestionLocked()
	if !ok {
		return QuestionStartedPayload{}, false
	}
	return QuestionStartedPayload{
		Index:     s.current,
		Total:     len(s.order),
		Question:  s.viewLocked(q, false),
		StartedAt: s.questionStartedAt,
	}, true
}

// ShuffledCurrentQuestion is the unicast reissue of the current question
// with reshuffled options, used for the shuffle violation action.
func (s *Session) ShuffledCurrentQuestion() (QuestionStartedPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusQuestionActive {
		return QuestionStartedPayload{}, false
	}
	q, ok := s.currentQuestionLocked()
	if !ok {
		return QuestionStartedPayload{}, false
	}
	return QuestionStartedPayload{
		Index:     s.current,
		Total:     len(s.order),
		Question:  s.viewLocked(q, true),
		StartedAt: s.questionStartedAt,
	}, true
}

// Subscribe returns a channel receiving this session's events in emission
// order. instructor subscriptions additionally receive instructor-only
// events. The caller must invoke cancel to avoid leaks.
func (s *Session) Subscribe(instructor bool) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subscribers[ch] = instructor
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) currentQuestionLocked() (domain.Question, bool) {
	if s.current < 0 || s.current >= len(s.order) {
		return domain.Question{}, false
	}
	return s.quiz.Questions[s.order[s.current]], true
}

func (s *Session) startQuestionLocked() {
	s.status = domain.StatusQuestionActive
	s.questionStartedAt = s.now()
	q, _ := s.currentQuestionLocked()
	s.broadcastLocked(Event{Type: EventQuestionStarted, Payload: QuestionStartedPayload{
		Index:     s.current,
		Total:     len(s.order),
		Question:  s.viewLocked(q, s.cfg.ShuffleOptions),
		StartedAt: s.questionStartedAt,
	}})
	if s.cfg.AutoAdvance && q.TimeLimit > 0 {
		s.scheduleTimerLocked(time.Duration(q.TimeLimit) * time.Second)
	}
}

// finishQuestionLocked moves question_active to question_break and publishes
// the interim standings.
func (s *Session) finishQuestionLocked() {
	s.cancelTimerLocked()
	q, _ := s.currentQuestionLocked()
	s.status = domain.StatusQuestionBreak
	s.questionStartedAt = time.Time{}
	s.broadcastLocked(Event{Type: EventQuestionEnded, Payload: QuestionEndedPayload{
		QuestionID: q.ID,
		Answered:   len(s.responsesForLocked(q.ID)),
		Roster:     len(s.participants),
	}})
	s.broadcastLocked(Event{Type: EventLeaderboardUpdate, Payload: s.rankLocked()})
}

func (s *Session) advanceLocked() {
	if s.status == domain.StatusQuestionActive {
		s.finishQuestionLocked()
	}
	if s.current+1 < len(s.order) {
		s.current++
		s.startQuestionLocked()
		return
	}
	s.endSessionLocked()
}

func (s *Session) endSessionLocked() {
	s.cancelTimerLocked()
	s.status = domain.StatusEnded
	s.questionStartedAt = time.Time{}

	lb := s.rankLocked()
	s.broadcastLocked(Event{Type: EventSessionEnded, Payload: SessionEndedPayload{Leaderboard: lb}})

	if s.onEnded != nil {
		result := domain.SessionResult{
			JoinCode:    s.joinCode,
			QuizID:      s.quiz.ID,
			EndedAt:     s.now(),
			Leaderboard: lb,
		}
		for _, byQuestion := range s.responses {
			for _, resp := range byQuestion {
				result.Responses = append(result.Responses, *resp)
			}
		}
		go s.onEnded(result)
	}
}

func (s *Session) scheduleTimerLocked(d time.Duration) {
	s.cancelTimerLocked()
	gen := s.timerGen
	s.timer = time.AfterFunc(d, func() { s.autoAdvance(gen) })
}

// cancelTimerLocked invalidates any pending auto-advance callback. Bumping
// the generation makes a fired-but-not-yet-run callback a no-op, so a manual
// advance racing the timer can never double-advance.
func (s *Session) cancelTimerLocked() {
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// autoAdvance is the timer callback for question expiry. It takes the same
// session lock as every other operation and re-checks its generation: if a
// manual advance (or pause) got there first, the generation moved on and the
// callback does nothing.
func (s *Session) autoAdvance(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.timerGen || s.paused || s.status != domain.StatusQuestionActive {
		return
	}
	s.advanceLocked()
}

func (s *Session) responsesForLocked(questionID string) []*domain.Response {
	var out []*domain.Response
	for _, byQuestion := range s.responses {
		if resp, ok := byQuestion[questionID]; ok {
			out = append(out, resp)
		}
	}
	return out
}

func (s *Session) viewLocked(q domain.Question, shuffleOptions bool) QuestionView {
	view := QuestionView{
		ID:        q.ID,
		Type:      q.Type,
		Prompt:    q.Prompt,
		Language:  q.Language,
		Points:    q.BasePoints(),
		TimeLimit: q.TimeLimit,
		TimeBonus: q.TimeBonus,
	}
	view.Options = append(view.Options, q.Options...)
	if shuffleOptions && len(view.Options) > 1 {
		s.rnd.Shuffle(len(view.Options), func(i, j int) {
			view.Options[i], view.Options[j] = view.Options[j], view.Options[i]
		})
	}
	for _, tc := range q.TestCases {
		view.TestInputs = append(view.TestInputs, tc.Input)
	}
	return view
}

func (s *Session) rankLocked() domain.Leaderboard {
	participants := make([]*domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		participants = append(participants, p)
	}
	return Rank(s.joinCode, participants, s.now())
}

func (s *Session) broadcastLocked(ev Event) {
	for ch, instructor := range s.subscribers {
		if ev.InstructorOnly && !instructor {
			continue
		}
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop its oldest event rather than stalling
			// the whole session's fan-out.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
