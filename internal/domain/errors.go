package domain

import "errors"

var (
	// ErrInvalidState is returned when an operation is not valid in the
	// session's or participant's current state.
	ErrInvalidState = errors.New("operation not valid in current state")
	// ErrSessionNotFound is returned when no active session matches a join code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrDuplicateSubmission is returned when a response already exists for
	// the (participant, question) pair and resubmission is not configured.
	ErrDuplicateSubmission = errors.New("answer already submitted for this question")
	// ErrStaleQuestion is returned when a submission targets a question that
	// is no longer (or not yet) the session's current question.
	ErrStaleQuestion = errors.New("question is not the current question")
	// ErrSessionFull is returned when the participant cap has been reached.
	ErrSessionFull = errors.New("session is at capacity")
	// ErrNicknameTaken is returned when the nickname is already used in the session.
	ErrNicknameTaken = errors.New("nickname already taken in this session")
)
