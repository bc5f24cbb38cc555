// Package scoring contains the pure scoring rules for quiz submissions.
// Nothing here touches session state; the coordinator feeds it a question,
// an answer and an elapsed time and records whatever comes back.
package scoring

import (
	"context"
	"math"
	"strings"

	"livequiz-service/internal/domain"
)

// TestResult is the outcome of running one coding test case.
type TestResult struct {
	Passed bool   `json:"passed"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// CodeRunner executes submitted code against test cases. Implementations
// talk to an external sandboxed runner; this package never executes code.
type CodeRunner interface {
	Run(ctx context.Context, language, source string, cases []domain.TestCase) ([]TestResult, error)
}

// MatchKey reports whether a free-text answer matches the question's answer
// key. Comparison is case-insensitive with surrounding whitespace ignored;
// there is no partial credit.
func MatchKey(q domain.Question, answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.AnswerKey))
}

// AllPassed reports whether a coding submission is correct: every test case
// must have produced a result and every result must have passed.
func AllPassed(results []TestResult, totalCases int) bool {
	if totalCases == 0 || len(results) < totalCases {
		return false
	}
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Points computes the points earned for a submission.
//
// Incorrect answers earn 0. A submission after the time limit earns 0 even
// when correct; elapsed exactly at the limit still scores. With the question's
// time-bonus flag set, points decay linearly from the full value at elapsed=0
// down to base*minFraction at the limit, rounded half-up. Never negative.
func Points(q domain.Question, correct bool, elapsed, minFraction float64) int {
	if !correct || elapsed < 0 {
		return 0
	}
	base := q.BasePoints()
	limit := float64(q.TimeLimit)
	if limit > 0 && elapsed > limit {
		return 0
	}
	if !q.TimeBonus || limit <= 0 {
		return base
	}
	if minFraction <= 0 || minFraction > 1 {
		minFraction = 0.5
	}
	remaining := 1 - elapsed/limit
	frac := minFraction + (1-minFraction)*remaining
	if frac < minFraction {
		frac = minFraction
	}
	return roundHalfUp(float64(base) * frac)
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
