package app

import (
	"sort"
	"time"

	"livequiz-service/internal/domain"
)

// Rank derives the standings from participant state. Ordering: score
// descending, then average response time ascending (faster breaks ties), then
// join order ascending as the deterministic last resort. Ranks are dense.
// The result is recomputed from scratch on every call; nothing is cached.
func Rank(joinCode string, participants []*domain.Participant, at time.Time) domain.Leaderboard {
	sorted := make([]*domain.Participant, len(participants))
	copy(sorted, participants)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.AvgResponseTime != b.AvgResponseTime {
			return a.AvgResponseTime < b.AvgResponseTime
		}
		return a.JoinOrder < b.JoinOrder
	})

	entries := make([]domain.LeaderboardEntry, 0, len(sorted))
	for i, p := range sorted {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:            i + 1,
			ParticipantID:   p.ID,
			Nickname:        p.Nickname,
			Score:           p.Score,
			Correct:         p.Correct,
			Attempted:       p.Attempted,
			AvgResponseTime: p.AvgResponseTime,
			IsFlagged:       p.IsFlagged,
		})
	}

	return domain.Leaderboard{
		JoinCode:  joinCode,
		Entries:   entries,
		UpdatedAt: at,
	}
}
