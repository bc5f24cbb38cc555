package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"livequiz-service/internal/domain"
)

type sessionResultRow struct {
	bun.BaseModel `bun:"table:session_results"`

	ID       int64     `bun:"id,pk,autoincrement"`
	JoinCode string    `bun:"join_code,notnull"`
	QuizID   string    `bun:"quiz_id,notnull"`
	EndedAt  time.Time `bun:"ended_at,notnull"`
	Data     []byte    `bun:"data,type:jsonb,notnull"`
}

// ResultsRepository writes final session results to Postgres for reporting.
// The full result (standings plus responses) is kept as one JSONB document;
// reporting queries slice it downstream.
type ResultsRepository struct {
	db *bun.DB
}

func NewResultsRepository(db *bun.DB) *ResultsRepository {
	return &ResultsRepository{db: db}
}

func (r *ResultsRepository) SaveResult(ctx context.Context, result domain.SessionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal session result %s: %w", result.JoinCode, err)
	}
	row := &sessionResultRow{
		JoinCode: result.JoinCode,
		QuizID:   result.QuizID,
		EndedAt:  result.EndedAt,
		Data:     data,
	}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert session result %s: %w", result.JoinCode, err)
	}
	return nil
}
