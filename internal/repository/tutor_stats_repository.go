package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lingo-tutor-api/internal/models"
)

// TutorStatsRepository maintains derived tutor counters.
type TutorStatsRepository struct {
	db *sqlx.DB
}

// NewTutorStatsRepository builds repository.
func NewTutorStatsRepository(db *sqlx.DB) *TutorStatsRepository {
	return &TutorStatsRepository{db: db}
}

// IncrementCompleted bumps the completed lesson counter of a tutor.
func (r *TutorStatsRepository) IncrementCompleted(ctx context.Context, tutorID string, at time.Time) error {
	const query = `INSERT INTO tutor_stats (tutor_id, lessons_completed, updated_at) VALUES ($1, 1, $2)
ON CONFLICT (tutor_id) DO UPDATE SET lessons_completed = tutor_stats.lessons_completed + 1, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, tutorID, at); err != nil {
		return fmt.Errorf("increment tutor stats: %w", err)
	}
	return nil
}

// Get returns the counters of a tutor. Returns sql.ErrNoRows when none recorded yet.
func (r *TutorStatsRepository) Get(ctx context.Context, tutorID string) (*models.TutorStats, error) {
	const query = `SELECT tutor_id, lessons_completed, updated_at FROM tutor_stats WHERE tutor_id = $1`
	var stats models.TutorStats
	if err := r.db.GetContext(ctx, &stats, query, tutorID); err != nil {
		return nil, err
	}
	return &stats, nil
}
