package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lingo-tutor-api/internal/models"
)

// LessonHistoryRepository is append-only: rows are never updated or deleted.
type LessonHistoryRepository struct {
	db *sqlx.DB
}

// NewLessonHistoryRepository builds repository.
func NewLessonHistoryRepository(db *sqlx.DB) *LessonHistoryRepository {
	return &LessonHistoryRepository{db: db}
}

func (r *LessonHistoryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Append writes one transition row and fills its id.
func (r *LessonHistoryRepository) Append(ctx context.Context, exec sqlx.ExtContext, entry *models.LessonStatusHistory) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO lesson_status_history (lesson_id, status, previous_status, reason, changed_by_role, changed_by_user_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry.ID, query,
		entry.LessonID, entry.Status, entry.PreviousStatus, entry.Reason, entry.ChangedByRole, entry.ChangedByUserID, entry.CreatedAt); err != nil {
		return fmt.Errorf("append lesson status history: %w", err)
	}
	return nil
}

// ListByLesson returns the audit trail of a lesson in write order.
func (r *LessonHistoryRepository) ListByLesson(ctx context.Context, lessonID string) ([]models.LessonStatusHistory, error) {
	const query = `SELECT id, lesson_id, status, previous_status, reason, changed_by_role, changed_by_user_id, created_at
FROM lesson_status_history WHERE lesson_id = $1 ORDER BY id ASC`
	var rows []models.LessonStatusHistory
	if err := r.db.SelectContext(ctx, &rows, query, lessonID); err != nil {
		return nil, fmt.Errorf("list lesson status history: %w", err)
	}
	return rows, nil
}
