package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lingo-tutor-api/internal/models"
)

const lessonColumns = `id, tutor_id, student_id, package_assignment_id, lesson_date, start_hour, starts_at, duration_minutes,
lesson_type, topic, notes, status, meeting_url, refunded, cancelled_by, cancelled_at, cancellation_reason,
started_at, completed_at, tutor_feedback, student_feedback, created_at, updated_at`

// LessonRepository persists lessons. Rows are never deleted.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository builds repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

func (r *LessonRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a lesson row.
func (r *LessonRepository) Create(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = time.Now().UTC()
	}
	lesson.UpdatedAt = lesson.CreatedAt

	const query = `INSERT INTO lessons (id, tutor_id, student_id, package_assignment_id, lesson_date, start_hour, starts_at,
duration_minutes, lesson_type, topic, notes, status, meeting_url, refunded, created_at, updated_at)
VALUES (:id, :tutor_id, :student_id, :package_assignment_id, :lesson_date, :start_hour, :starts_at,
:duration_minutes, :lesson_type, :topic, :notes, :status, :meeting_url, :refunded, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, lesson); err != nil {
		return fmt.Errorf("insert lesson: %w", err)
	}
	return nil
}

// FindByID loads a lesson. Returns sql.ErrNoRows when missing.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// FindByIDForUpdate loads and row-locks a lesson inside a transaction.
func (r *LessonRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1 FOR UPDATE`
	var lesson models.Lesson
	if err := sqlx.GetContext(ctx, r.exec(exec), &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// UpdateStatus applies a transition guarded by the expected previous status.
func (r *LessonRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, update models.LessonStatusUpdate) error {
	sets := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{update.To, update.At}
	switch update.To {
	case models.LessonStatusInProgress:
		sets = append(sets, "started_at = $2")
	case models.LessonStatusCompleted:
		sets = append(sets, "completed_at = $2")
	case models.LessonStatusCancelled:
		args = append(args, update.Refunded, update.CancelledBy, update.CancellationReason)
		sets = append(sets, "cancelled_at = $2", "refunded = $3", "cancelled_by = $4", "cancellation_reason = $5")
	}
	args = append(args, update.LessonID, update.From)
	query := fmt.Sprintf(`UPDATE lessons SET %s WHERE id = $%d AND status = $%d`, strings.Join(sets, ", "), len(args)-1, len(args))

	result, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update lesson status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("lesson status rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStatusChanged
	}
	return nil
}

// UpdateFeedback stores tutor and/or student feedback; nil leaves a field unchanged.
func (r *LessonRepository) UpdateFeedback(ctx context.Context, id string, tutorFeedback, studentFeedback *string) error {
	const query = `UPDATE lessons
SET tutor_feedback = COALESCE($1, tutor_feedback), student_feedback = COALESCE($2, student_feedback), updated_at = $3
WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, tutorFeedback, studentFeedback, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update lesson feedback: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("lesson feedback rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
