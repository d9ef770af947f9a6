package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lingo-tutor-api/internal/models"
)

func TestLessonRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lessons")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	lesson := &models.Lesson{
		TutorID:         "tutor-1",
		StudentID:       "student-1",
		Date:            scenarioDate(),
		StartHour:       10,
		StartsAt:        scenarioDate().Add(10 * time.Hour),
		DurationMinutes: 60,
		Status:          models.LessonStatusScheduled,
	}
	require.NoError(t, repo.Create(context.Background(), nil, lesson))
	assert.NotEmpty(t, lesson.ID)
	assert.False(t, lesson.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryUpdateStatusCancelled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)
	now := time.Now().UTC()
	by := "student-1"
	reason := "sick"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE lessons SET status = $1, updated_at = $2, cancelled_at = $2, refunded = $3, cancelled_by = $4, cancellation_reason = $5 WHERE id = $6 AND status = $7")).
		WithArgs(models.LessonStatusCancelled, now, true, by, reason, "lesson-1", models.LessonStatusScheduled).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), nil, models.LessonStatusUpdate{
		LessonID:           "lesson-1",
		From:               models.LessonStatusScheduled,
		To:                 models.LessonStatusCancelled,
		At:                 now,
		Refunded:           true,
		CancelledBy:        &by,
		CancellationReason: &reason,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryUpdateStatusDetectsConcurrentChange(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE lessons SET status = $1, updated_at = $2, started_at = $2 WHERE id = $3 AND status = $4")).
		WithArgs(models.LessonStatusInProgress, now, "lesson-1", models.LessonStatusScheduled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), nil, models.LessonStatusUpdate{
		LessonID: "lesson-1",
		From:     models.LessonStatusScheduled,
		To:       models.LessonStatusInProgress,
		At:       now,
	})
	require.ErrorIs(t, err, ErrStatusChanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonHistoryRepositoryAppend(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonHistoryRepository(db)
	prev := models.LessonStatusScheduled

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO lesson_status_history")).
		WithArgs("lesson-1", models.LessonStatusCancelled, "scheduled", "sick", models.RoleStudent, "student-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))

	entry := &models.LessonStatusHistory{
		LessonID:        "lesson-1",
		Status:          models.LessonStatusCancelled,
		PreviousStatus:  &prev,
		Reason:          "sick",
		ChangedByRole:   models.RoleStudent,
		ChangedByUserID: "student-1",
	}
	require.NoError(t, repo.Append(context.Background(), nil, entry))
	assert.Equal(t, int64(2), entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonHistoryRepositoryListByLesson(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonHistoryRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "lesson_id", "status", "previous_status", "reason", "changed_by_role", "changed_by_user_id", "created_at"}).
		AddRow(int64(1), "lesson-1", "scheduled", nil, "booked", "STUDENT", "student-1", now).
		AddRow(int64(2), "lesson-1", "cancelled", "scheduled", "sick", "STUDENT", "student-1", now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM lesson_status_history WHERE lesson_id = $1 ORDER BY id ASC")).
		WithArgs("lesson-1").
		WillReturnRows(rows)

	history, err := repo.ListByLesson(context.Background(), "lesson-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Nil(t, history[0].PreviousStatus)
	require.NotNil(t, history[1].PreviousStatus)
	assert.Equal(t, models.LessonStatusScheduled, *history[1].PreviousStatus)
}

func TestTutorStatsRepositoryIncrementCompleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTutorStatsRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tutor_stats") + ".*lessons_completed \\+ 1").
		WithArgs("tutor-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.IncrementCompleted(context.Background(), "tutor-1", now))
	assert.NoError(t, mock.ExpectationsWereMet())
}
