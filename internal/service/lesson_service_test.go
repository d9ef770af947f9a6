package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lingo-tutor-api/internal/dto"
	"github.com/noah-isme/lingo-tutor-api/internal/events"
	"github.com/noah-isme/lingo-tutor-api/internal/models"
	"github.com/noah-isme/lingo-tutor-api/pkg/clock"
	appErrors "github.com/noah-isme/lingo-tutor-api/pkg/errors"
)

var (
	lessonDay   = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	lessonStart = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	bookingTime = time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)
)

type lessonFixture struct {
	db           *memoryDB
	clock        *clock.Fixed
	availability *AvailabilityService
	ledger       *LedgerService
	lessons      *LessonService
	emitter      *recordingEmitter
}

func newLessonFixture(t *testing.T) *lessonFixture {
	t.Helper()
	db := newMemoryDB()
	clk := clock.NewFixed(bookingTime)
	validate := validator.New()
	metrics := NewMetricsService()
	cache := NewCacheService(newMemoryCache(), metrics, time.Minute, zap.NewNop(), true)
	emitter := &recordingEmitter{}

	availability := NewAvailabilityService(memUnits{db}, db, cache, clk, validate, zap.NewNop(), AvailabilityConfig{})
	ledger := NewLedgerService(memLedger{db}, db, clk, metrics, validate, zap.NewNop())
	lessons := NewLessonService(memLessons{db}, memHistory{db}, memUnits{db}, ledger, memLedger{db}, db,
		WithLessonClock(clk),
		WithLessonEvents(emitter),
		WithAvailabilityCache(availability),
		WithLessonMetrics(metrics),
		WithLessonValidator(validate),
	)

	_, err := availability.Publish(context.Background(), "tutor-1", dto.PublishAvailabilityRequest{
		Date: "2025-03-10", FromHour: 8, ToHour: 16, Capacity: 1,
	})
	require.NoError(t, err)

	db.putAssignment(models.PackageAssignment{
		ID: "pkg-1", StudentID: "student-1", PackageID: "conversation-10",
		HoursRemaining: 5, ExpiresAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), IsActive: true,
	})

	return &lessonFixture{db: db, clock: clk, availability: availability, ledger: ledger, lessons: lessons, emitter: emitter}
}

func bookingRequest(student, assignment string) dto.BookLessonRequest {
	req := dto.BookLessonRequest{
		TutorID:         "tutor-1",
		StudentID:       student,
		Date:            "2025-03-10",
		StartTime:       "10:00",
		DurationMinutes: 60,
		LessonType:      "conversation",
	}
	if assignment != "" {
		req.PackageAssignmentID = &assignment
	}
	return req
}

func (f *lessonFixture) book(t *testing.T) *models.Lesson {
	t.Helper()
	lesson, err := f.lessons.BookLesson(context.Background(), bookingRequest("student-1", "pkg-1"), studentActor)
	require.NoError(t, err)
	return lesson
}

func TestBookAndCancelWithRefundRestoresHoursAndSlot(t *testing.T) {
	f := newLessonFixture(t)

	lesson := f.book(t)
	assert.Equal(t, lessonStart, lesson.StartsAt)
	assert.Equal(t, models.LessonStatusScheduled, lesson.Status)
	assert.Equal(t, 4, f.db.assignment("pkg-1").HoursRemaining)
	unit, ok := f.db.unit("tutor-1", lessonDay, 10)
	require.True(t, ok)
	assert.Equal(t, 1, unit.HoursBooked)
	assert.False(t, unit.IsOpen)

	result, err := f.lessons.CancelLesson(context.Background(), lesson.ID, studentActor, "travelling",
		time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, result.Refunded)
	assert.Equal(t, models.LessonStatusCancelled, result.Lesson.Status)
	assert.Equal(t, 5, f.db.assignment("pkg-1").HoursRemaining)

	unit, _ = f.db.unit("tutor-1", lessonDay, 10)
	assert.Equal(t, 0, unit.HoursBooked)
	assert.True(t, unit.IsOpen)

	history, err := f.lessons.History(context.Background(), lesson.ID, studentActor)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Nil(t, history[0].PreviousStatus)
	require.NotNil(t, history[1].PreviousStatus)
	assert.Equal(t, models.LessonStatusScheduled, *history[1].PreviousStatus)
	assert.Equal(t, models.LessonStatusCancelled, history[1].Status)

	entries, err := f.ledger.Entries(context.Background(), "pkg-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, -1, entries[0].Delta)
	assert.Equal(t, 1, entries[1].Delta)
	assert.Equal(t, models.LedgerReasonCancellation, entries[1].Reason)

	assert.Equal(t, []events.Type{events.LessonBooked, events.LessonCancelled}, f.emitter.types())
}

func TestLateCancellationForfeitsHoursButReleasesSlot(t *testing.T) {
	f := newLessonFixture(t)
	lesson := f.book(t)

	result, err := f.lessons.CancelLesson(context.Background(), lesson.ID, studentActor, "", lessonStart.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.False(t, result.Refunded)
	assert.Equal(t, 4, f.db.assignment("pkg-1").HoursRemaining)

	unit, _ := f.db.unit("tutor-1", lessonDay, 10)
	assert.Equal(t, 0, unit.HoursBooked)
	assert.True(t, unit.IsOpen)
}

func TestCancellationWindowBoundary(t *testing.T) {
	cases := []struct {
		name      string
		at        time.Time
		refunded  bool
		remaining int
	}{
		{name: "twelve hours", at: lessonStart.Add(-12 * time.Hour), refunded: true, remaining: 5},
		{name: "eleven hours fifty nine", at: lessonStart.Add(-11*time.Hour - 59*time.Minute), refunded: false, remaining: 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newLessonFixture(t)
			lesson := f.book(t)

			result, err := f.lessons.CancelLesson(context.Background(), lesson.ID, studentActor, "", tc.at)
			require.NoError(t, err)
			assert.Equal(t, tc.refunded, result.Refunded)
			assert.Equal(t, tc.remaining, f.db.assignment("pkg-1").HoursRemaining)
			unit, _ := f.db.unit("tutor-1", lessonDay, 10)
			assert.True(t, unit.IsOpen)
		})
	}
}

func TestCancelTwiceDoesNotRefundTwice(t *testing.T) {
	f := newLessonFixture(t)
	lesson := f.book(t)
	at := lessonStart.Add(-24 * time.Hour)

	_, err := f.lessons.CancelLesson(context.Background(), lesson.ID, studentActor, "", at)
	require.NoError(t, err)
	historyBefore := f.db.historyCount()

	_, err = f.lessons.CancelLesson(context.Background(), lesson.ID, studentActor, "", at)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	assert.Equal(t, 5, f.db.assignment("pkg-1").HoursRemaining)
	assert.Equal(t, historyBefore, f.db.historyCount())
}

func TestConcurrentBookingsExactlyOneWins(t *testing.T) {
	f := newLessonFixture(t)
	f.db.putAssignment(models.PackageAssignment{
		ID: "pkg-2", StudentID: "student-2", HoursRemaining: 5,
		ExpiresAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), IsActive: true,
	})

	type attempt struct {
		actor models.Actor
		req   dto.BookLessonRequest
	}
	attempts := []attempt{
		{actor: studentActor, req: bookingRequest("student-1", "pkg-1")},
		{actor: models.Actor{UserID: "student-2", Role: models.RoleStudent}, req: bookingRequest("student-2", "pkg-2")},
	}

	start := make(chan struct{})
	errs := make([]error, len(attempts))
	var wg sync.WaitGroup
	for i, a := range attempts {
		wg.Add(1)
		go func(i int, a attempt) {
			defer wg.Done()
			<-start
			_, errs[i] = f.lessons.BookLesson(context.Background(), a.req, a.actor)
		}(i, a)
	}
	close(start)
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, appErrors.Retryable(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes)

	unit, _ := f.db.unit("tutor-1", lessonDay, 10)
	assert.Equal(t, 1, unit.HoursBooked)
	total := f.db.assignment("pkg-1").HoursRemaining + f.db.assignment("pkg-2").HoursRemaining
	assert.Equal(t, 9, total)
	assert.Equal(t, 1, f.db.lessonCount())
}

func TestBookingFailureRollsBackReservation(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(f *lessonFixture)
		target *appErrors.Error
	}{
		{
			name: "insufficient hours",
			setup: func(f *lessonFixture) {
				a := f.db.assignment("pkg-1")
				a.HoursRemaining = 0
				f.db.putAssignment(a)
			},
			target: appErrors.ErrInsufficientHours,
		},
		{
			name: "expired package",
			setup: func(f *lessonFixture) {
				a := f.db.assignment("pkg-1")
				a.ExpiresAt = bookingTime.Add(-time.Hour)
				f.db.putAssignment(a)
			},
			target: appErrors.ErrPackageExpired,
		},
		{
			name: "inactive package",
			setup: func(f *lessonFixture) {
				a := f.db.assignment("pkg-1")
				a.IsActive = false
				f.db.putAssignment(a)
			},
			target: appErrors.ErrPackageInactive,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newLessonFixture(t)
			tc.setup(f)

			_, err := f.lessons.BookLesson(context.Background(), bookingRequest("student-1", "pkg-1"), studentActor)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.target))

			unit, _ := f.db.unit("tutor-1", lessonDay, 10)
			assert.Equal(t, 0, unit.HoursBooked)
			assert.True(t, unit.IsOpen)
			assert.Zero(t, f.db.lessonCount())
			assert.Zero(t, f.db.historyCount())
			assert.Empty(t, f.emitter.types())
		})
	}
}

func TestMultiHourBookingNeedsEveryHourOpen(t *testing.T) {
	f := newLessonFixture(t)
	require.NoError(t, f.availability.Withdraw(context.Background(), "tutor-1", dto.WithdrawAvailabilityRequest{
		Date: "2025-03-10", FromHour: 11, ToHour: 12,
	}))

	req := bookingRequest("student-1", "pkg-1")
	req.DurationMinutes = 120
	_, err := f.lessons.BookLesson(context.Background(), req, studentActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotOpen))

	unit, _ := f.db.unit("tutor-1", lessonDay, 10)
	assert.Equal(t, 0, unit.HoursBooked)
	assert.Equal(t, 5, f.db.assignment("pkg-1").HoursRemaining)

	req.StartTime = "12:00"
	lesson, err := f.lessons.BookLesson(context.Background(), req, studentActor)
	require.NoError(t, err)
	assert.Equal(t, models.HourRange{From: 12, To: 14}, lesson.HourRange())
	assert.Equal(t, 3, f.db.assignment("pkg-1").HoursRemaining)
}

func TestBookLessonValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(req *dto.BookLessonRequest)
		actor  models.Actor
		target *appErrors.Error
	}{
		{name: "not on the hour", mutate: func(r *dto.BookLessonRequest) { r.StartTime = "10:30" }, actor: studentActor, target: appErrors.ErrValidation},
		{name: "partial hour", mutate: func(r *dto.BookLessonRequest) { r.DurationMinutes = 90 }, actor: studentActor, target: appErrors.ErrValidation},
		{name: "past midnight", mutate: func(r *dto.BookLessonRequest) { r.StartTime = "23:00"; r.DurationMinutes = 120 }, actor: studentActor, target: appErrors.ErrValidation},
		{name: "in the past", mutate: func(r *dto.BookLessonRequest) { r.Date = "2025-03-07" }, actor: studentActor, target: appErrors.ErrValidation},
		{name: "booking for someone else", mutate: func(r *dto.BookLessonRequest) {}, actor: models.Actor{UserID: "student-9", Role: models.RoleStudent}, target: appErrors.ErrForbidden},
		{name: "tutor cannot book", mutate: func(r *dto.BookLessonRequest) {}, actor: tutorActor, target: appErrors.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newLessonFixture(t)
			req := bookingRequest("student-1", "pkg-1")
			tc.mutate(&req)
			_, err := f.lessons.BookLesson(context.Background(), req, tc.actor)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.target), "got %v", err)
			assert.Zero(t, f.db.lessonCount())
		})
	}
}

func TestBookLessonRejectsForeignAssignment(t *testing.T) {
	f := newLessonFixture(t)
	f.db.putAssignment(models.PackageAssignment{
		ID: "pkg-other", StudentID: "student-2", HoursRemaining: 5,
		ExpiresAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), IsActive: true,
	})

	_, err := f.lessons.BookLesson(context.Background(), bookingRequest("student-1", "pkg-other"), studentActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Equal(t, 5, f.db.assignment("pkg-other").HoursRemaining)
	unit, _ := f.db.unit("tutor-1", lessonDay, 10)
	assert.Equal(t, 0, unit.HoursBooked)
}

func TestBookLessonWithoutPackage(t *testing.T) {
	f := newLessonFixture(t)
	lesson, err := f.lessons.BookLesson(context.Background(), bookingRequest("student-1", ""), studentActor)
	require.NoError(t, err)
	assert.Nil(t, lesson.PackageAssignmentID)

	result, err := f.lessons.CancelLesson(context.Background(), lesson.ID, studentActor, "", bookingTime)
	require.NoError(t, err)
	assert.True(t, result.Refunded)
	assert.Equal(t, 5, f.db.assignment("pkg-1").HoursRemaining)
}

func TestLessonLifecycleAndRejectedTransitions(t *testing.T) {
	f := newLessonFixture(t)
	lesson := f.book(t)
	ctx := context.Background()

	started, err := f.lessons.TransitionLesson(ctx, lesson.ID, models.LessonStatusInProgress, tutorActor, "", lessonStart.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)

	completed, err := f.lessons.TransitionLesson(ctx, lesson.ID, models.LessonStatusCompleted, tutorActor, "", lessonStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, 3, f.db.historyCount())

	_, err = f.lessons.TransitionLesson(ctx, lesson.ID, models.LessonStatusScheduled, adminActor, "", lessonStart.Add(2*time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	assert.Equal(t, 3, f.db.historyCount())

	assert.Equal(t, []events.Type{events.LessonBooked, events.LessonStatusChanged, events.LessonCompleted}, f.emitter.types())
}

func TestTransitionOutOfCancelledIsRejected(t *testing.T) {
	f := newLessonFixture(t)
	lesson := f.book(t)
	ctx := context.Background()

	_, err := f.lessons.TransitionLesson(ctx, lesson.ID, models.LessonStatusCancelled, studentActor, "sick", lessonStart.Add(-time.Hour))
	require.NoError(t, err)
	count := f.db.historyCount()

	for _, to := range []models.LessonStatus{models.LessonStatusScheduled, models.LessonStatusInProgress, models.LessonStatusCompleted} {
		_, err := f.lessons.TransitionLesson(ctx, lesson.ID, to, adminActor, "", lessonStart)
		require.Error(t, err)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	}
	assert.Equal(t, count, f.db.historyCount())
}

func TestNoShowKeepsHours(t *testing.T) {
	f := newLessonFixture(t)
	lesson := f.book(t)

	updated, err := f.lessons.TransitionLesson(context.Background(), lesson.ID, models.LessonStatusNoShowStudent, tutorActor, "student absent", lessonStart.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusNoShowStudent, updated.Status)
	assert.Equal(t, 4, f.db.assignment("pkg-1").HoursRemaining)
	unit, _ := f.db.unit("tutor-1", lessonDay, 10)
	assert.Equal(t, 1, unit.HoursBooked)
}

func TestLessonAccessIsLimitedToParticipants(t *testing.T) {
	f := newLessonFixture(t)
	lesson := f.book(t)
	stranger := models.Actor{UserID: "tutor-9", Role: models.RoleTutor}

	_, err := f.lessons.Get(context.Background(), lesson.ID, stranger)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.lessons.CancelLesson(context.Background(), lesson.ID, stranger, "", bookingTime)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.lessons.Get(context.Background(), "missing", adminActor)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestSubmitFeedback(t *testing.T) {
	f := newLessonFixture(t)
	lesson := f.book(t)

	updated, err := f.lessons.SubmitFeedback(context.Background(), lesson.ID, tutorActor, dto.LessonFeedbackRequest{Feedback: "great progress"})
	require.NoError(t, err)
	require.NotNil(t, updated.TutorFeedback)
	assert.Equal(t, "great progress", *updated.TutorFeedback)

	_, err = f.lessons.SubmitFeedback(context.Background(), lesson.ID, adminActor, dto.LessonFeedbackRequest{Feedback: "x"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}
