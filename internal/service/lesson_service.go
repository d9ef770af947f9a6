package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lingo-tutor-api/internal/dto"
	"github.com/noah-isme/lingo-tutor-api/internal/events"
	"github.com/noah-isme/lingo-tutor-api/internal/models"
	"github.com/noah-isme/lingo-tutor-api/pkg/clock"
	appErrors "github.com/noah-isme/lingo-tutor-api/pkg/errors"
)

type slotReserver interface {
	Reserve(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time, hours models.HourRange, now time.Time) error
	Release(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time, hours models.HourRange, now time.Time) (int64, error)
}

type hourLedger interface {
	DebitTx(ctx context.Context, exec sqlx.ExtContext, assignmentID string, hours int, lessonID *string, now time.Time) (int, error)
	CreditTx(ctx context.Context, exec sqlx.ExtContext, assignmentID string, hours int, lessonID *string, reason string, now time.Time) (int, error)
}

type assignmentReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.PackageAssignment, error)
}

type lessonStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, update models.LessonStatusUpdate) error
	UpdateFeedback(ctx context.Context, id string, tutorFeedback, studentFeedback *string) error
}

type lessonHistoryStore interface {
	Append(ctx context.Context, exec sqlx.ExtContext, entry *models.LessonStatusHistory) error
	ListByLesson(ctx context.Context, lessonID string) ([]models.LessonStatusHistory, error)
}

type lessonEventEmitter interface {
	Emit(ctx context.Context, event events.LessonEvent)
}

type availabilityInvalidator interface {
	Invalidate(ctx context.Context, tutorID string, date time.Time)
}

// LessonService runs the booking transaction and the lesson state machine.
// Every mutating call is one database transaction; side effects such as
// events and cache invalidation only happen after it commits.
type LessonService struct {
	lessons     lessonStore
	history     lessonHistoryStore
	slots       slotReserver
	ledger      hourLedger
	assignments assignmentReader
	tx          transactor

	machine   *LessonStateMachine
	policy    *CancellationPolicy
	events    lessonEventEmitter
	cache     availabilityInvalidator
	metrics   *MetricsService
	clock     clock.Clock
	location  *time.Location
	validator *validator.Validate
	logger    *zap.Logger
}

// LessonServiceOption configures the service.
type LessonServiceOption func(*LessonService)

// WithLessonStateMachine overrides the state machine.
func WithLessonStateMachine(machine *LessonStateMachine) LessonServiceOption {
	return func(s *LessonService) {
		if machine != nil {
			s.machine = machine
		}
	}
}

// WithCancellationPolicy overrides the cancellation policy.
func WithCancellationPolicy(policy *CancellationPolicy) LessonServiceOption {
	return func(s *LessonService) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithLessonEvents sets the after-commit event emitter.
func WithLessonEvents(emitter lessonEventEmitter) LessonServiceOption {
	return func(s *LessonService) {
		s.events = emitter
	}
}

// WithAvailabilityCache sets the cache invalidated when units change.
func WithAvailabilityCache(cache availabilityInvalidator) LessonServiceOption {
	return func(s *LessonService) {
		s.cache = cache
	}
}

// WithLessonMetrics sets the metrics sink.
func WithLessonMetrics(metrics *MetricsService) LessonServiceOption {
	return func(s *LessonService) {
		s.metrics = metrics
	}
}

// WithLessonClock injects the clock used for booking checks.
func WithLessonClock(clk clock.Clock) LessonServiceOption {
	return func(s *LessonService) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithLessonLocation sets the timezone lesson dates and start times are expressed in.
func WithLessonLocation(loc *time.Location) LessonServiceOption {
	return func(s *LessonService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLessonValidator overrides the validator.
func WithLessonValidator(validate *validator.Validate) LessonServiceOption {
	return func(s *LessonService) {
		if validate != nil {
			s.validator = validate
		}
	}
}

// WithLessonLogger sets the logger.
func WithLessonLogger(logger *zap.Logger) LessonServiceOption {
	return func(s *LessonService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewLessonService constructs the lesson service.
func NewLessonService(lessons lessonStore, history lessonHistoryStore, slots slotReserver, ledger hourLedger, assignments assignmentReader, tx transactor, opts ...LessonServiceOption) *LessonService {
	svc := &LessonService{
		lessons:     lessons,
		history:     history,
		slots:       slots,
		ledger:      ledger,
		assignments: assignments,
		tx:          tx,
		machine:     NewLessonStateMachine(DefaultJoinPolicy()),
		policy:      NewCancellationPolicy(DefaultFreeCancellationWindow),
		clock:       clock.Real{},
		location:    time.UTC,
		validator:   validator.New(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// BookLesson reserves the tutor hours, debits the package and creates the lesson
// atomically. Any failure leaves availability and the ledger untouched.
func (s *LessonService) BookLesson(ctx context.Context, req dto.BookLessonRequest, actor models.Actor) (*models.Lesson, error) {
	lesson, err := s.newLesson(req, actor)
	if err != nil {
		s.metrics.RecordBooking(BookingOutcomeInvalid)
		return nil, err
	}
	hours := lesson.HourRange()
	now := lesson.CreatedAt

	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if lesson.PackageAssignmentID != nil {
			assignment, err := s.assignments.FindByID(ctx, exec, *lesson.PackageAssignmentID)
			if err != nil {
				return err
			}
			if assignment.StudentID != lesson.StudentID {
				return appErrors.Clone(appErrors.ErrForbidden, "package assignment belongs to another student")
			}
		}
		if err := s.slots.Reserve(ctx, exec, lesson.TutorID, lesson.Date, hours, now); err != nil {
			return err
		}
		if lesson.PackageAssignmentID != nil {
			if _, err := s.ledger.DebitTx(ctx, exec, *lesson.PackageAssignmentID, hours.Len(), &lesson.ID, now); err != nil {
				return err
			}
		}
		if err := s.lessons.Create(ctx, exec, lesson); err != nil {
			return err
		}
		return s.history.Append(ctx, exec, &models.LessonStatusHistory{
			LessonID:        lesson.ID,
			Status:          models.LessonStatusScheduled,
			Reason:          "lesson booked",
			ChangedByRole:   actor.Role,
			ChangedByUserID: actor.UserID,
			CreatedAt:       now,
		})
	})
	if err != nil {
		mapped := mapSchedulingError(err, "package assignment not found", "failed to book lesson")
		s.metrics.RecordBooking(bookingOutcome(mapped))
		return nil, mapped
	}

	s.metrics.RecordBooking(BookingOutcomeBooked)
	if lesson.PackageAssignmentID != nil {
		s.metrics.RecordLedgerHours(ledgerDirectionDebit, hours.Len())
	}
	s.afterCommit(ctx, events.LessonBooked, *lesson, "", now)
	return lesson, nil
}

// CancelLesson cancels a scheduled lesson at now. The hours are always released;
// package hours are credited back only when the cancellation policy grants a refund.
func (s *LessonService) CancelLesson(ctx context.Context, lessonID string, actor models.Actor, reason string, now time.Time) (*models.CancellationResult, error) {
	var (
		lesson   *models.Lesson
		previous models.LessonStatus
		decision CancellationDecision
	)
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		var err error
		lesson, err = s.lessons.FindByIDForUpdate(ctx, exec, lessonID)
		if err != nil {
			return err
		}
		if err := authorizeParticipant(*lesson, actor); err != nil {
			return err
		}
		if err := s.machine.Validate(*lesson, models.LessonStatusCancelled, actor, now); err != nil {
			return err
		}
		previous = lesson.Status
		decision = s.policy.Evaluate(*lesson, now)

		if _, err := s.slots.Release(ctx, exec, lesson.TutorID, lesson.Date, lesson.HourRange(), now); err != nil {
			return err
		}
		if decision.Refund && lesson.PackageAssignmentID != nil {
			if _, err := s.ledger.CreditTx(ctx, exec, *lesson.PackageAssignmentID, lesson.DurationHours(), &lesson.ID, models.LedgerReasonCancellation, now); err != nil {
				return err
			}
		}

		update := models.LessonStatusUpdate{
			LessonID:           lesson.ID,
			From:               previous,
			To:                 models.LessonStatusCancelled,
			At:                 now,
			Refunded:           decision.Refund,
			CancelledBy:        stringPtr(actor.UserID),
			CancellationReason: optionalString(reason),
		}
		if err := s.lessons.UpdateStatus(ctx, exec, update); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, exec, lesson.ID, previous, models.LessonStatusCancelled, reason, actor, now); err != nil {
			return err
		}
		applyStatusUpdate(lesson, update)
		return nil
	})
	if err != nil {
		return nil, mapSchedulingError(err, "lesson not found", "failed to cancel lesson")
	}

	s.metrics.RecordCancellation(decision.Refund)
	s.metrics.RecordTransition(string(models.LessonStatusCancelled))
	if decision.Refund && lesson.PackageAssignmentID != nil {
		s.metrics.RecordLedgerHours(ledgerDirectionCredit, lesson.DurationHours())
	}
	s.afterCommit(ctx, events.LessonCancelled, *lesson, previous, now)
	return &models.CancellationResult{Lesson: lesson, Refunded: decision.Refund}, nil
}

// TransitionLesson moves a lesson to a new status at now. Cancellation is routed
// through CancelLesson so the refund policy always runs.
func (s *LessonService) TransitionLesson(ctx context.Context, lessonID string, to models.LessonStatus, actor models.Actor, reason string, now time.Time) (*models.Lesson, error) {
	if to == models.LessonStatusCancelled {
		result, err := s.CancelLesson(ctx, lessonID, actor, reason, now)
		if err != nil {
			return nil, err
		}
		return result.Lesson, nil
	}

	var (
		lesson   *models.Lesson
		previous models.LessonStatus
	)
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		var err error
		lesson, err = s.lessons.FindByIDForUpdate(ctx, exec, lessonID)
		if err != nil {
			return err
		}
		if err := authorizeParticipant(*lesson, actor); err != nil {
			return err
		}
		if err := s.machine.Validate(*lesson, to, actor, now); err != nil {
			return err
		}
		previous = lesson.Status
		update := models.LessonStatusUpdate{LessonID: lesson.ID, From: previous, To: to, At: now}
		if err := s.lessons.UpdateStatus(ctx, exec, update); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, exec, lesson.ID, previous, to, reason, actor, now); err != nil {
			return err
		}
		applyStatusUpdate(lesson, update)
		return nil
	})
	if err != nil {
		return nil, mapSchedulingError(err, "lesson not found", "failed to update lesson status")
	}

	s.metrics.RecordTransition(string(to))
	s.afterCommit(ctx, events.ForTransition(to), *lesson, previous, now)
	return lesson, nil
}

// Get returns a lesson visible to actor.
func (s *LessonService) Get(ctx context.Context, lessonID string, actor models.Actor) (*models.Lesson, error) {
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		return nil, mapSchedulingError(err, "lesson not found", "failed to load lesson")
	}
	if err := authorizeParticipant(*lesson, actor); err != nil {
		return nil, err
	}
	return lesson, nil
}

// History returns the status audit trail, oldest first.
func (s *LessonService) History(ctx context.Context, lessonID string, actor models.Actor) ([]models.LessonStatusHistory, error) {
	if _, err := s.Get(ctx, lessonID, actor); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByLesson(ctx, lessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson history")
	}
	return entries, nil
}

// SubmitFeedback stores the tutor's or student's feedback. Allowed in any status.
func (s *LessonService) SubmitFeedback(ctx context.Context, lessonID string, actor models.Actor, req dto.LessonFeedbackRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid feedback payload")
	}
	lesson, err := s.Get(ctx, lessonID, actor)
	if err != nil {
		return nil, err
	}

	var tutorFeedback, studentFeedback *string
	switch actor.Role {
	case models.RoleTutor:
		tutorFeedback = stringPtr(req.Feedback)
		lesson.TutorFeedback = tutorFeedback
	case models.RoleStudent:
		studentFeedback = stringPtr(req.Feedback)
		lesson.StudentFeedback = studentFeedback
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only lesson participants can leave feedback")
	}
	if err := s.lessons.UpdateFeedback(ctx, lessonID, tutorFeedback, studentFeedback); err != nil {
		return nil, mapSchedulingError(err, "lesson not found", "failed to save feedback")
	}
	return lesson, nil
}

func (s *LessonService) newLesson(req dto.BookLessonRequest, actor models.Actor) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	switch actor.Role {
	case models.RoleAdmin, models.RoleSystem:
	case models.RoleStudent:
		if actor.UserID != req.StudentID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only book for themselves")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can book lessons")
	}
	if req.DurationMinutes%60 != 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration_minutes must be a multiple of 60")
	}

	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	startClock, err := time.Parse("15:04", req.StartTime)
	if err != nil || startClock.Minute() != 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be on the hour (HH:00)")
	}
	hours := models.HourRange{From: startClock.Hour(), To: startClock.Hour() + req.DurationMinutes/60}
	if err := hours.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "lesson must end on the same day")
	}

	now := s.clock.Now()
	startsAt := time.Date(date.Year(), date.Month(), date.Day(), hours.From, 0, 0, 0, s.location).UTC()
	if !startsAt.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot book a lesson in the past")
	}

	return &models.Lesson{
		ID:                  uuid.NewString(),
		TutorID:             req.TutorID,
		StudentID:           req.StudentID,
		PackageAssignmentID: req.PackageAssignmentID,
		Date:                date,
		StartHour:           hours.From,
		StartsAt:            startsAt,
		DurationMinutes:     req.DurationMinutes,
		LessonType:          req.LessonType,
		Topic:               req.Topic,
		Notes:               req.Notes,
		Status:              models.LessonStatusScheduled,
		MeetingURL:          req.MeetingURL,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

func (s *LessonService) appendHistory(ctx context.Context, exec sqlx.ExtContext, lessonID string, from, to models.LessonStatus, reason string, actor models.Actor, now time.Time) error {
	previous := from
	return s.history.Append(ctx, exec, &models.LessonStatusHistory{
		LessonID:        lessonID,
		Status:          to,
		PreviousStatus:  &previous,
		Reason:          reason,
		ChangedByRole:   actor.Role,
		ChangedByUserID: actor.UserID,
		CreatedAt:       now,
	})
}

func (s *LessonService) afterCommit(ctx context.Context, eventType events.Type, lesson models.Lesson, previous models.LessonStatus, now time.Time) {
	if s.cache != nil && (eventType == events.LessonBooked || eventType == events.LessonCancelled) {
		s.cache.Invalidate(ctx, lesson.TutorID, lesson.Date)
	}
	if s.events != nil {
		s.events.Emit(ctx, events.NewLessonEvent(eventType, lesson, previous, now))
	}
}

func applyStatusUpdate(lesson *models.Lesson, update models.LessonStatusUpdate) {
	lesson.Status = update.To
	lesson.UpdatedAt = update.At
	at := update.At
	switch update.To {
	case models.LessonStatusInProgress:
		lesson.StartedAt = &at
	case models.LessonStatusCompleted:
		lesson.CompletedAt = &at
	case models.LessonStatusCancelled:
		lesson.CancelledAt = &at
		lesson.Refunded = update.Refunded
		lesson.CancelledBy = update.CancelledBy
		lesson.CancellationReason = update.CancellationReason
	}
}

func authorizeParticipant(lesson models.Lesson, actor models.Actor) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleSystem:
		return nil
	case models.RoleTutor:
		if lesson.TutorID == actor.UserID {
			return nil
		}
	case models.RoleStudent:
		if lesson.StudentID == actor.UserID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not a participant of this lesson")
}

func bookingOutcome(err error) string {
	switch {
	case appErrors.Retryable(err):
		return BookingOutcomeUnavailable
	case errors.Is(err, appErrors.ErrInsufficientHours), errors.Is(err, appErrors.ErrPackageExpired), errors.Is(err, appErrors.ErrPackageInactive):
		return BookingOutcomeLedger
	case errors.Is(err, appErrors.ErrValidation), errors.Is(err, appErrors.ErrForbidden), errors.Is(err, appErrors.ErrNotFound):
		return BookingOutcomeInvalid
	}
	return BookingOutcomeError
}

func stringPtr(value string) *string {
	return &value
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
