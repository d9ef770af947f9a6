package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lingo-tutor-api/internal/dto"
	"github.com/noah-isme/lingo-tutor-api/internal/models"
	"github.com/noah-isme/lingo-tutor-api/pkg/clock"
	appErrors "github.com/noah-isme/lingo-tutor-api/pkg/errors"
)

const (
	ledgerDirectionDebit  = "debit"
	ledgerDirectionCredit = "credit"
)

type ledgerStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.PackageAssignment) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.PackageAssignment, error)
	Debit(ctx context.Context, exec sqlx.ExtContext, id string, hours int, now time.Time) (int, error)
	Credit(ctx context.Context, exec sqlx.ExtContext, id string, hours int, now time.Time) (int, error)
	AppendEntry(ctx context.Context, exec sqlx.ExtContext, entry *models.LedgerEntry) error
	ListEntries(ctx context.Context, assignmentID string) ([]models.LedgerEntry, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// LedgerService owns package hour balances. Every balance change is journaled in
// the same transaction as the change itself.
type LedgerService struct {
	store     ledgerStore
	tx        transactor
	clock     clock.Clock
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLedgerService constructs the ledger service.
func NewLedgerService(store ledgerStore, tx transactor, clk clock.Clock, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *LedgerService {
	if clk == nil {
		clk = clock.Real{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{store: store, tx: tx, clock: clk, metrics: metrics, validator: validate, logger: logger}
}

// AssignPackage records a purchased package with its full hour balance.
func (s *LedgerService) AssignPackage(ctx context.Context, req dto.AssignPackageRequest) (*models.PackageAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid package assignment payload")
	}
	now := s.clock.Now()
	if !req.ExpiresAt.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expires_at must be in the future")
	}

	assignment := &models.PackageAssignment{
		StudentID:      req.StudentID,
		PackageID:      req.PackageID,
		HoursRemaining: req.Hours,
		ExpiresAt:      req.ExpiresAt.UTC(),
		IsActive:       true,
		CreatedAt:      now,
	}
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.store.Create(ctx, exec, assignment); err != nil {
			return err
		}
		return s.store.AppendEntry(ctx, exec, &models.LedgerEntry{
			AssignmentID: assignment.ID,
			Delta:        req.Hours,
			BalanceAfter: req.Hours,
			Reason:       models.LedgerReasonPurchase,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return nil, mapSchedulingError(err, "package assignment not found", "failed to create package assignment")
	}
	return assignment, nil
}

// Grant credits hours administratively.
func (s *LedgerService) Grant(ctx context.Context, assignmentID string, req dto.GrantHoursRequest) (*models.LedgerSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grant payload")
	}
	now := s.clock.Now()
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		_, err := s.CreditTx(ctx, exec, assignmentID, req.Hours, nil, models.LedgerReasonGrant, now)
		return err
	})
	if err != nil {
		return nil, mapSchedulingError(err, "package assignment not found", "failed to grant hours")
	}
	s.metrics.RecordLedgerHours(ledgerDirectionCredit, req.Hours)
	s.logger.Info("package hours granted", zap.String("assignment_id", assignmentID), zap.Int("hours", req.Hours), zap.String("reason", req.Reason))
	return s.QueryLedger(ctx, assignmentID)
}

// Debit removes hours from an assignment in its own transaction.
func (s *LedgerService) Debit(ctx context.Context, assignmentID string, hours int) (int, error) {
	var remaining int
	now := s.clock.Now()
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		var err error
		remaining, err = s.DebitTx(ctx, exec, assignmentID, hours, nil, now)
		return err
	})
	if err != nil {
		return 0, mapSchedulingError(err, "package assignment not found", "failed to debit hours")
	}
	s.metrics.RecordLedgerHours(ledgerDirectionDebit, hours)
	return remaining, nil
}

// Credit returns hours to an assignment in its own transaction. Expired assignments accept credits.
func (s *LedgerService) Credit(ctx context.Context, assignmentID string, hours int) (int, error) {
	var remaining int
	now := s.clock.Now()
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		var err error
		remaining, err = s.CreditTx(ctx, exec, assignmentID, hours, nil, models.LedgerReasonGrant, now)
		return err
	})
	if err != nil {
		return 0, mapSchedulingError(err, "package assignment not found", "failed to credit hours")
	}
	s.metrics.RecordLedgerHours(ledgerDirectionCredit, hours)
	return remaining, nil
}

// DebitTx debits inside the caller's transaction and journals the change.
func (s *LedgerService) DebitTx(ctx context.Context, exec sqlx.ExtContext, assignmentID string, hours int, lessonID *string, now time.Time) (int, error) {
	if hours <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "hours must be positive")
	}
	remaining, err := s.store.Debit(ctx, exec, assignmentID, hours, now)
	if err != nil {
		return 0, err
	}
	entry := &models.LedgerEntry{
		AssignmentID: assignmentID,
		LessonID:     lessonID,
		Delta:        -hours,
		BalanceAfter: remaining,
		Reason:       models.LedgerReasonBooking,
		CreatedAt:    now,
	}
	if err := s.store.AppendEntry(ctx, exec, entry); err != nil {
		return 0, err
	}
	return remaining, nil
}

// CreditTx credits inside the caller's transaction and journals the change.
func (s *LedgerService) CreditTx(ctx context.Context, exec sqlx.ExtContext, assignmentID string, hours int, lessonID *string, reason string, now time.Time) (int, error) {
	if hours <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "hours must be positive")
	}
	remaining, err := s.store.Credit(ctx, exec, assignmentID, hours, now)
	if err != nil {
		return 0, err
	}
	entry := &models.LedgerEntry{
		AssignmentID: assignmentID,
		LessonID:     lessonID,
		Delta:        hours,
		BalanceAfter: remaining,
		Reason:       reason,
		CreatedAt:    now,
	}
	if err := s.store.AppendEntry(ctx, exec, entry); err != nil {
		return 0, err
	}
	return remaining, nil
}

// QueryLedger reports the remaining hours and derived status of an assignment.
func (s *LedgerService) QueryLedger(ctx context.Context, assignmentID string) (*models.LedgerSummary, error) {
	assignment, err := s.store.FindByID(ctx, nil, assignmentID)
	if err != nil {
		return nil, mapSchedulingError(err, "package assignment not found", "failed to load package assignment")
	}
	return &models.LedgerSummary{
		AssignmentID:   assignment.ID,
		HoursRemaining: assignment.HoursRemaining,
		Status:         assignment.StatusAt(s.clock.Now()),
		ExpiresAt:      assignment.ExpiresAt,
	}, nil
}

// Get returns the raw assignment.
func (s *LedgerService) Get(ctx context.Context, assignmentID string) (*models.PackageAssignment, error) {
	assignment, err := s.store.FindByID(ctx, nil, assignmentID)
	if err != nil {
		return nil, mapSchedulingError(err, "package assignment not found", "failed to load package assignment")
	}
	return assignment, nil
}

// Entries lists the hour journal of an assignment.
func (s *LedgerService) Entries(ctx context.Context, assignmentID string) ([]models.LedgerEntry, error) {
	if _, err := s.Get(ctx, assignmentID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListEntries(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger entries")
	}
	return entries, nil
}

// DeactivateExpired flips expired assignments inactive. Driven by the sweeper.
func (s *LedgerService) DeactivateExpired(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	count, err := s.store.DeactivateExpired(ctx, now)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate expired packages")
	}
	s.metrics.RecordSweep(count)
	if count > 0 {
		s.logger.Info("deactivated expired package assignments", zap.Int64("count", count), zap.Time("at", now))
	}
	return count, nil
}
