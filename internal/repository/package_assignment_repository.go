package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lingo-tutor-api/internal/models"
)

const assignmentColumns = `id, student_id, package_id, hours_remaining, expires_at, is_active, created_at, updated_at`

// PackageAssignmentRepository is the hour ledger store.
type PackageAssignmentRepository struct {
	db *sqlx.DB
}

// NewPackageAssignmentRepository builds repository.
func NewPackageAssignmentRepository(db *sqlx.DB) *PackageAssignmentRepository {
	return &PackageAssignmentRepository{db: db}
}

func (r *PackageAssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new assignment.
func (r *PackageAssignmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.PackageAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = assignment.CreatedAt

	const query = `INSERT INTO package_assignments (` + assignmentColumns + `)
VALUES (:id, :student_id, :package_id, :hours_remaining, :expires_at, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, assignment); err != nil {
		return fmt.Errorf("insert package assignment: %w", err)
	}
	return nil
}

// FindByID loads an assignment. Returns sql.ErrNoRows when missing.
func (r *PackageAssignmentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.PackageAssignment, error) {
	const query = `SELECT ` + assignmentColumns + ` FROM package_assignments WHERE id = $1`
	var assignment models.PackageAssignment
	if err := sqlx.GetContext(ctx, r.exec(exec), &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// Debit removes hours in one conditional update. When the guard rejects the row the
// assignment is re-read to report which precondition failed.
func (r *PackageAssignmentRepository) Debit(ctx context.Context, exec sqlx.ExtContext, id string, hours int, now time.Time) (int, error) {
	target := r.exec(exec)
	const query = `UPDATE package_assignments
SET hours_remaining = hours_remaining - $1, updated_at = $2
WHERE id = $3 AND is_active AND expires_at > $2 AND hours_remaining >= $1
RETURNING hours_remaining`
	var remaining int
	err := sqlx.GetContext(ctx, target, &remaining, query, hours, now, id)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("debit package assignment: %w", err)
	}

	assignment, findErr := r.FindByID(ctx, target, id)
	if findErr != nil {
		return 0, findErr
	}
	switch {
	case !assignment.IsActive:
		return 0, ErrAssignmentInactive
	case assignment.Expired(now):
		return 0, ErrAssignmentExpired
	default:
		return 0, ErrInsufficientHours
	}
}

// Credit adds hours back. Expired assignments may still be credited.
func (r *PackageAssignmentRepository) Credit(ctx context.Context, exec sqlx.ExtContext, id string, hours int, now time.Time) (int, error) {
	const query = `UPDATE package_assignments
SET hours_remaining = hours_remaining + $1, updated_at = $2
WHERE id = $3
RETURNING hours_remaining`
	var remaining int
	if err := sqlx.GetContext(ctx, r.exec(exec), &remaining, query, hours, now, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		return 0, fmt.Errorf("credit package assignment: %w", err)
	}
	return remaining, nil
}

// AppendEntry records a balance change in the hour journal.
func (r *PackageAssignmentRepository) AppendEntry(ctx context.Context, exec sqlx.ExtContext, entry *models.LedgerEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO hour_ledger_entries (assignment_id, lesson_id, delta, balance_after, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry.ID, query,
		entry.AssignmentID, entry.LessonID, entry.Delta, entry.BalanceAfter, entry.Reason, entry.CreatedAt); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// ListEntries returns the journal of an assignment, oldest first.
func (r *PackageAssignmentRepository) ListEntries(ctx context.Context, assignmentID string) ([]models.LedgerEntry, error) {
	const query = `SELECT id, assignment_id, lesson_id, delta, balance_after, reason, created_at
FROM hour_ledger_entries WHERE assignment_id = $1 ORDER BY id ASC`
	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

// DeactivateExpired flips is_active off for assignments past expiry.
func (r *PackageAssignmentRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE package_assignments SET is_active = FALSE, updated_at = $1 WHERE is_active AND expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired assignments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate expired rows affected: %w", err)
	}
	return affected, nil
}
