package models

import "time"

// LedgerStatus is the derived state of a package assignment.
type LedgerStatus string

const (
	LedgerStatusActive    LedgerStatus = "active"
	LedgerStatusExpired   LedgerStatus = "expired"
	LedgerStatusExhausted LedgerStatus = "exhausted"
	LedgerStatusInactive  LedgerStatus = "inactive"
)

// PackageAssignment tracks the purchased hour balance of one student package.
type PackageAssignment struct {
	ID             string    `db:"id" json:"id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	PackageID      string    `db:"package_id" json:"package_id"`
	HoursRemaining int       `db:"hours_remaining" json:"hours_remaining"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Expired reports whether the assignment is past its expiry at now.
func (a PackageAssignment) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// StatusAt derives the ledger status at now.
func (a PackageAssignment) StatusAt(now time.Time) LedgerStatus {
	switch {
	case !a.IsActive:
		return LedgerStatusInactive
	case a.Expired(now):
		return LedgerStatusExpired
	case a.HoursRemaining <= 0:
		return LedgerStatusExhausted
	default:
		return LedgerStatusActive
	}
}

// LedgerEntry is one append-only balance change on an assignment.
type LedgerEntry struct {
	ID           int64     `db:"id" json:"id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	LessonID     *string   `db:"lesson_id" json:"lesson_id,omitempty"`
	Delta        int       `db:"delta" json:"delta"`
	BalanceAfter int       `db:"balance_after" json:"balance_after"`
	Reason       string    `db:"reason" json:"reason"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Ledger entry reasons.
const (
	LedgerReasonBooking      = "lesson_booking"
	LedgerReasonCancellation = "free_cancellation"
	LedgerReasonGrant        = "admin_grant"
	LedgerReasonPurchase     = "package_purchase"
)

// LedgerSummary is the read model returned by ledger queries.
type LedgerSummary struct {
	AssignmentID   string       `json:"assignment_id"`
	HoursRemaining int          `json:"hours_remaining"`
	Status         LedgerStatus `json:"status"`
	ExpiresAt      time.Time    `json:"expires_at"`
}
