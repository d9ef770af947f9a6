// Package repository persists the scheduling core on PostgreSQL.
//
// The sentinel errors below are returned from inside a transaction when a
// precondition detected at the database layer fails. Services translate them
// into typed API errors.
package repository

import "errors"

var (
	// ErrCapacityExceeded means at least one requested hour is fully booked.
	ErrCapacityExceeded = errors.New("availability capacity exceeded")
	// ErrNotOpen means at least one requested hour was never published or is closed.
	ErrNotOpen = errors.New("availability not open")
	// ErrUnitsBooked means a narrowing change would drop hours that hold bookings.
	ErrUnitsBooked = errors.New("availability units already booked")

	// ErrInsufficientHours means the debit would drive hours_remaining negative.
	ErrInsufficientHours = errors.New("insufficient package hours")
	// ErrAssignmentExpired means the assignment is past expires_at.
	ErrAssignmentExpired = errors.New("package assignment expired")
	// ErrAssignmentInactive means the assignment was deactivated.
	ErrAssignmentInactive = errors.New("package assignment inactive")

	// ErrStatusChanged means the lesson row no longer holds the expected status.
	ErrStatusChanged = errors.New("lesson status changed concurrently")
)
