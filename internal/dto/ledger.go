package dto

import "time"

// AssignPackageRequest creates a package assignment after a purchase.
type AssignPackageRequest struct {
	StudentID string    `json:"student_id" validate:"required"`
	PackageID string    `json:"package_id" validate:"required"`
	Hours     int       `json:"hours" validate:"required,min=1,max=500"`
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
}

// GrantHoursRequest is an administrative credit.
type GrantHoursRequest struct {
	Hours  int    `json:"hours" validate:"required,min=1,max=100"`
	Reason string `json:"reason" validate:"omitempty,max=255"`
}
