package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lingo-tutor-api/internal/repository"
	appErrors "github.com/noah-isme/lingo-tutor-api/pkg/errors"
)

// transactor runs a unit of work inside one database transaction.
type transactor interface {
	WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error
}

// mapSchedulingError translates repository sentinels into API errors.
// Errors that are already typed pass through unchanged.
func mapSchedulingError(err error, notFound, internal string) error {
	if err == nil {
		return nil
	}
	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	switch {
	case errors.Is(err, repository.ErrCapacityExceeded):
		return wrapAs(err, appErrors.ErrCapacityExceeded)
	case errors.Is(err, repository.ErrNotOpen):
		return wrapAs(err, appErrors.ErrNotOpen)
	case errors.Is(err, repository.ErrUnitsBooked):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "booked hours cannot be closed")
	case errors.Is(err, repository.ErrInsufficientHours):
		return wrapAs(err, appErrors.ErrInsufficientHours)
	case errors.Is(err, repository.ErrAssignmentExpired):
		return wrapAs(err, appErrors.ErrPackageExpired)
	case errors.Is(err, repository.ErrAssignmentInactive):
		return wrapAs(err, appErrors.ErrPackageInactive)
	case errors.Is(err, repository.ErrStatusChanged):
		return wrapAs(err, appErrors.ErrInvalidTransition)
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func wrapAs(err error, target *appErrors.Error) *appErrors.Error {
	return appErrors.Wrap(err, target.Code, target.Status, target.Message)
}
