package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

type txBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// Transactor runs units of work inside a single database transaction.
type Transactor struct {
	db         txBeginner
	maxRetries int
	opts       *sql.TxOptions
}

// NewTransactor builds a Transactor. maxRetries bounds how often a unit of work is
// replayed after a serialization failure or deadlock.
func NewTransactor(db txBeginner, maxRetries int) *Transactor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Transactor{db: db, maxRetries: maxRetries}
}

// WithinTx executes fn in a transaction, committing on nil and rolling back otherwise.
// fn must be safe to replay: it may run more than once.
func (t *Transactor) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	var err error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		err = t.runOnce(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

func (t *Transactor) runOnce(ctx context.Context, fn func(exec sqlx.ExtContext) error) (err error) {
	tx, err := t.db.BeginTxx(ctx, t.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// IsRetryable reports whether err is a PostgreSQL serialization failure or deadlock.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case pqSerializationFailure, pqDeadlockDetected:
		return true
	}
	return false
}
