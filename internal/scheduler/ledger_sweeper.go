// Package scheduler runs periodic maintenance jobs for the scheduling core.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultSweepTimeout = time.Minute

// assignmentExpirer deactivates package assignments past their expiry.
type assignmentExpirer interface {
	DeactivateExpired(ctx context.Context) (int64, error)
}

// LedgerSweeper flips expired package assignments to inactive on a cron schedule.
type LedgerSweeper struct {
	cronEngine *cron.Cron
	ledger     assignmentExpirer
	logger     *zap.Logger
	spec       string
	timeout    time.Duration
}

// NewLedgerSweeper builds a sweeper running on the given cron spec (five fields).
func NewLedgerSweeper(ledger assignmentExpirer, spec string, loc *time.Location, logger *zap.Logger) *LedgerSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &LedgerSweeper{
		cronEngine: cron.New(cron.WithLocation(loc)),
		ledger:     ledger,
		logger:     logger,
		spec:       spec,
		timeout:    defaultSweepTimeout,
	}
}

// Start registers the sweep job and starts the cron engine.
func (s *LedgerSweeper) Start() error {
	if _, err := s.cronEngine.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("register ledger sweep %q: %w", s.spec, err)
	}
	s.cronEngine.Start()
	s.logger.Info("ledger sweeper started", zap.String("spec", s.spec))
	return nil
}

// RunOnce performs a single sweep.
func (s *LedgerSweeper) RunOnce(ctx context.Context) (int64, error) {
	deactivated, err := s.ledger.DeactivateExpired(ctx)
	if err != nil {
		s.logger.Error("ledger sweep failed", zap.Error(err))
		return 0, err
	}
	s.logger.Info("ledger sweep finished", zap.Int64("deactivated", deactivated))
	return deactivated, nil
}

// Stop waits for a running sweep to finish.
func (s *LedgerSweeper) Stop() {
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("ledger sweeper stopped")
}
