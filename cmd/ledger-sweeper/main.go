package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lingo-tutor-api/internal/repository"
	"github.com/noah-isme/lingo-tutor-api/internal/scheduler"
	"github.com/noah-isme/lingo-tutor-api/internal/service"
	"github.com/noah-isme/lingo-tutor-api/pkg/clock"
	"github.com/noah-isme/lingo-tutor-api/pkg/config"
	"github.com/noah-isme/lingo-tutor-api/pkg/database"
	"github.com/noah-isme/lingo-tutor-api/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "ledger-sweeper")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	ledgerSvc := service.NewLedgerService(
		repository.NewPackageAssignmentRepository(db),
		database.NewTransactor(db, cfg.Scheduling.TxMaxRetries),
		clock.Real{},
		service.NewMetricsService(),
		validator.New(),
		logr,
	)
	sweeper := scheduler.NewLedgerSweeper(ledgerSvc, cfg.Sweeper.CronSpec, cfg.Scheduling.Location(), logr)

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := sweeper.RunOnce(ctx); err != nil {
			logr.Fatal("sweep failed", zap.Error(err))
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sweeper.Start(); err != nil {
		logr.Fatal("failed to start sweeper", zap.Error(err))
	}
	<-ctx.Done()
	sweeper.Stop()
}
