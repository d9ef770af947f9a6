package main

import (
	"context"
	"flag"
	"log"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/lingo-tutor-api/pkg/config"
	"github.com/noah-isme/lingo-tutor-api/pkg/database"
	"github.com/noah-isme/lingo-tutor-api/pkg/logger"

	_ "github.com/noah-isme/lingo-tutor-api/migrations"
)

// Usage: migrate [up|down|status|reset|version]
func main() {
	flag.Parse()
	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "migrate")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		logr.Fatal("failed to set goose dialect", zap.Error(err))
	}

	if err := goose.RunContext(context.Background(), command, db.DB, "migrations", flag.Args()[min(1, flag.NArg()):]...); err != nil {
		logr.Fatal("goose command failed", zap.String("command", command), zap.Error(err))
	}
	logr.Info("migrations finished", zap.String("command", command))
}
