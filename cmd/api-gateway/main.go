package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lingo-tutor-api/api/swagger"
	"github.com/noah-isme/lingo-tutor-api/internal/events"
	"github.com/noah-isme/lingo-tutor-api/internal/handler"
	internalmiddleware "github.com/noah-isme/lingo-tutor-api/internal/middleware"
	"github.com/noah-isme/lingo-tutor-api/internal/repository"
	"github.com/noah-isme/lingo-tutor-api/internal/service"
	"github.com/noah-isme/lingo-tutor-api/pkg/cache"
	"github.com/noah-isme/lingo-tutor-api/pkg/clock"
	"github.com/noah-isme/lingo-tutor-api/pkg/config"
	"github.com/noah-isme/lingo-tutor-api/pkg/database"
	"github.com/noah-isme/lingo-tutor-api/pkg/jobs"
	"github.com/noah-isme/lingo-tutor-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lingo-tutor-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lingo-tutor-api/pkg/middleware/requestid"
)

// @title Lingo Tutor API
// @version 1.0.0
// @description Scheduling and hour accounting for one-to-one tutoring lessons
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "api-gateway")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	validate := validator.New()
	clk := clock.Real{}
	loc := cfg.Scheduling.Location()
	tx := database.NewTransactor(db, cfg.Scheduling.TxMaxRetries)

	var cacheRepo *repository.CacheRepository
	if cfg.Cache.AvailabilityEnabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, availability cache disabled", zap.Error(err))
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, "lingo")
			defer cacheRepo.Close()
		}
	}
	if cacheRepo == nil {
		cacheRepo = repository.NewCacheRepository(nil, "lingo")
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.AvailabilityTTL, logr, cfg.Cache.AvailabilityEnabled)

	availabilityRepo := repository.NewAvailabilityRepository(db)
	assignmentRepo := repository.NewPackageAssignmentRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	historyRepo := repository.NewLessonHistoryRepository(db)
	statsRepo := repository.NewTutorStatsRepository(db)

	publisher, err := events.NewPublisher(cfg.Events)
	if err != nil {
		logr.Fatal("failed to connect event broker", zap.String("driver", cfg.Events.Driver), zap.Error(err))
	}
	dispatcher := events.NewDispatcher(publisher, jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: cfg.Events.BufferSize,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
		Logger:     logr,
	},
		events.WithHandler(events.TutorStatsHandler(statsRepo), events.LessonCompleted),
		events.WithRecorder(metrics),
	)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	availabilitySvc := service.NewAvailabilityService(availabilityRepo, tx, cacheSvc, clk, validate, logr, service.AvailabilityConfig{
		DefaultCapacity: cfg.Scheduling.DefaultUnitCapacity,
		BlockStarts:     cfg.Scheduling.BlockStarts,
		BlockHours:      cfg.Scheduling.BlockHours,
		PageSize:        cfg.Scheduling.AvailabilityPageSize,
		CacheTTL:        cfg.Cache.AvailabilityTTL,
		Location:        loc,
	})
	ledgerSvc := service.NewLedgerService(assignmentRepo, tx, clk, metrics, validate, logr)
	lessonSvc := service.NewLessonService(lessonRepo, historyRepo, availabilityRepo, ledgerSvc, assignmentRepo, tx,
		service.WithLessonStateMachine(service.NewLessonStateMachine(service.JoinPolicy{
			TutorEarlyJoin:   cfg.Scheduling.TutorEarlyJoin,
			StudentEarlyJoin: cfg.Scheduling.StudentEarlyJoin,
			LateJoinLimit:    cfg.Scheduling.LateJoinLimit,
		})),
		service.WithCancellationPolicy(service.NewCancellationPolicy(cfg.Scheduling.FreeCancellationWindow)),
		service.WithLessonEvents(dispatcher),
		service.WithAvailabilityCache(availabilitySvc),
		service.WithLessonMetrics(metrics),
		service.WithLessonClock(clk),
		service.WithLessonLocation(loc),
		service.WithLessonValidator(validate),
		service.WithLessonLogger(logr),
	)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics", "/health"))

	metricsHandler := handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
		"redis":    cacheRepo.Ping,
	})
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	handler.Routes{
		Lessons:      handler.NewLessonHandler(lessonSvc, clk),
		Availability: handler.NewAvailabilityHandler(availabilitySvc, statsRepo),
		Ledger:       handler.NewLedgerHandler(ledgerSvc),
	}.Register(r.Group(cfg.APIPrefix), tokenSvc)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
