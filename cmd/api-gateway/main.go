package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/elective-match-api/api/swagger"
	"github.com/noah-isme/elective-match-api/internal/handler"
	"github.com/noah-isme/elective-match-api/internal/repository"
	"github.com/noah-isme/elective-match-api/internal/router"
	"github.com/noah-isme/elective-match-api/internal/service"
	"github.com/noah-isme/elective-match-api/pkg/cache"
	"github.com/noah-isme/elective-match-api/pkg/config"
	"github.com/noah-isme/elective-match-api/pkg/database"
	"github.com/noah-isme/elective-match-api/pkg/jobs"
	"github.com/noah-isme/elective-match-api/pkg/logger"
	"github.com/noah-isme/elective-match-api/pkg/storage"
)

var version = "dev"

// @title Elective Match API
// @version 1.0.0
// @description Assigns students to optional courses with stable matching.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, match runs stay in memory", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "elective", logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.ResultStore.TTL, logr, cfg.ResultStore.CacheEnabled && redisClient != nil)
	store := service.NewMatchResultStore(cfg.ResultStore.TTL, cacheSvc, logr)
	go store.RunJanitor(ctx, time.Minute)

	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	weightingRepo := repository.NewWeightingRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)

	engine := service.NewStableMatchingService(metrics, logr)
	var primary service.EngineMatcher = service.NewLocalEngineMatcher(engine)
	if cfg.StableMatch.URL != "" {
		primary = service.NewHTTPEngineMatcher(cfg.StableMatch.URL, &http.Client{})
		logr.Info("using remote stable match engine", zap.String("url", cfg.StableMatch.URL))
	}
	matcher := service.NewStableMatchClient(primary, service.NewRandomMatchingService(nil, logr), service.StableMatchClientConfig{
		AttemptTimeout: cfg.StableMatch.AttemptTimeout,
		MaxAttempts:    cfg.StableMatch.MaxAttempts,
		BaseDelay:      cfg.StableMatch.RetryDelay,
		MaxDelay:       cfg.StableMatch.MaxRetryDelay,
		TotalBudget:    cfg.StableMatch.TotalBudget,
	}, metrics, logr)

	scores := service.NewPreferenceScoreService(weightingRepo, gradeRepo, metrics, logr)
	workflow := service.NewAssignmentWorkflowService(studentRepo, courseRepo, enrollmentRepo, scores, matcher, store, validate, metrics, logr, service.AssignmentWorkflowConfig{
		DefaultBatchSize:  cfg.Assignment.DefaultBatchSize,
		Concurrency:       cfg.Assignment.BatchConcurrency,
		CapacityPerCourse: cfg.Assignment.CapacityPerCourse,
	})
	weightings := service.NewWeightingService(weightingRepo, courseRepo, validate, logr)
	runs := service.NewRunExportService(store, enrollmentRepo, validate, logr)
	if files, err := storage.NewFileStore(cfg.Export.Dir); err != nil {
		logr.Warn("export archive disabled", zap.Error(err))
	} else {
		runs.WithArchive(files, storage.NewLinkSigner(cfg.Export.LinkSecret, cfg.Export.LinkTTL), cfg.APIPrefix)
		go runs.RunArchiveJanitor(ctx, time.Hour)
	}
	tokens := service.NewTokenService(cfg.JWT.Secret)

	grades := service.NewGradeIngestionService(gradeRepo, courseRepo, validate, metrics, logr, jobs.QueueConfig{
		Workers:    cfg.Ingestion.Workers,
		BufferSize: cfg.Ingestion.BufferSize,
		MaxRetries: cfg.Ingestion.MaxRetries,
		RetryDelay: cfg.Ingestion.RetryDelay,
	})
	// Workers outlive the signal context so accepted events drain on shutdown.
	grades.Start(context.WithoutCancel(ctx))

	r := router.NewEngine(router.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Logger:         logr,
		Observer:       metrics,
		Ready: func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return db.PingContext(pingCtx)
		},
	})
	if cfg.StableMatch.URL == "" {
		router.RegisterMatching(r, handler.NewMatchingHandler(engine, store, version))
	}
	router.RegisterAPI(r, cfg.APIPrefix, tokens, router.APIHandlers{
		Assignments: handler.NewAssignmentHandler(workflow, runs),
		Weightings:  handler.NewWeightingHandler(weightings),
		Grades:      handler.NewGradeHandler(grades),
		Metrics:     handler.NewMetricsHandler(metrics),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown failed", zap.Error(err))
	}
	if err := grades.Drain(shutdownCtx); err != nil {
		logr.Warn("grade queue not drained", zap.Error(err))
	}
	grades.Stop()
}
