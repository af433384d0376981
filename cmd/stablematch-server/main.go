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
	"go.uber.org/zap"

	"github.com/noah-isme/elective-match-api/internal/handler"
	"github.com/noah-isme/elective-match-api/internal/repository"
	"github.com/noah-isme/elective-match-api/internal/router"
	"github.com/noah-isme/elective-match-api/internal/service"
	"github.com/noah-isme/elective-match-api/pkg/cache"
	"github.com/noah-isme/elective-match-api/pkg/config"
	"github.com/noah-isme/elective-match-api/pkg/logger"
)

var version = "dev"

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

	metrics := service.NewMetricsService()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, match runs stay in memory", zap.Error(err))
		redisClient = nil
	}
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		defer redisClient.Close()
		cacheRepo = repository.NewCacheRepository(redisClient, "stablematch", logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.ResultStore.TTL, logr, cfg.ResultStore.CacheEnabled && redisClient != nil)
	store := service.NewMatchResultStore(cfg.ResultStore.TTL, cacheSvc, logr)
	go store.RunJanitor(ctx, time.Minute)

	r := router.NewEngine(router.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logr,
		Observer:       metrics,
	})
	router.RegisterMatching(r, handler.NewMatchingHandler(service.NewStableMatchingService(metrics, logr), store, version))
	r.GET("/metrics", handler.NewMetricsHandler(metrics).Prometheus)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.StableMatch.ServerPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("stable match engine starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("engine server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("engine shutdown failed", zap.Error(err))
	}
}
