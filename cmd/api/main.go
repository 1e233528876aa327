package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kurihiro0119/gitingest-pipeline/internal/aggregator"
	"github.com/kurihiro0119/gitingest-pipeline/internal/api"
	"github.com/kurihiro0119/gitingest-pipeline/internal/cache"
	"github.com/kurihiro0119/gitingest-pipeline/internal/config"
	"github.com/kurihiro0119/gitingest-pipeline/internal/logging"
	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage/postgres"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage/redis"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateStorage(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Initialize storage
	var store storage.Storage
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
	case "redis":
		store, err = redis.NewRedisStorage(redis.Options{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
	if err != nil {
		logger.Fatal("failed to initialize storage",
			zap.String("storage_type", cfg.StorageType),
			zap.Error(err),
		)
	}
	defer store.Close()

	retrier := retry.New(retry.Policy{MaxAttempts: cfg.RetryMaxAttempts, Delays: cfg.RetryDelays}, nil, logger)
	gate := cache.NewGate(store, retrier, logger)

	metrics := aggregator.NewMetrics()
	if err := api.RegisterCacheMetrics(metrics.Registry(), gate); err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(gate, store)
	router := api.SetupRoutes(handler, metrics.Handler(), logger)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		logger.Info("starting API server",
			zap.String("addr", addr),
			zap.String("storage_type", cfg.StorageType),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
