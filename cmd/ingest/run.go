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
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kurihiro0119/gitingest-pipeline/internal/aggregator"
	"github.com/kurihiro0119/gitingest-pipeline/internal/cache"
	"github.com/kurihiro0119/gitingest-pipeline/internal/logging"
	"github.com/kurihiro0119/gitingest-pipeline/internal/partition"
	"github.com/kurihiro0119/gitingest-pipeline/internal/pipeline"
	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
	"github.com/kurihiro0119/gitingest-pipeline/internal/summarizer"
	"github.com/kurihiro0119/gitingest-pipeline/internal/upload"
)

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if err := partition.Validate(batchSize, offset); err != nil {
		return err
	}
	if err := cfg.Validate(dryRun); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	clock := retry.RealClock()
	retrier := retry.New(retryPolicy(cfg), clock, logger)

	st, err := openStores(cfg, dryRun)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	objects, err := getObjectStore(ctx, cfg, dryRun)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("failed to initialize object store: %w", err)
	}
	defer func() {
		var result error
		if cerr := st.Close(); cerr != nil {
			result = multierror.Append(result, cerr)
		}
		if cerr := objects.Close(); cerr != nil {
			result = multierror.Append(result, cerr)
		}
		if result != nil {
			logger.Warn("failed to close backends", zap.Error(result))
		}
	}()

	metrics := aggregator.NewMetrics()
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, metrics.Handler(), logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	p := pipeline.New(pipeline.Deps{
		Fetcher:  getFetcher(cfg, retrier, logger),
		Gate:     cache.NewGate(st.cache, retrier, logger),
		Worker:   summarizer.NewWorker(getSummarizer(cfg, dryRun, clock), retrier, cfg.SummarizeTimeout, logger),
		Uploader: upload.NewUploader(objects, retrier, logger),
		Runs:     st.runs,
		Metrics:  metrics,
		Clock:    clock,
		Logger:   logger,
	}, pipeline.Options{
		BatchSize:   batchSize,
		Offset:      offset,
		Limit:       limit,
		DryRun:      dryRun,
		Concurrency: concurrency,
		StateFile:   cfg.StateFile,
	})

	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nRun %s (batch %d/%d)\n\n", summary.RunID, offset, batchSize)
	aggregator.RenderTable(out, summary.Final)
	if summary.Interrupted {
		fmt.Fprintln(out, "Stopped early after a shutdown signal.")
	}
	return nil
}

func serveMetrics(addr string, handler http.Handler, logger *zap.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/metrics", gin.WrapH(handler))

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
