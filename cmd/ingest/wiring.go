package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/kurihiro0119/gitingest-pipeline/internal/config"
	"github.com/kurihiro0119/gitingest-pipeline/internal/feed"
	"github.com/kurihiro0119/gitingest-pipeline/internal/objectstore"
	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage/memory"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage/postgres"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage/redis"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage/sqlite"
	"github.com/kurihiro0119/gitingest-pipeline/internal/summarizer"
	"github.com/kurihiro0119/gitingest-pipeline/pkg/client"
)

const dryRunDelay = 100 * time.Millisecond

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	case "redis":
		return redis.NewRedisStorage(redis.Options{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

// stores is the cache and run history backends of one invocation
type stores struct {
	cache storage.CacheStore
	runs  storage.RunStore
	close []io.Closer
}

func (s *stores) Close() error {
	var result error
	for _, c := range s.close {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// openStores picks the cache backend: memory for dry runs, the cache proxy
// when CACHE_PROXY_URL is set, otherwise STORAGE_TYPE
func openStores(cfg *config.Config, dry bool) (*stores, error) {
	if dry {
		mem := memory.New()
		return &stores{cache: mem, runs: mem}, nil
	}
	if cfg.CacheProxyURL != "" {
		return &stores{cache: client.NewClient(cfg.CacheProxyURL)}, nil
	}
	store, err := getStorage(cfg)
	if err != nil {
		return nil, err
	}
	return &stores{cache: store, runs: store, close: []io.Closer{store}}, nil
}

func getObjectStore(ctx context.Context, cfg *config.Config, dry bool) (objectstore.Store, error) {
	if dry {
		return objectstore.NewMemoryStore(), nil
	}
	switch cfg.ObjectStore {
	case "local":
		return objectstore.NewLocalStore(cfg.LocalObjectDir)
	default:
		return objectstore.NewGoogleCloudStorage(ctx, cfg.GCSBucket)
	}
}

func getSummarizer(cfg *config.Config, dry bool, clock retry.Clock) summarizer.Summarizer {
	if dry {
		return summarizer.NewDryRunSummarizer(dryRunDelay, clock)
	}
	switch cfg.Summarizer {
	case "git":
		return summarizer.NewGitSummarizer()
	default:
		return summarizer.NewCommandSummarizer(cfg.GitingestBin)
	}
}

func getFetcher(cfg *config.Config, retrier *retry.Retrier, logger *zap.Logger) feed.Fetcher {
	switch cfg.FeedSource {
	case "github":
		return feed.NewGitHubFetcher(cfg.GitHubToken, cfg.GitHubOrgs, retrier, logger)
	default:
		return feed.NewHTTPFetcher(cfg.FeedURL, &http.Client{Timeout: 60 * time.Second}, retrier, logger)
	}
}

func retryPolicy(cfg *config.Config) retry.Policy {
	p := retry.DefaultPolicy()
	if cfg.RetryMaxAttempts > 0 {
		p.MaxAttempts = cfg.RetryMaxAttempts
	}
	if len(cfg.RetryDelays) > 0 {
		p.Delays = cfg.RetryDelays
	}
	return p
}

// loadConfig is not cut short by a shutdown signal that arrives during startup
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
