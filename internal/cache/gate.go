// Package cache decides whether a repository needs to be summarized again by
// comparing its pushedAt timestamp with the one recorded at the last
// successful upload.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	apperrors "github.com/kurihiro0119/gitingest-pipeline/internal/errors"
	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage"
)

// Stats are the gate counters for one run
type Stats struct {
	Checks        int `json:"totalChecks"`
	Hits          int `json:"hits"`
	Misses        int `json:"misses"`
	Stale         int `json:"stale"`
	WriteFailures int `json:"writeFailures"`
}

// HitRate returns hits as a percentage of checks
func (s Stats) HitRate() float64 {
	if s.Checks == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Checks) * 100
}

// Gate reads and writes cache entries through a CacheStore
type Gate struct {
	store   storage.CacheStore
	retrier *retry.Retrier
	logger  *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// NewGate creates a gate. Write-backs are retried with retrier's policy and
// stamped with its clock.
func NewGate(store storage.CacheStore, retrier *retry.Retrier, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		store:   store,
		retrier: retrier,
		logger:  logger.Named("cache"),
	}
}

// Check decides whether repo needs processing. It never fails: backend errors
// and malformed entries are treated as a miss.
func (g *Gate) Check(ctx context.Context, repo domain.Repository) domain.CacheCheckResult {
	if repo.Org == "" || repo.Name == "" || repo.PushedAt.IsZero() {
		g.logger.Warn("incomplete repository record, treating as cache miss",
			zap.String("org", repo.Org),
			zap.String("name", repo.Name),
		)
		return g.record(domain.CacheCheckResult{NeedsProcessing: true, Reason: domain.CacheMiss})
	}

	key := domain.CacheKey(repo.Org, repo.Name)
	entry, err := g.lookup(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			g.logger.Warn("cache read failed, treating as cache miss",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return g.record(domain.CacheCheckResult{NeedsProcessing: true, Reason: domain.CacheMiss})
	}

	if entry.PushedAt.Equal(repo.PushedAt) {
		return g.record(domain.CacheCheckResult{NeedsProcessing: false, Reason: domain.CacheHit, Entry: entry})
	}
	return g.record(domain.CacheCheckResult{NeedsProcessing: true, Reason: domain.CacheStale, Entry: entry})
}

// Entry returns the stored entry for org/name.
// A missing or malformed entry is a NOT_FOUND error.
func (g *Gate) Entry(ctx context.Context, org, name string) (*domain.CacheEntry, error) {
	entry, err := g.lookup(ctx, domain.CacheKey(org, name))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("cache entry " + org + "/" + name)
	}
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCacheRead, "failed to read cache entry", err)
	}
	return entry, nil
}

func (g *Gate) lookup(ctx context.Context, key string) (*domain.CacheEntry, error) {
	raw, err := g.store.GetCacheEntry(ctx, key)
	if err != nil {
		return nil, err
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		g.logger.Warn("malformed cache entry", zap.String("key", key), zap.Error(err))
		return nil, storage.ErrNotFound
	}
	if !entry.Complete() {
		g.logger.Warn("incomplete cache entry", zap.String("key", key))
		return nil, storage.ErrNotFound
	}
	return &entry, nil
}

// Update records that repo was uploaded at its current pushedAt.
// Failures are retried, then logged and swallowed; the next run reprocesses.
func (g *Gate) Update(ctx context.Context, repo domain.Repository) {
	if err := g.Put(ctx, repo); err != nil {
		g.mu.Lock()
		g.stats.WriteFailures++
		g.mu.Unlock()
		g.logger.Error("cache write failed",
			zap.String("repo", repo.FullName()),
			zap.Error(err),
		)
	}
}

// Put writes the entry for repo and returns the error after retries
func (g *Gate) Put(ctx context.Context, repo domain.Repository) error {
	entry := domain.CacheEntry{
		PushedAt:    repo.PushedAt,
		ProcessedAt: g.retrier.Clock().Now().UTC(),
		Status:      domain.CacheStatusComplete,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeCacheWrite, "failed to encode cache entry", err)
	}

	key := domain.CacheKey(repo.Org, repo.Name)
	err = g.retrier.Do(ctx, func(ctx context.Context) error {
		return g.store.PutCacheEntry(ctx, key, data)
	})
	if err != nil {
		return apperrors.New(apperrors.ErrCodeCacheWrite, "failed to write cache entry "+key, err)
	}
	return nil
}

// Stats returns a snapshot of the counters
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

func (g *Gate) record(res domain.CacheCheckResult) domain.CacheCheckResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stats.Checks++
	switch res.Reason {
	case domain.CacheHit:
		g.stats.Hits++
	case domain.CacheStale:
		g.stats.Stale++
		g.stats.Misses++
	default:
		g.stats.Misses++
	}
	return res
}
