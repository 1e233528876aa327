package storage

import (
	"context"
	"errors"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
)

// ErrNotFound is returned by GetCacheEntry when the key has no value
var ErrNotFound = errors.New("storage: not found")

// CacheStore is the key-value surface used by the cache gate. Values are the
// raw JSON cache entries so that malformed data can be detected by the gate.
type CacheStore interface {
	GetCacheEntry(ctx context.Context, key string) ([]byte, error)
	PutCacheEntry(ctx context.Context, key string, value []byte) error
}

// RunStore persists pipeline run history
type RunStore interface {
	SaveRun(ctx context.Context, run *domain.Run) error
	GetRuns(ctx context.Context, limit int) ([]*domain.Run, error)
}

// Storage is the abstract interface for the persistence layer
type Storage interface {
	CacheStore
	RunStore

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
