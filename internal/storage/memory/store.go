// Package memory provides an in-process Storage used for dry runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage"
)

// Store is a mutex-guarded map implementation of storage.Storage
type Store struct {
	mu      sync.RWMutex
	entries map[string][]byte
	runs    map[string]domain.Run
}

var _ storage.Storage = (*Store)(nil)

func New() *Store {
	return &Store{
		entries: make(map[string][]byte),
		runs:    make(map[string]domain.Run),
	}
}

func (s *Store) Migrate(ctx context.Context) error { return nil }

func (s *Store) GetCacheEntry(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) PutCacheEntry(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) SaveRun(ctx context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

func (s *Store) GetRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*domain.Run, 0, len(s.runs))
	for _, r := range s.runs {
		r := r
		runs = append(runs, &r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Len reports the number of cache entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Close() error { return nil }
