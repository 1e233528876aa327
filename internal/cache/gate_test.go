package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	apperrors "github.com/kurihiro0119/gitingest-pipeline/internal/errors"
	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage/memory"
)

var (
	pushed = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	now    = time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
)

// flakyStore fails the first failPuts writes and every read when readErr is set
type flakyStore struct {
	*memory.Store
	readErr  error
	failPuts int
	puts     int
}

func (f *flakyStore) GetCacheEntry(ctx context.Context, key string) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.Store.GetCacheEntry(ctx, key)
}

func (f *flakyStore) PutCacheEntry(ctx context.Context, key string, value []byte) error {
	f.puts++
	if f.puts <= f.failPuts {
		return errors.New("connection reset")
	}
	return f.Store.PutCacheEntry(ctx, key, value)
}

func newGate(t *testing.T, store storage.CacheStore) (*Gate, *retry.FakeClock, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	clock := retry.NewFakeClock(now)
	r := retry.New(retry.DefaultPolicy(), clock, zap.NewNop())
	return NewGate(store, r, zap.New(core)), clock, logs
}

func repo() domain.Repository {
	return domain.Repository{
		Org:      "alphagov",
		Name:     "govuk-frontend",
		URL:      "https://github.com/alphagov/govuk-frontend",
		PushedAt: pushed,
	}
}

func TestCheck_Miss(t *testing.T) {
	gate, _, _ := newGate(t, memory.New())

	res := gate.Check(context.Background(), repo())
	assert.True(t, res.NeedsProcessing)
	assert.Equal(t, domain.CacheMiss, res.Reason)
	assert.Nil(t, res.Entry)
}

func TestCheck_HitAfterUpdate(t *testing.T) {
	store := memory.New()
	gate, _, _ := newGate(t, store)
	ctx := context.Background()

	gate.Update(ctx, repo())

	raw, err := store.GetCacheEntry(ctx, "repo:alphagov/govuk-frontend")
	require.NoError(t, err)
	assert.JSONEq(t, `{"pushedAt":"2024-01-15T10:30:00Z","processedAt":"2024-02-01T08:00:00Z","status":"complete"}`, string(raw))

	res := gate.Check(ctx, repo())
	assert.False(t, res.NeedsProcessing)
	assert.Equal(t, domain.CacheHit, res.Reason)
	require.NotNil(t, res.Entry)
	assert.True(t, res.Entry.ProcessedAt.Equal(now))
}

func TestCheck_Stale(t *testing.T) {
	gate, _, _ := newGate(t, memory.New())
	ctx := context.Background()

	gate.Update(ctx, repo())

	newer := repo()
	newer.PushedAt = pushed.Add(time.Hour)
	res := gate.Check(ctx, newer)
	assert.True(t, res.NeedsProcessing)
	assert.Equal(t, domain.CacheStale, res.Reason)
}

func TestCheck_Deterministic(t *testing.T) {
	gate, _, _ := newGate(t, memory.New())
	ctx := context.Background()
	gate.Update(ctx, repo())

	first := gate.Check(ctx, repo())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, gate.Check(ctx, repo()))
	}
}

func TestCheck_MalformedEntries(t *testing.T) {
	cases := map[string]string{
		"not json":        `{{{`,
		"missing status":  `{"pushedAt":"2024-01-15T10:30:00Z","processedAt":"2024-02-01T08:00:00Z"}`,
		"missing pushed":  `{"processedAt":"2024-02-01T08:00:00Z","status":"complete"}`,
		"bad timestamp":   `{"pushedAt":"yesterday","processedAt":"2024-02-01T08:00:00Z","status":"complete"}`,
		"missing process": `{"pushedAt":"2024-01-15T10:30:00Z","status":"complete"}`,
	}

	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			store := memory.New()
			require.NoError(t, store.PutCacheEntry(context.Background(), "repo:alphagov/govuk-frontend", []byte(value)))
			gate, _, _ := newGate(t, store)

			res := gate.Check(context.Background(), repo())
			assert.True(t, res.NeedsProcessing)
			assert.Equal(t, domain.CacheMiss, res.Reason)
		})
	}
}

func TestCheck_ReadErrorFailsOpen(t *testing.T) {
	store := &flakyStore{Store: memory.New(), readErr: errors.New("dial tcp: refused")}
	gate, _, logs := newGate(t, store)

	res := gate.Check(context.Background(), repo())
	assert.True(t, res.NeedsProcessing)
	assert.Equal(t, domain.CacheMiss, res.Reason)
	assert.Equal(t, 1, logs.FilterMessage("cache read failed, treating as cache miss").Len())
}

func TestCheck_IncompleteRecordSkipsBackend(t *testing.T) {
	store := &flakyStore{Store: memory.New(), readErr: errors.New("must not be called")}
	gate, _, logs := newGate(t, store)

	r := repo()
	r.PushedAt = time.Time{}
	res := gate.Check(context.Background(), r)
	assert.Equal(t, domain.CacheMiss, res.Reason)
	assert.Equal(t, 0, logs.FilterMessage("cache read failed, treating as cache miss").Len())
}

func TestUpdate_RetriesThenSucceeds(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failPuts: 2}
	gate, clock, _ := newGate(t, store)

	gate.Update(context.Background(), repo())

	assert.Equal(t, 3, store.puts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
	assert.Equal(t, 0, gate.Stats().WriteFailures)
	assert.Equal(t, 1, store.Len())
}

func TestUpdate_FailureIsSwallowed(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failPuts: 10}
	gate, _, logs := newGate(t, store)

	gate.Update(context.Background(), repo())

	assert.Equal(t, 3, store.puts)
	assert.Equal(t, 1, gate.Stats().WriteFailures)
	assert.Equal(t, 1, logs.FilterMessage("cache write failed").Len())
	assert.Equal(t, 0, store.Len())
}

func TestEntry(t *testing.T) {
	gate, _, _ := newGate(t, memory.New())
	ctx := context.Background()

	_, err := gate.Entry(ctx, "alphagov", "govuk-frontend")
	assert.True(t, apperrors.IsNotFound(err))

	gate.Update(ctx, repo())
	entry, err := gate.Entry(ctx, "alphagov", "govuk-frontend")
	require.NoError(t, err)
	assert.True(t, entry.PushedAt.Equal(pushed))
	assert.Equal(t, domain.CacheStatusComplete, entry.Status)
}

func TestStats(t *testing.T) {
	gate, _, _ := newGate(t, memory.New())
	ctx := context.Background()

	gate.Check(ctx, repo())
	gate.Update(ctx, repo())
	gate.Check(ctx, repo())
	stale := repo()
	stale.PushedAt = pushed.Add(time.Minute)
	gate.Check(ctx, stale)
	gate.Check(ctx, repo())

	s := gate.Stats()
	assert.Equal(t, Stats{Checks: 4, Hits: 2, Misses: 2, Stale: 1}, s)
	assert.InDelta(t, 50.0, s.HitRate(), 0.001)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"totalChecks":4`)
}
