package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage"
)

func newStore(t *testing.T) storage.Storage {
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCacheEntryRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetCacheEntry(ctx, "repo:acme/widget")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.PutCacheEntry(ctx, "repo:acme/widget", []byte(`{"status":"complete"}`)))
	require.NoError(t, s.PutCacheEntry(ctx, "repo:acme/widget", []byte(`{"status":"other"}`)))

	got, err := s.GetCacheEntry(ctx, "repo:acme/widget")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"other"}`, string(got))
}

func TestRunsNewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveRun(ctx, &domain.Run{
			ID:        id,
			BatchSize: 3,
			Offset:    i,
			Status:    domain.RunInProgress,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	finished := base.Add(5 * time.Hour)
	require.NoError(t, s.SaveRun(ctx, &domain.Run{
		ID:         "a",
		BatchSize:  3,
		Status:     domain.RunCompleted,
		Successful: 7,
		StartedAt:  base,
		FinishedAt: &finished,
	}))

	runs, err := s.GetRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	all, err := s.GetRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	last := all[2]
	assert.Equal(t, "a", last.ID)
	assert.Equal(t, domain.RunCompleted, last.Status)
	assert.Equal(t, 7, last.Successful)
	require.NotNil(t, last.FinishedAt)
	assert.True(t, finished.Equal(*last.FinishedAt))
}
