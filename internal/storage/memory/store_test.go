package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage"
)

func TestStore_CacheEntries(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.GetCacheEntry(ctx, "repo:a/b")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	value := []byte(`{"status":"complete"}`)
	require.NoError(t, s.PutCacheEntry(ctx, "repo:a/b", value))
	value[0] = 'x'

	got, err := s.GetCacheEntry(ctx, "repo:a/b")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"complete"}`, string(got))
	assert.Equal(t, 1, s.Len())
}

func TestStore_RunsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, s.SaveRun(ctx, &domain.Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	runs, err := s.GetRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].ID)
	assert.Equal(t, "second", runs[1].ID)
}
