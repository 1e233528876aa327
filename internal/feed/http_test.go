package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/kurihiro0119/gitingest-pipeline/internal/errors"
	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
)

const feedBody = `[
	{"url":"https://github.com/alphagov/govuk-frontend","owner":"alphagov","name":"govuk-frontend","pushedAt":"2024-01-15T10:30:00Z"},
	{"url":"https://github.com/nhsuk/nhsuk-frontend","org":"nhsuk","name":"nhsuk-frontend","pushedAt":"2024-01-10T00:00:00Z"},
	{"url":"https://github.com/cabinetoffice/idk.git","pushedAt":"2024-01-01T00:00:00Z"},
	{"url":"https://github.com/ukhomeoffice/broken","owner":"ukhomeoffice","name":"broken","pushedAt":"not-a-date"}
]`

func newRetrier(clock *retry.FakeClock) *retry.Retrier {
	return retry.New(retry.DefaultPolicy(), clock, zap.NewNop())
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, srv.Client(), newRetrier(retry.NewFakeClock(time.Now())), nil)
	repos, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, repos, 4)

	assert.Equal(t, "alphagov", repos[0].Org)
	assert.Equal(t, "govuk-frontend", repos[0].Name)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), repos[0].PushedAt)

	assert.Equal(t, "nhsuk", repos[1].Org)

	assert.Equal(t, "cabinetoffice", repos[2].Org)
	assert.Equal(t, "idk", repos[2].Name)

	assert.False(t, repos[3].Valid())
}

func TestHTTPFetcher_RetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		case 2:
			w.Write([]byte(`[{"url":`))
		default:
			w.Write([]byte(feedBody))
		}
	}))
	defer srv.Close()

	clock := retry.NewFakeClock(time.Now())
	f := NewHTTPFetcher(srv.URL, srv.Client(), newRetrier(clock), nil)
	repos, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, repos, 4)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestHTTPFetcher_ExhaustionIsFatal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, srv.Client(), newRetrier(retry.NewFakeClock(time.Now())), nil)
	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeFeedFetch, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
