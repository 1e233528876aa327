package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kurihiro0119/gitingest-pipeline/internal/aggregator"
	"github.com/kurihiro0119/gitingest-pipeline/internal/cache"
	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router *gin.Engine
	store  *memory.Store
	gate   *cache.Gate
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	clock := retry.NewFakeClock(time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC))
	gate := cache.NewGate(store, retry.New(retry.DefaultPolicy(), clock, nil), zap.NewNop())

	metrics := aggregator.NewMetrics()
	require.NoError(t, RegisterCacheMetrics(metrics.Registry(), gate))

	return fixture{
		router: SetupRoutes(NewHandler(gate, store), metrics.Handler(), zap.NewNop()),
		store:  store,
		gate:   gate,
	}
}

func (f fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCacheProxy_RoundTrip(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/cache/alphagov/govuk-frontend?pushedAt=2024-01-15T10:30:00Z", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"reason":"cache-miss"}`, rec.Body.String())

	rec = f.do(http.MethodPut, "/cache/alphagov/govuk-frontend", `{"pushedAt":"2024-01-15T10:30:00Z"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/cache/alphagov/govuk-frontend?pushedAt=2024-01-15T10:30:00Z", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pushedAt":"2024-01-15T10:30:00Z","processedAt":"2024-02-01T08:00:00Z","status":"complete"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/cache/alphagov/govuk-frontend?pushedAt=2024-03-01T00:00:00Z", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"reason":"stale-cache"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/cache/alphagov/govuk-frontend", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/cache/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3.0, stats["totalChecks"])
	assert.Equal(t, 1.0, stats["hits"])
	assert.Equal(t, 2.0, stats["misses"])
	assert.InDelta(t, 33.33, stats["hitRate"], 0.01)
}

func TestCacheProxy_BadRequests(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/cache/a/b?pushedAt=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "BAD_REQUEST")

	rec = f.do(http.MethodPut, "/cache/a/b", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, "/cache/a/b", `{"pushedAt":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/cache/a/b", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"reason":"cache-miss"}`, rec.Body.String())
}

func TestGetRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.SaveRun(ctx, &domain.Run{ID: "old", Status: domain.RunCompleted, StartedAt: base}))
	require.NoError(t, f.store.SaveRun(ctx, &domain.Run{ID: "new", Status: domain.RunInterrupted, StartedAt: base.Add(time.Hour)}))

	rec := f.do(http.MethodGet, "/api/v1/runs?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []domain.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "new", body.Data[0].ID)
	assert.Equal(t, domain.RunInterrupted, body.Data[0].Status)

	rec = f.do(http.MethodGet, "/api/v1/runs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.gate.Check(context.Background(), domain.Repository{Org: "a", Name: "b", PushedAt: time.Now()})

	rec := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gitingest_cache_checks 1")
	assert.Contains(t, rec.Body.String(), "gitingest_cache_misses 1")
}
