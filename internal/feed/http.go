package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	apperrors "github.com/kurihiro0119/gitingest-pipeline/internal/errors"
	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
)

const requestTimeout = 30 * time.Second

// httpFetcher downloads a JSON array of repositories
type httpFetcher struct {
	url     string
	client  *http.Client
	retrier *retry.Retrier
	logger  *zap.Logger
}

// NewHTTPFetcher creates a Fetcher for a JSON feed at url
func NewHTTPFetcher(url string, client *http.Client, retrier *retry.Retrier, logger *zap.Logger) Fetcher {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httpFetcher{
		url:     url,
		client:  client,
		retrier: retrier,
		logger:  logger.Named("feed"),
	}
}

// Fetch downloads and decodes the feed. Any non-2xx status and any decoding
// failure is retried; exhaustion is a FEED_FETCH_FAILED error.
func (f *httpFetcher) Fetch(ctx context.Context) ([]domain.Repository, error) {
	repos, err := retry.DoValue(ctx, f.retrier, f.fetchOnce)
	if err != nil {
		f.logger.Error("failed to fetch feed after retries",
			zap.String("feed_url", f.url),
			zap.Error(err),
		)
		return nil, apperrors.NewFeedFetchError(f.url, err)
	}

	invalid := 0
	for _, r := range repos {
		if !r.Valid() {
			invalid++
		}
	}
	f.logger.Info("fetched repository feed",
		zap.String("feed_url", f.url),
		zap.Int("total_repos", len(repos)),
		zap.Int("incomplete_records", invalid),
	)
	return repos, nil
}

func (f *httpFetcher) fetchOnce(ctx context.Context) ([]domain.Repository, error) {
	f.logger.Debug("fetching feed", zap.String("feed_url", f.url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var repos []domain.Repository
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return repos, nil
}
