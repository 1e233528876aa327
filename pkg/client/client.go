// Package client talks to the status server and its cache proxy.
// Client implements storage.CacheStore, so a pipeline can share one
// cache through the proxy instead of connecting to the backend directly.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage"
)

// Client is the API client for the gitingest status server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ storage.CacheStore = (*Client)(nil)

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// StatusError is returned for unexpected HTTP statuses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d %s - %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// GetCacheEntry reads the raw entry for a "repo:{org}/{name}" key
func (c *Client) GetCacheEntry(ctx context.Context, key string) ([]byte, error) {
	org, name, err := splitKey(key)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodGet, cachePath(org, name), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, storage.ErrNotFound
	default:
		return nil, statusError(resp)
	}
}

// PutCacheEntry writes an entry. Only pushedAt is sent; the server stamps
// processedAt and status.
func (c *Client) PutCacheEntry(ctx context.Context, key string, value []byte) error {
	org, name, err := splitKey(key)
	if err != nil {
		return err
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(value, &entry); err != nil {
		return fmt.Errorf("decode cache entry: %w", err)
	}
	body, err := json.Marshal(map[string]string{
		"pushedAt": entry.PushedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPut, cachePath(org, name), nil, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// Check asks the proxy whether repo needs processing
func (c *Client) Check(ctx context.Context, repo domain.Repository) (domain.CacheCheckResult, error) {
	params := url.Values{}
	params.Set("pushedAt", repo.PushedAt.UTC().Format(time.RFC3339Nano))

	resp, err := c.do(ctx, http.MethodGet, cachePath(repo.Org, repo.Name), params, nil)
	if err != nil {
		return domain.CacheCheckResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var entry domain.CacheEntry
		if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
			return domain.CacheCheckResult{}, err
		}
		return domain.CacheCheckResult{Reason: domain.CacheHit, Entry: &entry}, nil
	case http.StatusNotFound:
		var body struct {
			Reason domain.CacheReason `json:"reason"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Reason == "" {
			body.Reason = domain.CacheMiss
		}
		return domain.CacheCheckResult{NeedsProcessing: true, Reason: body.Reason}, nil
	default:
		return domain.CacheCheckResult{}, statusError(resp)
	}
}

// CacheStats are the proxy's gate counters
type CacheStats struct {
	TotalChecks int     `json:"totalChecks"`
	Hits        int     `json:"hits"`
	Misses      int     `json:"misses"`
	HitRate     float64 `json:"hitRate"`
}

// GetCacheStats retrieves the proxy's cache counters
func (c *Client) GetCacheStats(ctx context.Context) (*CacheStats, error) {
	var stats CacheStats
	if err := c.get(ctx, "/cache/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetRuns retrieves recent pipeline runs
func (c *Client) GetRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var response struct {
		Data []*domain.Run `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/runs", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte) (*http.Response, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}

func cachePath(org, name string) string {
	return "/cache/" + url.PathEscape(org) + "/" + url.PathEscape(name)
}

func splitKey(key string) (org, name string, err error) {
	rest, ok := strings.CutPrefix(key, "repo:")
	if ok {
		org, name, ok = strings.Cut(rest, "/")
	}
	if !ok || org == "" || name == "" {
		return "", "", fmt.Errorf("invalid cache key %q", key)
	}
	return org, name, nil
}
