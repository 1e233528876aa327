package domain

import (
	"encoding/json"
	"time"
)

// CacheStatus is the processing status stored in a cache entry
type CacheStatus string

const (
	CacheStatusComplete CacheStatus = "complete"
)

// CacheReason explains a cache gate decision
type CacheReason string

const (
	CacheMiss  CacheReason = "cache-miss"
	CacheHit   CacheReason = "cache-hit"
	CacheStale CacheReason = "stale-cache"
)

// CacheEntry records that a repository was summarized and uploaded
type CacheEntry struct {
	PushedAt    time.Time
	ProcessedAt time.Time
	Status      CacheStatus
}

type cacheEntryJSON struct {
	PushedAt    string `json:"pushedAt"`
	ProcessedAt string `json:"processedAt"`
	Status      string `json:"status"`
}

// MarshalJSON encodes the entry with RFC3339 timestamps (fractional seconds only when present)
func (e CacheEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(cacheEntryJSON{
		PushedAt:    e.PushedAt.UTC().Format(time.RFC3339Nano),
		ProcessedAt: e.ProcessedAt.UTC().Format(time.RFC3339Nano),
		Status:      string(e.Status),
	})
}

// UnmarshalJSON decodes an entry. Missing fields are left zero so that
// Complete can reject them; unparsable timestamps are an error.
func (e *CacheEntry) UnmarshalJSON(data []byte) error {
	var raw cacheEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = CacheEntry{Status: CacheStatus(raw.Status)}
	if raw.PushedAt != "" {
		t, err := time.Parse(time.RFC3339, raw.PushedAt)
		if err != nil {
			return err
		}
		e.PushedAt = t
	}
	if raw.ProcessedAt != "" {
		t, err := time.Parse(time.RFC3339, raw.ProcessedAt)
		if err != nil {
			return err
		}
		e.ProcessedAt = t
	}
	return nil
}

// Complete reports whether every required field is present
func (e CacheEntry) Complete() bool {
	return !e.PushedAt.IsZero() && !e.ProcessedAt.IsZero() && e.Status != ""
}

// CacheCheckResult is the outcome of a cache gate check
type CacheCheckResult struct {
	NeedsProcessing bool
	Reason          CacheReason
	Entry           *CacheEntry
}

// CacheKey returns the cache key for a repository
func CacheKey(org, name string) string {
	return "repo:" + org + "/" + name
}
