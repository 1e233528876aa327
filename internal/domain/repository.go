package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Repository represents one entry of the repository feed
type Repository struct {
	Org      string
	Name     string
	URL      string
	PushedAt time.Time
}

// feedRecord is the wire shape of a feed entry; the feed uses "owner" but
// older snapshots used "org".
type feedRecord struct {
	Org      string `json:"org,omitempty"`
	Owner    string `json:"owner,omitempty"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	PushedAt string `json:"pushedAt"`
}

// UnmarshalJSON decodes a feed entry, accepting either "org" or "owner".
// An unparsable pushedAt is left zero so the record keeps its feed position
// and is later rejected by Valid.
func (r *Repository) UnmarshalJSON(data []byte) error {
	var rec feedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	r.Org = rec.Owner
	if r.Org == "" {
		r.Org = rec.Org
	}
	r.Name = rec.Name
	r.URL = rec.URL
	r.PushedAt = time.Time{}

	if t, err := time.Parse(time.RFC3339, rec.PushedAt); err == nil {
		r.PushedAt = t
	}

	r.Normalize()
	return nil
}

// MarshalJSON encodes the repository in feed format
func (r Repository) MarshalJSON() ([]byte, error) {
	rec := feedRecord{
		Owner: r.Org,
		Name:  r.Name,
		URL:   r.URL,
	}
	if !r.PushedAt.IsZero() {
		rec.PushedAt = r.PushedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(rec)
}

// Normalize fills Org and Name from the URL when the feed omitted them
func (r *Repository) Normalize() {
	if r.Org != "" && r.Name != "" {
		return
	}

	trimmed := strings.TrimSuffix(strings.TrimRight(r.URL, "/"), ".git")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return
	}

	if r.Org == "" {
		r.Org = parts[len(parts)-2]
	}
	if r.Name == "" {
		r.Name = parts[len(parts)-1]
	}
}

// Valid reports whether the record carries everything the cache and the
// object store need
func (r Repository) Valid() bool {
	return r.Org != "" && r.Name != "" && r.URL != "" && !r.PushedAt.IsZero()
}

// FullName returns "org/name"
func (r Repository) FullName() string {
	return r.Org + "/" + r.Name
}
