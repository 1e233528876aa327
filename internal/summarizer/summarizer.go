// Package summarizer turns a repository URL into a bounded text digest.
//
// The digest itself is produced by a Summarizer backend. The Worker wraps a
// backend with the per-repository timeout, retries and size limit.
package summarizer

import (
	"context"
	"time"
)

const (
	// MaxSummaryBytes is the largest summary uploaded, in bytes
	MaxSummaryBytes = 512 * 1024

	// TruncationNotice is appended after a truncated summary
	TruncationNotice = "\n\n[... Summary truncated at 512KB limit ...]"
)

// Summarizer produces the digest text for one repository
type Summarizer interface {
	Summarize(ctx context.Context, repoURL string) (string, error)
}

// Result is a successful summarization
type Result struct {
	Summary       string
	Truncated     bool
	OriginalBytes int
	Duration      time.Duration
}
