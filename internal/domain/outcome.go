package domain

import "time"

// FailureReason classifies a per-repository failure
type FailureReason string

const (
	FailureTimeout       FailureReason = "timeout"
	FailureSummarization FailureReason = "summarization-error"
	FailureUpload        FailureReason = "upload-error"
	FailureInvalidRecord FailureReason = "invalid-record"
)

// Outcome is produced once per repository per run
type Outcome struct {
	Repo          Repository
	CacheReason   CacheReason
	Skipped       bool // cache hit, nothing was done
	Success       bool
	Duration      time.Duration
	FailureReason FailureReason
	Truncated     bool
	BytesUploaded int
}
