package aggregator

import (
	"sync"
	"time"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
)

// ProcessingStats accumulates outcomes for one run. It is safe for
// concurrent use.
type ProcessingStats struct {
	mu sync.Mutex

	total            int
	handled          int
	cacheHits        int
	cacheMisses      int
	successful       int
	failed           int
	truncated        int
	bytesUploaded    int64
	successDuration  time.Duration
	failuresByReason map[domain.FailureReason]int
}

// Snapshot is a point-in-time copy of ProcessingStats
type Snapshot struct {
	Total            int                          `json:"total"`
	Handled          int                          `json:"handled"`
	CacheHits        int                          `json:"cache_hits"`
	CacheMisses      int                          `json:"cache_misses"`
	Successful       int                          `json:"successful"`
	Failed           int                          `json:"failed"`
	Truncated        int                          `json:"truncated"`
	BytesUploaded    int64                        `json:"bytes_uploaded"`
	AverageDuration  time.Duration                `json:"average_duration"`
	FailuresByReason map[domain.FailureReason]int `json:"failures_by_reason,omitempty"`
}

// NewProcessingStats creates stats for a run over total assigned repositories
func NewProcessingStats(total int) *ProcessingStats {
	return &ProcessingStats{
		total:            total,
		failuresByReason: make(map[domain.FailureReason]int),
	}
}

// Record adds one outcome and returns the stats as of that outcome
func (s *ProcessingStats) Record(o domain.Outcome) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handled++
	if o.Skipped {
		s.cacheHits++
		return s.snapshotLocked()
	}

	s.cacheMisses++
	if o.Success {
		s.successful++
		s.bytesUploaded += int64(o.BytesUploaded)
		s.successDuration += o.Duration
	} else {
		s.failed++
		s.failuresByReason[o.FailureReason]++
	}
	if o.Truncated {
		s.truncated++
	}
	return s.snapshotLocked()
}

func (s *ProcessingStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *ProcessingStats) snapshotLocked() Snapshot {
	snap := Snapshot{
		Total:         s.total,
		Handled:       s.handled,
		CacheHits:     s.cacheHits,
		CacheMisses:   s.cacheMisses,
		Successful:    s.successful,
		Failed:        s.failed,
		Truncated:     s.truncated,
		BytesUploaded: s.bytesUploaded,
	}
	if s.successful > 0 {
		snap.AverageDuration = s.successDuration / time.Duration(s.successful)
	}
	if len(s.failuresByReason) > 0 {
		snap.FailuresByReason = make(map[domain.FailureReason]int, len(s.failuresByReason))
		for k, v := range s.failuresByReason {
			snap.FailuresByReason[k] = v
		}
	}
	return snap
}

// CacheHitRate is the percentage of handled repositories that were cache hits
func (s Snapshot) CacheHitRate() float64 {
	if s.Handled == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.Handled) * 100
}
