package aggregator

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
)

// DefaultProgressEvery is how many handled repositories separate progress records
const DefaultProgressEvery = 100

// Reporter emits progress and final records for a run
type Reporter struct {
	logger    *zap.Logger
	clock     retry.Clock
	every     int
	batchSize int
	offset    int
	start     time.Time
}

// Progress is one periodic progress record
type Progress struct {
	Processed    int
	Total        int
	CacheHitRate float64
	Elapsed      time.Duration
	// ETA is nil while nothing has been processed
	ETA *time.Duration
}

// FinalSummary is the completion record of a run
type FinalSummary struct {
	Total         int           `json:"total"`
	Cached        int           `json:"cached"`
	Processed     int           `json:"processed"`
	Failed        int           `json:"failed"`
	Truncated     int           `json:"truncated"`
	BytesUploaded int64         `json:"bytes_uploaded"`
	CacheHitRate  float64       `json:"cache_hit_rate_pct"`
	Elapsed       time.Duration `json:"elapsed"`
}

func NewReporter(logger *zap.Logger, clock retry.Clock, every, batchSize, offset int) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = retry.RealClock()
	}
	if every <= 0 {
		every = DefaultProgressEvery
	}
	return &Reporter{
		logger:    logger.Named("progress"),
		clock:     clock,
		every:     every,
		batchSize: batchSize,
		offset:    offset,
		start:     clock.Now(),
	}
}

func (r *Reporter) Elapsed() time.Duration {
	return r.clock.Now().Sub(r.start)
}

// Observe logs a progress record when handled is a multiple of the interval
func (r *Reporter) Observe(snap Snapshot) bool {
	if snap.Handled == 0 || snap.Handled%r.every != 0 {
		return false
	}
	r.LogProgress(r.progress(snap), snap)
	return true
}

func (r *Reporter) progress(snap Snapshot) Progress {
	p := Progress{
		Processed:    snap.Handled,
		Total:        snap.Total,
		CacheHitRate: snap.CacheHitRate(),
		Elapsed:      r.Elapsed(),
	}
	if p.Processed > 0 {
		remaining := p.Total - p.Processed
		if remaining < 0 {
			remaining = 0
		}
		eta := time.Duration(float64(p.Elapsed) / float64(p.Processed) * float64(remaining))
		p.ETA = &eta
	}
	return p
}

// LogProgress writes the structured progress record
func (r *Reporter) LogProgress(p Progress, snap Snapshot) {
	eta := "unknown"
	if p.ETA != nil {
		eta = FormatElapsed(*p.ETA)
	}
	percentage := 0.0
	if p.Total > 0 {
		percentage = float64(p.Processed) / float64(p.Total) * 100
	}

	r.logger.Info(fmt.Sprintf("processed %d/%d (%.1f%%), cache hit: %.1f%%, elapsed: %s, ETA: %s",
		p.Processed, p.Total, percentage, p.CacheHitRate, FormatElapsed(p.Elapsed), eta),
		zap.Int("batch_size", r.batchSize),
		zap.Int("offset", r.offset),
		zap.Int("processed", p.Processed),
		zap.Int("total", p.Total),
		zap.Int("cached", snap.CacheHits),
		zap.Int("successful", snap.Successful),
		zap.Int("failed", snap.Failed),
		zap.Float64("cache_hit_rate_pct", round1(p.CacheHitRate)),
		zap.String("elapsed", FormatElapsed(p.Elapsed)),
		zap.String("eta", eta),
	)
}

// Final logs and returns the completion record
func (r *Reporter) Final(snap Snapshot) FinalSummary {
	elapsed := r.Elapsed()
	cacheHitRate := 0.0
	if snap.Total > 0 {
		cacheHitRate = float64(snap.CacheHits) / float64(snap.Total) * 100
	}

	summary := FinalSummary{
		Total:         snap.Total,
		Cached:        snap.CacheHits,
		Processed:     snap.Successful,
		Failed:        snap.Failed,
		Truncated:     snap.Truncated,
		BytesUploaded: snap.BytesUploaded,
		CacheHitRate:  round1(cacheHitRate),
		Elapsed:       elapsed,
	}

	fields := []zap.Field{
		zap.Int("batch_size", r.batchSize),
		zap.Int("offset", r.offset),
		zap.Int("total", summary.Total),
		zap.Int("cached", summary.Cached),
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int("truncated", summary.Truncated),
		zap.Int64("bytes_uploaded", summary.BytesUploaded),
		zap.Float64("cache_hit_rate_pct", summary.CacheHitRate),
		zap.String("elapsed", FormatElapsed(elapsed)),
		zap.Float64("elapsed_seconds", round1(elapsed.Seconds())),
	}
	for reason, n := range snap.FailuresByReason {
		fields = append(fields, zap.Int("failed_"+string(reason), n))
	}

	r.logger.Info(fmt.Sprintf("pipeline complete: %d total, %d cached (%.1f%%), %d processed, %d failed, completed in %s",
		summary.Total, summary.Cached, summary.CacheHitRate, summary.Processed, summary.Failed, FormatElapsed(elapsed)),
		fields...,
	)
	return summary
}

// RenderTable writes the final summary as a table
func RenderTable(w io.Writer, s FinalSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Total Repositories", strconv.Itoa(s.Total)})
	table.Append([]string{"Cached", strconv.Itoa(s.Cached)})
	table.Append([]string{"Processed", strconv.Itoa(s.Processed)})
	table.Append([]string{"Failed", strconv.Itoa(s.Failed)})
	table.Append([]string{"Truncated", strconv.Itoa(s.Truncated)})
	table.Append([]string{"Bytes Uploaded", strconv.FormatInt(s.BytesUploaded, 10)})
	table.Append([]string{"Cache Hit Rate", fmt.Sprintf("%.1f%%", s.CacheHitRate)})
	table.Append([]string{"Elapsed", FormatElapsed(s.Elapsed)})
	table.Render()
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
