package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
)

const (
	// githubHourlyQuota is the authenticated core API quota
	githubHourlyQuota = 5000

	// quotaReserve requests are kept back until the window resets
	quotaReserve = 10
)

// RateLimiter paces GitHub API calls against the quota reported by the API
type RateLimiter interface {
	Wait(ctx context.Context) error
	CheckLimit() (remaining int, resetTime time.Time)
	UpdateLimit(remaining int, resetTime time.Time)
}

type quotaLimiter struct {
	mu        sync.Mutex
	clock     retry.Clock
	remaining int
	reset     time.Time
	spacing   time.Duration
	next      time.Time
	logger    *zap.Logger
}

// NewRateLimiter spaces calls at least spacing apart and blocks once the
// remaining quota drops to the reserve
func NewRateLimiter(spacing time.Duration, clock retry.Clock, logger *zap.Logger) RateLimiter {
	if clock == nil {
		clock = retry.RealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &quotaLimiter{
		clock:     clock,
		remaining: githubHourlyQuota,
		reset:     clock.Now().Add(time.Hour),
		spacing:   spacing,
		logger:    logger,
	}
}

// Wait reserves the next call slot and sleeps until it is due.
// The lock is not held while sleeping.
func (q *quotaLimiter) Wait(ctx context.Context) error {
	q.mu.Lock()
	now := q.clock.Now()

	var wait time.Duration
	if q.remaining <= quotaReserve && q.reset.After(now) {
		wait = q.reset.Sub(now)
		q.logger.Warn("github quota nearly exhausted, waiting for reset",
			zap.Int("remaining", q.remaining),
			zap.Duration("wait", wait.Round(time.Second)),
		)
		q.remaining = githubHourlyQuota
		q.reset = q.reset.Add(time.Hour)
	}

	slot := now.Add(wait)
	if q.next.After(slot) {
		slot = q.next
	}
	q.next = slot.Add(q.spacing)
	q.remaining--
	q.mu.Unlock()

	if d := slot.Sub(now); d > 0 {
		return q.clock.Sleep(ctx, d)
	}
	return ctx.Err()
}

func (q *quotaLimiter) CheckLimit() (remaining int, resetTime time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remaining, q.reset
}

// UpdateLimit replaces the local estimate with the values from a response
func (q *quotaLimiter) UpdateLimit(remaining int, resetTime time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.remaining = remaining
	q.reset = resetTime
}
