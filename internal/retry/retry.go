// Package retry runs operations with a fixed backoff schedule.
package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Policy describes how many times an operation is attempted and how long to
// wait before each retry. The wait before retry i (0-based) is
// Delays[min(i, len(Delays)-1)].
type Policy struct {
	MaxAttempts int
	Delays      []time.Duration
}

// DefaultPolicy is 3 attempts with 1s, 2s and 4s backoff
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Delays:      []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// Delay returns the wait before the retry following the given failed attempt
// (0-based)
func (p Policy) Delay(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if attempt >= len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[attempt]
}

// Clock abstracts time for backoff waits
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns a Clock backed by the time package
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retrier runs operations under a policy
type Retrier struct {
	policy Policy
	clock  Clock
	logger *zap.Logger
}

// New creates a Retrier. A nil clock uses the real clock and a nil logger
// discards retry logs.
func New(policy Policy, clock Clock, logger *zap.Logger) *Retrier {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrier{policy: policy, clock: clock, logger: logger}
}

// Policy returns the retrier's policy
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Clock returns the clock used for backoff waits
func (r *Retrier) Clock() Clock {
	return r.clock
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// exhausted, or ctx is done. The last error is returned unwrapped from
// Permanent.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value
func DoValue[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		var p *permanentError
		if errors.As(err, &p) {
			return zero, p.err
		}
		if attempt == r.policy.MaxAttempts-1 {
			break
		}

		delay := r.policy.Delay(attempt)
		r.logger.Warn("retrying after failure",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := r.clock.Sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}
