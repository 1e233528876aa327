package summarizer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/kurihiro0119/gitingest-pipeline/internal/errors"
	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
)

// DefaultTimeout bounds one repository, retries included
const DefaultTimeout = 5 * time.Minute

// Worker runs a Summarizer with a timeout, retries and truncation
type Worker struct {
	summarizer Summarizer
	retrier    *retry.Retrier
	timeout    time.Duration
	logger     *zap.Logger
}

func NewWorker(s Summarizer, retrier *retry.Retrier, timeout time.Duration, logger *zap.Logger) *Worker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		summarizer: s,
		retrier:    retrier,
		timeout:    timeout,
		logger:     logger.Named("summarizer"),
	}
}

// Process summarizes repoURL.
//
// Errors are SUMMARIZATION_TIMEOUT when the timeout elapsed (never retried),
// SUMMARIZATION_FAILED after the retries are exhausted, or the bare context
// error when ctx itself was cancelled.
func (w *Worker) Process(ctx context.Context, repoURL string) (Result, error) {
	clock := w.retrier.Clock()
	start := clock.Now()

	tctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	text, err := retry.DoValue(tctx, w.retrier, func(c context.Context) (string, error) {
		return w.summarizer.Summarize(c, repoURL)
	})
	duration := clock.Now().Sub(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			w.logger.Error("summarization timed out",
				zap.String("repo_url", repoURL),
				zap.Duration("timeout", w.timeout),
			)
			return Result{}, apperrors.NewTimeoutError(repoURL, err)
		}
		w.logger.Error("summarization failed",
			zap.String("repo_url", repoURL),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return Result{}, apperrors.NewSummarizationError(repoURL, err)
	}

	summary, truncated := Truncate(text)
	if truncated {
		w.logger.Warn("summary truncated",
			zap.String("repo_url", repoURL),
			zap.Int("original_bytes", len(text)),
			zap.Int("truncated_bytes", MaxSummaryBytes),
		)
	}

	w.logger.Debug("summary generated",
		zap.String("repo_url", repoURL),
		zap.Duration("duration", duration),
		zap.Int("summary_bytes", len(summary)),
	)

	return Result{
		Summary:       summary,
		Truncated:     truncated,
		OriginalBytes: len(text),
		Duration:      duration,
	}, nil
}
