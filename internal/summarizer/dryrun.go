package summarizer

import (
	"context"
	"fmt"
	"time"

	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
)

// DryRunSummarizer simulates work without touching the network
type DryRunSummarizer struct {
	Delay time.Duration
	Clock retry.Clock
}

func NewDryRunSummarizer(delay time.Duration, clock retry.Clock) *DryRunSummarizer {
	if clock == nil {
		clock = retry.RealClock()
	}
	return &DryRunSummarizer{Delay: delay, Clock: clock}
}

func (s *DryRunSummarizer) Summarize(ctx context.Context, repoURL string) (string, error) {
	if err := s.Clock.Sleep(ctx, s.Delay); err != nil {
		return "", err
	}
	return fmt.Sprintf("Repository: %s\n\n[dry run: summary not generated]\n", repoURL), nil
}
