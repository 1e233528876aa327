// Package pipeline drives one worker's share of the repository feed through
// the cache gate, the summarizer and the uploader.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kurihiro0119/gitingest-pipeline/internal/aggregator"
	"github.com/kurihiro0119/gitingest-pipeline/internal/cache"
	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	apperrors "github.com/kurihiro0119/gitingest-pipeline/internal/errors"
	"github.com/kurihiro0119/gitingest-pipeline/internal/feed"
	"github.com/kurihiro0119/gitingest-pipeline/internal/partition"
	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage"
	"github.com/kurihiro0119/gitingest-pipeline/internal/summarizer"
	"github.com/kurihiro0119/gitingest-pipeline/internal/upload"
)

// Deps are the collaborators of a pipeline. Runs and Metrics are optional.
type Deps struct {
	Fetcher  feed.Fetcher
	Gate     *cache.Gate
	Worker   *summarizer.Worker
	Uploader *upload.Uploader
	Runs     storage.RunStore
	Metrics  *aggregator.Metrics
	Clock    retry.Clock
	Logger   *zap.Logger
}

// Options select this worker's share and how it is processed
type Options struct {
	BatchSize     int
	Offset        int
	Limit         int
	DryRun        bool
	Concurrency   int
	ProgressEvery int
	StateFile     string
}

// Summary is the result of a run that was not aborted by a fatal error
type Summary struct {
	RunID       string
	Assigned    int
	Interrupted bool
	Final       aggregator.FinalSummary
	Stats       aggregator.Snapshot
	Upload      upload.Stats
	Cache       cache.Stats
}

type Pipeline struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Pipeline {
	if deps.Clock == nil {
		deps.Clock = retry.RealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = aggregator.DefaultProgressEvery
	}
	return &Pipeline{deps: deps, opts: opts}
}

// Run processes the assigned repositories until done or ctx is cancelled.
//
// Invalid batch configuration and feed failures are returned as errors.
// Per-repository failures are recorded and never stop the run. A cancelled
// ctx ends the run early without an error; the repository in flight at that
// moment is abandoned and not recorded. The state file is written on every
// return path.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	logger := p.deps.Logger.With(
		zap.Int("batch_size", p.opts.BatchSize),
		zap.Int("offset", p.opts.Offset),
	)

	if err := partition.Validate(p.opts.BatchSize, p.opts.Offset); err != nil {
		logger.Error("invalid batch configuration", zap.Error(err))
		return nil, err
	}

	run := &domain.Run{
		ID:        uuid.New().String(),
		BatchSize: p.opts.BatchSize,
		Offset:    p.opts.Offset,
		DryRun:    p.opts.DryRun,
		Status:    domain.RunInProgress,
		StartedAt: p.deps.Clock.Now().UTC(),
	}
	logger = logger.With(zap.String("run_id", run.ID))
	p.saveRun(ctx, logger, run)

	var handled atomic.Int64
	defer func() { p.writeState(logger, int(handled.Load())) }()

	logger.Info("pipeline starting",
		zap.Bool("dry_run", p.opts.DryRun),
		zap.Int("limit", p.opts.Limit),
		zap.Int("concurrency", p.opts.Concurrency),
	)

	repos, err := p.deps.Fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("shutdown requested while fetching feed")
			p.finishRun(ctx, logger, run, domain.RunInterrupted, aggregator.Snapshot{})
			return &Summary{RunID: run.ID, Interrupted: true}, nil
		}
		logger.Error("feed fetch failed", zap.Error(err))
		p.finishRun(ctx, logger, run, domain.RunFailed, aggregator.Snapshot{})
		return nil, err
	}

	assigned, err := partition.Select(repos, p.opts.BatchSize, p.opts.Offset)
	if err != nil {
		p.finishRun(ctx, logger, run, domain.RunFailed, aggregator.Snapshot{})
		return nil, err
	}
	assigned = partition.Limit(assigned, p.opts.Limit)
	run.Assigned = len(assigned)

	logger.Info("batch assigned",
		zap.Int("total_repos", len(repos)),
		zap.Int("assigned", len(assigned)),
	)

	stats := aggregator.NewProcessingStats(len(assigned))
	reporter := aggregator.NewReporter(p.deps.Logger, p.deps.Clock, p.opts.ProgressEvery, p.opts.BatchSize, p.opts.Offset)

	record := func(o domain.Outcome) {
		handled.Add(1)
		if p.deps.Metrics != nil {
			p.deps.Metrics.Observe(o)
		}
		reporter.Observe(stats.Record(o))
	}

	var interrupted bool
	if p.opts.Concurrency == 1 {
		interrupted = p.runSequential(ctx, logger, assigned, record)
	} else {
		interrupted, err = p.runPool(ctx, logger, assigned, record)
		if err != nil {
			p.finishRun(ctx, logger, run, domain.RunFailed, stats.Snapshot())
			return nil, err
		}
	}

	snap := stats.Snapshot()
	if interrupted {
		logger.Warn("shutdown requested, stopping before next repository",
			zap.Int("handled", snap.Handled),
			zap.Int("assigned", snap.Total),
		)
	}

	final := reporter.Final(snap)
	status := domain.RunCompleted
	if interrupted {
		status = domain.RunInterrupted
	}
	p.finishRun(ctx, logger, run, status, snap)

	return &Summary{
		RunID:       run.ID,
		Assigned:    len(assigned),
		Interrupted: interrupted,
		Final:       final,
		Stats:       snap,
		Upload:      p.deps.Uploader.Stats(),
		Cache:       p.deps.Gate.Stats(),
	}, nil
}

func (p *Pipeline) runSequential(ctx context.Context, logger *zap.Logger, repos []domain.Repository, record func(domain.Outcome)) bool {
	for i, repo := range repos {
		if ctx.Err() != nil {
			return true
		}
		outcome, ok := p.processRepository(ctx, logger, i, len(repos), repo)
		if !ok {
			return true
		}
		record(outcome)
	}
	return ctx.Err() != nil
}

func (p *Pipeline) runPool(ctx context.Context, logger *zap.Logger, repos []domain.Repository, record func(domain.Outcome)) (bool, error) {
	pool, err := ants.NewPool(p.opts.Concurrency, ants.WithOptions(ants.Options{
		Nonblocking: false,
		PanicHandler: func(v any) {
			logger.Error("repository task panicked", zap.Any("panic", v))
		},
	}))
	if err != nil {
		return false, apperrors.NewInternalError("failed to create worker pool", err)
	}
	defer pool.Release()

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		interrupted bool
	)
	markInterrupted := func() {
		mu.Lock()
		interrupted = true
		mu.Unlock()
	}

	for i, repo := range repos {
		i, repo := i, repo
		if ctx.Err() != nil {
			markInterrupted()
			break
		}

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				markInterrupted()
				return
			}
			outcome, ok := p.processRepository(ctx, logger, i, len(repos), repo)
			if !ok {
				markInterrupted()
				return
			}
			record(outcome)
		})
		if err != nil {
			wg.Done()
			if errors.Is(err, ants.ErrPoolClosed) {
				markInterrupted()
				break
			}
			wg.Wait()
			return false, apperrors.NewInternalError("failed to submit repository", err)
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return interrupted || ctx.Err() != nil, nil
}

// processRepository handles one repository. ok is false when ctx was
// cancelled mid-way and the repository must not be recorded. A panic is
// recovered and recorded as a summarization failure.
func (p *Pipeline) processRepository(ctx context.Context, logger *zap.Logger, index, total int, repo domain.Repository) (outcome domain.Outcome, ok bool) {
	defer func() {
		if v := recover(); v != nil {
			logger.Error("repository failed",
				zap.String("repo", repo.FullName()),
				zap.String("reason", string(domain.FailureSummarization)),
				zap.Any("panic", v),
				zap.Stack("stack"),
			)
			outcome = domain.Outcome{Repo: repo, FailureReason: domain.FailureSummarization}
			ok = true
		}
	}()
	return p.handleRepository(ctx, logger, index, total, repo)
}

func (p *Pipeline) handleRepository(ctx context.Context, logger *zap.Logger, index, total int, repo domain.Repository) (domain.Outcome, bool) {
	logger = logger.With(
		zap.String("repo", repo.FullName()),
		zap.String("repo_url", repo.URL),
	)

	check := p.deps.Gate.Check(ctx, repo)
	outcome := domain.Outcome{Repo: repo, CacheReason: check.Reason}
	if !check.NeedsProcessing {
		outcome.Skipped = true
		logger.Debug("cache hit, skipping")
		return outcome, true
	}

	logger.Info("processing repository",
		zap.Int("index", index+1),
		zap.Int("assigned", total),
		zap.String("cache_reason", string(check.Reason)),
	)

	if repo.URL == "" || repo.Org == "" || repo.Name == "" {
		outcome.FailureReason = domain.FailureInvalidRecord
		logger.Warn("repository record cannot be processed")
		return outcome, true
	}

	start := p.deps.Clock.Now()
	result, err := p.deps.Worker.Process(ctx, repo.URL)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("abandoning repository on shutdown")
			return domain.Outcome{}, false
		}
		outcome.Duration = p.deps.Clock.Now().Sub(start)
		outcome.FailureReason = domain.FailureSummarization
		if apperrors.IsTimeout(err) {
			outcome.FailureReason = domain.FailureTimeout
		}
		logger.Error("repository failed",
			zap.String("reason", string(outcome.FailureReason)),
			zap.Duration("duration", outcome.Duration),
			zap.Error(err),
		)
		return outcome, true
	}
	outcome.Truncated = result.Truncated

	n, err := p.deps.Uploader.Upload(ctx, repo.Org, repo.Name, result.Summary, upload.Metadata{
		PushedAt:    repo.PushedAt,
		URL:         repo.URL,
		ProcessedAt: p.deps.Clock.Now().UTC(),
	})
	outcome.Duration = p.deps.Clock.Now().Sub(start)
	if err != nil {
		outcome.FailureReason = domain.FailureUpload
		logger.Error("repository failed",
			zap.String("reason", string(outcome.FailureReason)),
			zap.Duration("duration", outcome.Duration),
			zap.Error(err),
		)
		return outcome, true
	}

	outcome.Success = true
	outcome.BytesUploaded = n

	// the object is stored; record it even if shutdown started meanwhile
	if repo.PushedAt.IsZero() {
		logger.Warn("repository has no pushedAt, cache not updated")
	} else {
		p.deps.Gate.Update(context.WithoutCancel(ctx), repo)
	}

	logger.Info("repository processed",
		zap.Duration("duration", outcome.Duration),
		zap.Int("bytes", n),
		zap.Bool("truncated", outcome.Truncated),
	)
	return outcome, true
}

func (p *Pipeline) writeState(logger *zap.Logger, handled int) {
	if p.opts.StateFile == "" {
		return
	}
	state := domain.PipelineState{
		ReposProcessed: handled,
		BatchSize:      p.opts.BatchSize,
		Offset:         p.opts.Offset,
		Timestamp:      p.deps.Clock.Now().UTC(),
	}
	if err := WriteState(p.opts.StateFile, state); err != nil {
		logger.Error("failed to write state file",
			zap.String("state_file", p.opts.StateFile),
			zap.Error(err),
		)
		return
	}
	logger.Info("state saved",
		zap.String("state_file", p.opts.StateFile),
		zap.Int("repos_processed", state.ReposProcessed),
	)
}

func (p *Pipeline) saveRun(ctx context.Context, logger *zap.Logger, run *domain.Run) {
	if p.deps.Runs == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.deps.Runs.SaveRun(saveCtx, run); err != nil {
		logger.Warn("failed to save run record", zap.Error(err))
	}
}

func (p *Pipeline) finishRun(ctx context.Context, logger *zap.Logger, run *domain.Run, status domain.RunStatus, snap aggregator.Snapshot) {
	finished := p.deps.Clock.Now().UTC()
	run.Status = status
	run.FinishedAt = &finished
	run.CacheHits = snap.CacheHits
	run.Successful = snap.Successful
	run.Failed = snap.Failed
	run.BytesUploaded = snap.BytesUploaded
	p.saveRun(ctx, logger, run)
}
