// Package upload stores summaries in the object store under a stable key.
package upload

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/kurihiro0119/gitingest-pipeline/internal/errors"
	"github.com/kurihiro0119/gitingest-pipeline/internal/objectstore"
	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
)

const (
	ContentType = "text/plain"

	// DefaultUploadTimeout bounds one upload, retries included
	DefaultUploadTimeout = 5 * time.Minute
)

// Metadata is attached to every summary object
type Metadata struct {
	PushedAt    time.Time
	URL         string
	ProcessedAt time.Time
}

func (m Metadata) toMap() map[string]string {
	out := map[string]string{"url": m.URL}
	if !m.PushedAt.IsZero() {
		out["pushedAt"] = m.PushedAt.UTC().Format(time.RFC3339)
	}
	if !m.ProcessedAt.IsZero() {
		out["processedAt"] = m.ProcessedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// Stats are cumulative for one Uploader
type Stats struct {
	Uploaded   int   `json:"uploaded"`
	Failed     int   `json:"failed"`
	TotalBytes int64 `json:"total_bytes"`
}

// Uploader writes summaries with retry and keeps upload counters
type Uploader struct {
	store   objectstore.Store
	retrier *retry.Retrier
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	stats Stats
}

func NewUploader(store objectstore.Store, retrier *retry.Retrier, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		store:   store,
		retrier: retrier,
		timeout: DefaultUploadTimeout,
		logger:  logger.Named("upload"),
	}
}

// ObjectKey returns the object path for a repository summary
func ObjectKey(org, repo string) string {
	return "gitingest/" + org + "/" + repo + "/summary.txt"
}

// Upload writes content for org/repo and returns the number of bytes stored.
//
// A started upload is not interrupted by cancellation of ctx; it runs until
// it succeeds, exhausts its retries, or hits the upload timeout.
func (u *Uploader) Upload(ctx context.Context, org, repo, content string, meta Metadata) (int, error) {
	key := ObjectKey(org, repo)
	obj := objectstore.Object{
		Key:         key,
		ContentType: ContentType,
		Body:        []byte(content),
		Metadata:    meta.toMap(),
	}

	uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.timeout)
	defer cancel()

	err := u.retrier.Do(uploadCtx, func(ctx context.Context) error {
		return u.store.Put(ctx, obj)
	})
	if err != nil {
		u.mu.Lock()
		u.stats.Failed++
		u.mu.Unlock()

		u.logger.Error("upload failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return 0, apperrors.NewUploadError(key, err)
	}

	size := len(obj.Body)
	u.mu.Lock()
	u.stats.Uploaded++
	u.stats.TotalBytes += int64(size)
	u.mu.Unlock()

	u.logger.Debug("uploaded summary",
		zap.String("key", key),
		zap.Int("bytes", size),
	)
	return size, nil
}

// Stats returns a snapshot of the counters
func (u *Uploader) Stats() Stats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats
}
