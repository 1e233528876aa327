package domain

import "time"

// RunStatus is the lifecycle status of a pipeline run
type RunStatus string

const (
	RunInProgress  RunStatus = "in_progress"
	RunCompleted   RunStatus = "completed"
	RunInterrupted RunStatus = "interrupted"
	RunFailed      RunStatus = "failed"
)

// Run is the persisted history record of one pipeline process
type Run struct {
	ID            string     `json:"id"`
	BatchSize     int        `json:"batch_size"`
	Offset        int        `json:"offset"`
	DryRun        bool       `json:"dry_run"`
	Status        RunStatus  `json:"status"`
	Assigned      int        `json:"assigned"`
	CacheHits     int        `json:"cache_hits"`
	Successful    int        `json:"successful"`
	Failed        int        `json:"failed"`
	BytesUploaded int64      `json:"bytes_uploaded"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// PipelineState is the diagnostic snapshot written when the process exits
type PipelineState struct {
	ReposProcessed int       `json:"repos_processed"`
	BatchSize      int       `json:"batch_size"`
	Offset         int       `json:"offset"`
	Timestamp      time.Time `json:"timestamp"`
}
