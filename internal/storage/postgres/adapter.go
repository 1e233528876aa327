package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := NewFromDB(db)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// NewFromDB wraps an already opened connection without running migrations
func NewFromDB(db *sql.DB) storage.Storage {
	return &postgresStorage{db: db}
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value JSONB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		batch_size INTEGER NOT NULL,
		batch_offset INTEGER NOT NULL,
		dry_run BOOLEAN NOT NULL,
		status TEXT NOT NULL,
		assigned INTEGER NOT NULL DEFAULT 0,
		cache_hits INTEGER NOT NULL DEFAULT 0,
		successful INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		bytes_uploaded BIGINT NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// GetCacheEntry returns the raw cache value stored under key.
// The value is read back as text so malformed documents reach the caller untouched.
func (s *postgresStorage) GetCacheEntry(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value::text FROM cache_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// PutCacheEntry upserts value under key
func (s *postgresStorage) PutCacheEntry(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, key, string(value), time.Now().UTC())
	return err
}

// SaveRun inserts or updates a run record
func (s *postgresStorage) SaveRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, batch_size, batch_offset, dry_run, status, assigned, cache_hits, successful, failed, bytes_uploaded, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			assigned = EXCLUDED.assigned,
			cache_hits = EXCLUDED.cache_hits,
			successful = EXCLUDED.successful,
			failed = EXCLUDED.failed,
			bytes_uploaded = EXCLUDED.bytes_uploaded,
			finished_at = EXCLUDED.finished_at
	`,
		run.ID,
		run.BatchSize,
		run.Offset,
		run.DryRun,
		string(run.Status),
		run.Assigned,
		run.CacheHits,
		run.Successful,
		run.Failed,
		run.BytesUploaded,
		run.StartedAt,
		run.FinishedAt,
	)
	return err
}

// GetRuns returns the most recent runs, newest first
func (s *postgresStorage) GetRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_size, batch_offset, dry_run, status, assigned, cache_hits, successful, failed, bytes_uploaded, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run := &domain.Run{}
		var status string
		var finishedAt sql.NullTime
		if err := rows.Scan(
			&run.ID,
			&run.BatchSize,
			&run.Offset,
			&run.DryRun,
			&status,
			&run.Assigned,
			&run.CacheHits,
			&run.Successful,
			&run.Failed,
			&run.BytesUploaded,
			&run.StartedAt,
			&finishedAt,
		); err != nil {
			return nil, err
		}
		run.Status = domain.RunStatus(status)
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}
