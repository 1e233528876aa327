package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		batch_size INTEGER NOT NULL,
		batch_offset INTEGER NOT NULL,
		dry_run INTEGER NOT NULL,
		status TEXT NOT NULL,
		assigned INTEGER NOT NULL DEFAULT 0,
		cache_hits INTEGER NOT NULL DEFAULT 0,
		successful INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		bytes_uploaded INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// GetCacheEntry returns the raw cache value stored under key
func (s *sqliteStorage) GetCacheEntry(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM cache_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// PutCacheEntry stores value under key, replacing any previous value
func (s *sqliteStorage) PutCacheEntry(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_entries (key, value, updated_at)
		VALUES (?, ?, ?)
	`, key, string(value), time.Now().UTC())
	return err
}

// SaveRun inserts or updates a run record
func (s *sqliteStorage) SaveRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, batch_size, batch_offset, dry_run, status, assigned, cache_hits, successful, failed, bytes_uploaded, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
func (s *sqliteStorage) GetRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_size, batch_offset, dry_run, status, assigned, cache_hits, successful, failed, bytes_uploaded, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
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
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}
