package config

import (
	"context"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	DefaultFeedURL = "https://uk-x-gov-software-community.github.io/xgov-opensource-repo-scraper/repos.json"

	// DefaultStateFile is where the pipeline writes its exit snapshot
	DefaultStateFile = "/tmp/orchestrator-state.json"
)

// Config holds the application configuration
type Config struct {
	// Feed
	FeedSource  string // "http" or "github"
	FeedURL     string
	GitHubToken string
	GitHubOrgs  []string

	// Storage
	StorageType   string // "sqlite", "postgres" or "redis"
	SQLitePath    string
	PostgresURL   string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	CacheProxyURL string

	// Object store
	ObjectStore    string // "gcs" or "local"
	GCSBucket      string
	LocalObjectDir string

	// Summarizer
	Summarizer       string // "command" or "git"
	GitingestBin     string
	SummarizeTimeout time.Duration

	// Retry
	RetryDelays      []time.Duration
	RetryMaxAttempts int

	// Pipeline
	StateFile string

	// Logging
	LogLevel  string
	LogFormat string

	// API Server
	MetricsAddr string
	APIPort     string
	APIHost     string
}

// In is the raw environment shape decoded by envconfig
type In struct {
	FeedSource  string `env:"FEED_SOURCE, default=http"`
	FeedURL     string `env:"FEED_URL"`
	GitHubToken string `env:"GITHUB_TOKEN"`
	GitHubOrgs  string `env:"GITHUB_ORGS"`

	StorageType   string `env:"STORAGE_TYPE, default=sqlite"`
	SQLitePath    string `env:"SQLITE_PATH, default=./gitingest-cache.db"`
	PostgresURL   string `env:"POSTGRES_URL"`
	RedisAddress  string `env:"REDIS_ADDRESS, default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB, default=0"`
	CacheProxyURL string `env:"CACHE_PROXY_URL"`

	ObjectStore    string `env:"OBJECT_STORE, default=gcs"`
	GCSBucket      string `env:"GCS_BUCKET"`
	LocalObjectDir string `env:"LOCAL_OBJECT_DIR, default=./summaries"`

	Summarizer       string        `env:"SUMMARIZER, default=command"`
	GitingestBin     string        `env:"GITINGEST_BIN, default=gitingest"`
	SummarizeTimeout time.Duration `env:"SUMMARIZE_TIMEOUT, default=5m"`

	RetryDelays      []time.Duration `env:"RETRY_DELAYS, default=1s,2s,4s"`
	RetryMaxAttempts int             `env:"RETRY_MAX_ATTEMPTS, default=3"`

	StateFile string `env:"STATE_FILE"`

	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogFormat string `env:"LOG_FORMAT, default=json"`

	MetricsAddr string `env:"METRICS_ADDR"`
	APIPort     string `env:"API_PORT, default=8080"`
	APIHost     string `env:"API_HOST, default=localhost"`
}

// Load loads the configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith decodes the configuration from an arbitrary lookuper
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var input In

	c, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := envconfig.ProcessWith(c, &envconfig.Config{
		Target:   &input,
		Lookuper: lookuper,
	}); err != nil {
		return nil, &ConfigError{Field: "environment", Message: err.Error()}
	}

	if input.FeedURL == "" {
		input.FeedURL = DefaultFeedURL
	}
	if input.StateFile == "" {
		input.StateFile = DefaultStateFile
	}

	return &Config{
		FeedSource:       strings.ToLower(input.FeedSource),
		FeedURL:          input.FeedURL,
		GitHubToken:      input.GitHubToken,
		GitHubOrgs:       splitList(input.GitHubOrgs),
		StorageType:      strings.ToLower(input.StorageType),
		SQLitePath:       input.SQLitePath,
		PostgresURL:      input.PostgresURL,
		RedisAddress:     input.RedisAddress,
		RedisPassword:    input.RedisPassword,
		RedisDB:          input.RedisDB,
		CacheProxyURL:    input.CacheProxyURL,
		ObjectStore:      strings.ToLower(input.ObjectStore),
		GCSBucket:        input.GCSBucket,
		LocalObjectDir:   input.LocalObjectDir,
		Summarizer:       strings.ToLower(input.Summarizer),
		GitingestBin:     input.GitingestBin,
		SummarizeTimeout: input.SummarizeTimeout,
		RetryDelays:      input.RetryDelays,
		RetryMaxAttempts: input.RetryMaxAttempts,
		StateFile:        input.StateFile,
		LogLevel:         input.LogLevel,
		LogFormat:        input.LogFormat,
		MetricsAddr:      input.MetricsAddr,
		APIPort:          input.APIPort,
		APIHost:          input.APIHost,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the settings needed to run the pipeline.
// Dry runs skip the object store checks because nothing is uploaded.
func (c *Config) Validate(dryRun bool) error {
	switch c.FeedSource {
	case "http":
		if c.FeedURL == "" {
			return &ConfigError{Field: "FEED_URL", Message: "feed URL is required when FEED_SOURCE is 'http'"}
		}
	case "github":
		if c.GitHubToken == "" {
			return &ConfigError{Field: "GITHUB_TOKEN", Message: "GitHub token is required when FEED_SOURCE is 'github'"}
		}
		if len(c.GitHubOrgs) == 0 {
			return &ConfigError{Field: "GITHUB_ORGS", Message: "at least one organization is required when FEED_SOURCE is 'github'"}
		}
	default:
		return &ConfigError{Field: "FEED_SOURCE", Message: "must be 'http' or 'github'"}
	}

	if err := c.ValidateStorage(); err != nil {
		return err
	}

	if c.Summarizer != "command" && c.Summarizer != "git" {
		return &ConfigError{Field: "SUMMARIZER", Message: "must be 'command' or 'git'"}
	}
	if c.SummarizeTimeout <= 0 {
		return &ConfigError{Field: "SUMMARIZE_TIMEOUT", Message: "must be positive"}
	}
	if c.RetryMaxAttempts < 1 {
		return &ConfigError{Field: "RETRY_MAX_ATTEMPTS", Message: "must be at least 1"}
	}
	for _, d := range c.RetryDelays {
		if d < 0 {
			return &ConfigError{Field: "RETRY_DELAYS", Message: "delays must not be negative"}
		}
	}

	if dryRun {
		return nil
	}
	switch c.ObjectStore {
	case "gcs":
		if c.GCSBucket == "" {
			return &ConfigError{Field: "GCS_BUCKET", Message: "bucket is required when OBJECT_STORE is 'gcs'"}
		}
	case "local":
		if c.LocalObjectDir == "" {
			return &ConfigError{Field: "LOCAL_OBJECT_DIR", Message: "directory is required when OBJECT_STORE is 'local'"}
		}
	default:
		return &ConfigError{Field: "OBJECT_STORE", Message: "must be 'gcs' or 'local'"}
	}
	return nil
}

// ValidateStorage validates the cache and run store settings only
func (c *Config) ValidateStorage() error {
	switch c.StorageType {
	case "sqlite":
		if c.SQLitePath == "" {
			return &ConfigError{Field: "SQLITE_PATH", Message: "SQLite path is required when STORAGE_TYPE is 'sqlite'"}
		}
	case "postgres":
		if c.PostgresURL == "" {
			return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
		}
	case "redis":
		if c.RedisAddress == "" {
			return &ConfigError{Field: "REDIS_ADDRESS", Message: "Redis address is required when STORAGE_TYPE is 'redis'"}
		}
	default:
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite', 'postgres' or 'redis'"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
