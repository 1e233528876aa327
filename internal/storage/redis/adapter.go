package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage"
)

const runsIndexKey = "runs:index"

// Options configures the Redis connection
type Options struct {
	Address  string
	Password string
	DB       int
}

// redisStorage implements the Storage interface on top of Redis.
// Cache entries are stored as plain string values under their cache key.
type redisStorage struct {
	client *redis.Client
}

// NewRedisStorage connects to Redis and verifies the connection
func NewRedisStorage(opts Options) (storage.Storage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewFromClient(client), nil
}

// NewFromClient wraps an existing client
func NewFromClient(client *redis.Client) storage.Storage {
	return &redisStorage{client: client}
}

// Migrate is a no-op; Redis is schemaless
func (r *redisStorage) Migrate(ctx context.Context) error {
	return nil
}

func (r *redisStorage) GetCacheEntry(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (r *redisStorage) PutCacheEntry(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *redisStorage) SaveRun(ctx context.Context, run *domain.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, runKey(run.ID), data, 0)
	pipe.ZAdd(ctx, runsIndexKey, redis.Z{
		Score:  float64(run.StartedAt.UnixNano()),
		Member: run.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisStorage) GetRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	ids, err := r.client.ZRevRange(ctx, runsIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*domain.Run{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = runKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	runs := make([]*domain.Run, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// evicted
			continue
		}
		var run domain.Run
		if err := json.Unmarshal([]byte(s), &run); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

func (r *redisStorage) Close() error {
	return r.client.Close()
}

func runKey(id string) string { return fmt.Sprintf("run:%s", id) }
