package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// DefaultCacheTTL is how long a mirrored job status lives in Redis.
const DefaultCacheTTL = 24 * time.Hour

// RedisCache mirrors job records under job:<id>:status.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions holds connection settings for NewRedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

// StatusKey returns the Redis key holding a job's status.
func StatusKey(id uuid.UUID) string {
	return fmt.Sprintf("job:%s:status", id)
}

// Set stores job as JSON.
func (c *RedisCache) Set(ctx context.Context, job *types.AnalysisJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := c.client.Set(ctx, StatusKey(job.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache job %s: %w", job.ID, err)
	}
	return nil
}

// Get loads a job, returning nil, nil when the key is absent.
func (c *RedisCache) Get(ctx context.Context, id uuid.UUID) (*types.AnalysisJob, error) {
	data, err := c.client.Get(ctx, StatusKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached job %s: %w", id, err)
	}

	var job types.AnalysisJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached job: %w", err)
	}
	return &job, nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
