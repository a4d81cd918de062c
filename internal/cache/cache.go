package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reportwise-ai/reportwise/config"
)

// AnswerCache stores serialized answers in Redis with a TTL. Cache failures
// are logged and treated as misses; the engine never depends on the cache
// being available.
type AnswerCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.CacheConfig, logger *log.Logger) (*AnswerCache, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[CACHE] ", log.LstdFlags)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Addr(), err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &AnswerCache{rdb: rdb, ttl: ttl, logger: logger}, nil
}

// Get returns the cached value for key, or false on miss or error.
func (c *AnswerCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Printf("warn: cache get %s: %v", key, err)
		}
		return nil, false
	}
	return data, true
}

// Set stores value under key for the configured TTL. Errors are only logged.
func (c *AnswerCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.rdb.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Printf("warn: cache set %s: %v", key, err)
	}
}

// Close releases the Redis connection.
func (c *AnswerCache) Close() error { return c.rdb.Close() }
