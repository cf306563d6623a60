// redis.go -- go-redis client for caching extraction responses.
//
// The add-on channel is at-least-once: the same email can be submitted
// twice (retries, user double-tap). Caching the model's parsed output
// keyed by content hash means the second delivery skips the model call.
// If Redis is unavailable or not configured, every call goes to the model.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// extractionTTL bounds how long a cached model response lives.
// Long enough to cover retry bursts, short enough that a re-sent email
// months later gets fresh extraction.
const extractionTTL = 24 * time.Hour

// RedisCache wraps a Redis client for extraction-response cache operations.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache connects to Redis and returns a ready-to-use cache.
// It pings Redis to verify connectivity before returning.
// Call once at startup from main.go...returned cache is safe for concurrent use.
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	// Parse redisURL to get option values, if err return it
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Try and test client to ensure it works correctly
	err = rdb.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return &RedisCache{rdb}, nil
}

// Close shuts down the Redis client and releases all resources.
// Should be called via defer in main.go after creating the cache.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// SetExtraction caches a marshaled extraction result under the content hash.
func (c *RedisCache) SetExtraction(ctx context.Context, contentHash string, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling extraction: %w", err)
	}
	if err := c.rdb.Set(ctx, "extraction:"+contentHash, raw, extractionTTL).Err(); err != nil {
		return fmt.Errorf("caching extraction: %w", err)
	}
	return nil
}

// GetExtraction retrieves a cached extraction result into out.
// Returns ErrCacheMiss when the hash has not been seen (or expired).
func (c *RedisCache) GetExtraction(ctx context.Context, contentHash string, out any) error {
	raw, err := c.rdb.Get(ctx, "extraction:"+contentHash).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("fetching extraction: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("parsing cached extraction: %w", err)
	}
	return nil
}

// NoopCache satisfies the extraction cache interface when REDIS_URL is unset.
// Every Get is a miss; every Set succeeds silently.
type NoopCache struct{}

// GetExtraction always reports ErrCacheDisabled so callers can tell
// "not configured" apart from a genuine miss in logs.
func (NoopCache) GetExtraction(ctx context.Context, contentHash string, out any) error {
	return ErrCacheDisabled
}

// SetExtraction discards the value.
func (NoopCache) SetExtraction(ctx context.Context, contentHash string, result any) error {
	return nil
}
