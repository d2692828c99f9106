package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const hashKeyPrefix = "content:hash:"

// HashCache remembers the fingerprint of the last stored record per
// canonical URL hash.
type HashCache interface {
	Get(ctx context.Context, urlHash string) (string, bool, error)
	Set(ctx context.Context, urlHash, digest string) error
}

// RedisHashCache keeps record fingerprints in Redis with a TTL.
type RedisHashCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisHashCache creates a hash cache. A zero ttl keeps keys forever.
func NewRedisHashCache(client *redis.Client, ttl time.Duration) *RedisHashCache {
	return &RedisHashCache{client: client, ttl: ttl}
}

func (c *RedisHashCache) Get(ctx context.Context, urlHash string) (string, bool, error) {
	v, err := c.client.Get(ctx, hashKeyPrefix+urlHash).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get content hash: %w", err)
	}
	return v, true, nil
}

func (c *RedisHashCache) Set(ctx context.Context, urlHash, digest string) error {
	if err := c.client.Set(ctx, hashKeyPrefix+urlHash, digest, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set content hash: %w", err)
	}
	return nil
}
