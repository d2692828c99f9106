package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

// Release gives a held guard back.
type Release func()

// Guard provides per-source mutual exclusion across jobs. TryAcquire never
// waits: a held key yields domain.ErrSourceBusy.
type Guard interface {
	TryAcquire(ctx context.Context, key string) (Release, error)
}

// MemoryGuard serializes crawls within one process.
type MemoryGuard struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMemoryGuard returns an empty guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{locks: make(map[string]*sync.Mutex)}
}

func (g *MemoryGuard) TryAcquire(_ context.Context, key string) (Release, error) {
	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	g.mu.Unlock()

	if !l.TryLock() {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceBusy, key)
	}
	var once sync.Once
	return func() { once.Do(l.Unlock) }, nil
}

const (
	guardKeyPrefix = "content-crawler:source-lock:"
	releaseTimeout = 5 * time.Second
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisGuard serializes crawls across instances sharing one Redis. A holder
// that dies leaves the key to expire after ttl.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard returns a guard whose locks expire after ttl.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) TryAcquire(ctx context.Context, key string) (Release, error) {
	redisKey := guardKeyPrefix + key
	token := uuid.New().String()

	ok, err := g.client.SetNX(ctx, redisKey, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire source lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceBusy, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The job context may already be cancelled when releasing.
			releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, g.client, []string{redisKey}, token).Err()
		})
	}, nil
}
