// Package lock provides distributed locks backed by Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/tydee/tydee-pro/internal/marketplace"
)

var _ marketplace.Locker = (*RedisLocker)(nil)

type obtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// RedisLocker obtains marketplace locks through redislock.
type RedisLocker struct {
	client obtainer
}

// Connect parses a redis:// URL, verifies the server answers and returns a locker
// with the client it created. The caller closes the client.
func Connect(ctx context.Context, url string) (*RedisLocker, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return New(rdb), rdb, nil
}

// New wraps an existing Redis client.
func New(rdb redislock.RedisClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

// Obtain takes key for ttl without retrying. A key held by someone else yields
// marketplace.ErrLockHeld.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (marketplace.Lock, error) {
	held, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, marketplace.ErrLockHeld
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	return redisLock{held}, nil
}

type redisLock struct {
	*redislock.Lock
}

// Release frees the lock. A lock that already expired is not an error.
func (l redisLock) Release(ctx context.Context) error {
	if err := l.Lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return err
	}
	return nil
}
