package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tydee/tydee-pro/internal/marketplace"
)

type stubObtainer struct {
	err  error
	keys []string
}

func (s *stubObtainer) Obtain(_ context.Context, key string, _ time.Duration, _ *redislock.Options) (*redislock.Lock, error) {
	s.keys = append(s.keys, key)
	if s.err != nil {
		return nil, s.err
	}
	return &redislock.Lock{}, nil
}

func TestObtain_NotObtainedMapsToLockHeld(t *testing.T) {
	l := &RedisLocker{client: &stubObtainer{err: redislock.ErrNotObtained}}

	_, err := l.Obtain(context.Background(), marketplace.SweepLockKey, time.Minute)
	assert.ErrorIs(t, err, marketplace.ErrLockHeld)
}

func TestObtain_OtherErrorsWrapped(t *testing.T) {
	boom := errors.New("connection refused")
	l := &RedisLocker{client: &stubObtainer{err: boom}}

	_, err := l.Obtain(context.Background(), "k", time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, marketplace.ErrLockHeld)
}

func TestObtain_PassesKey(t *testing.T) {
	stub := &stubObtainer{}
	l := &RedisLocker{client: stub}

	held, err := l.Obtain(context.Background(), "lock:test", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, held)
	assert.Equal(t, []string{"lock:test"}, stub.keys)
}

func TestConnect_InvalidURL(t *testing.T) {
	_, _, err := Connect(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestRedisLocker_Live(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set, skipping redis test")
	}
	ctx := context.Background()

	locker, rdb, err := Connect(ctx, url)
	require.NoError(t, err)
	defer rdb.Close()

	key := "lock:test:" + time.Now().Format(time.RFC3339Nano)
	first, err := locker.Obtain(ctx, key, 5*time.Second)
	require.NoError(t, err)

	_, err = locker.Obtain(ctx, key, 5*time.Second)
	assert.ErrorIs(t, err, marketplace.ErrLockHeld)

	require.NoError(t, first.Release(ctx))
	second, err := locker.Obtain(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
	require.NoError(t, second.Release(ctx), "double release is tolerated")
}
