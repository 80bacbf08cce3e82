package ratelimit

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	l := NewMemoryLimiter("test:", 3, time.Minute)
	now := time.Date(2024, 1, 1, 10, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "hit %d should be allowed", i)
		assert.Equal(t, int64(3-i), res.Remaining)
	}

	res, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Equal(t, 50*time.Second, res.RetryAfter)

	other, err := l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	now = now.Add(time.Minute)
	res, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Result, error) {
	return Result{}, errors.New("redis: connection refused")
}

func TestService_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("unlimited scope", func(t *testing.T) {
		svc := NewService(nil, true, zap.NewNop())
		res, err := svc.Check(ctx, ScopeLogin, "ip")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("scopes are independent", func(t *testing.T) {
		svc := NewService(map[Scope]Limiter{
			ScopeLogin:          NewMemoryLimiter("", 1, time.Minute),
			ScopeForgotPassword: NewMemoryLimiter("", 1, time.Minute),
		}, true, zap.NewNop())

		res, _ := svc.Check(ctx, ScopeLogin, "ip")
		assert.True(t, res.Allowed)
		res, _ = svc.Check(ctx, ScopeLogin, "ip")
		assert.False(t, res.Allowed)
		res, _ = svc.Check(ctx, ScopeForgotPassword, "ip")
		assert.True(t, res.Allowed)
	})

	t.Run("fail open", func(t *testing.T) {
		svc := NewService(map[Scope]Limiter{ScopeLogin: failingLimiter{}}, true, zap.NewNop())
		res, err := svc.Check(ctx, ScopeLogin, "ip")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("fail closed", func(t *testing.T) {
		svc := NewService(map[Scope]Limiter{ScopeLogin: failingLimiter{}}, false, zap.NewNop())
		_, err := svc.Check(ctx, ScopeLogin, "ip")
		assert.Error(t, err)
	})
}

func TestWindowKey(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 42, 0, time.UTC)
	assert.Equal(t, "rl:a_b:1704103200", windowKey("rl:", "a b", time.Minute, now))
}

// Integration test (requires Redis)

func setupTestRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Redis integration tests require REDIS_ADDR")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLimiter_Integration(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	l := NewRedisLimiter(client, "test:rl:", 2, time.Minute)
	key := "it-" + time.Now().Format(time.RFC3339Nano)

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestRedisLimiter_CounterAlwaysExpires(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	l := NewRedisLimiter(client, "test:rl:", 5, time.Minute)
	key := "ttl-" + time.Now().Format(time.RFC3339Nano)
	redisKey := windowKey("test:rl:", key, time.Minute, time.Now())

	// A counter left without a TTL gets one on the next hit.
	require.NoError(t, client.Set(ctx, redisKey, 3, 0).Err())
	t.Cleanup(func() { client.Del(ctx, redisKey) })

	res, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.CurrentHits)

	ttl, err := client.TTL(ctx, redisKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}
