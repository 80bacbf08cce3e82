package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Scope names a family of limited requests
type Scope string

const (
	ScopeLogin          Scope = "login"
	ScopeForgotPassword Scope = "forgot_password"
)

// Result represents the result of a rate limit check
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

// Limiter counts hits for a key in fixed windows
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter is a fixed window limiter shared across instances (INCR + EXPIRE)
type RedisLimiter struct {
	client *redis.Client
	prefix string
	max    int64
	window time.Duration
}

// NewRedisLimiter creates a new Redis-backed limiter
func NewRedisLimiter(client *redis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		max:    int64(max),
		window: window,
	}
}

// Allow records a hit and reports whether it is within the limit
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	redisKey := windowKey(l.prefix, key, l.window, time.Now())

	// EXPIRE NX shares the INCR transaction; no counter is left without a TTL.
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, l.window)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit pipeline: %w", err)
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = l.window
	}

	return evaluate(incr.Val(), l.max, remaining, l.window), nil
}

// MemoryLimiter is a fixed window limiter local to one process
type MemoryLimiter struct {
	cache  *gocache.Cache
	prefix string
	max    int64
	window time.Duration
	now    func() time.Time
	mu     sync.Mutex
}

// NewMemoryLimiter creates a new in-process limiter
func NewMemoryLimiter(prefix string, max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		cache:  gocache.New(window, 2*window),
		prefix: prefix,
		max:    int64(max),
		window: window,
		now:    time.Now,
	}
}

// Allow records a hit and reports whether it is within the limit
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now()
	k := windowKey(l.prefix, key, l.window, now)
	ttl := now.Truncate(l.window).Add(l.window).Sub(now)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.cache.Add(k, int64(1), ttl); err == nil {
		return evaluate(1, l.max, ttl, l.window), nil
	}
	hits, err := l.cache.IncrementInt64(k, 1)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit counter: %w", err)
	}
	return evaluate(hits, l.max, ttl, l.window), nil
}

func windowKey(prefix, key string, window time.Duration, now time.Time) string {
	start := now.UTC().Truncate(window)
	return fmt.Sprintf("%s%s:%d", prefix, strings.ReplaceAll(key, " ", "_"), start.Unix())
}

func evaluate(hits, max int64, ttl, window time.Duration) Result {
	res := Result{
		Allowed:     hits <= max,
		Remaining:   max - hits,
		CurrentHits: hits,
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = ttl
		if res.RetryAfter <= 0 {
			res.RetryAfter = time.Duration(math.Ceil(window.Seconds())) * time.Second
		}
	}
	return res
}

// Service applies per-scope limiters
type Service struct {
	limiters map[Scope]Limiter
	failOpen bool
	logger   *zap.Logger
}

// NewService creates a new rate limit service. With failOpen set, backend
// errors allow the request and are logged.
func NewService(limiters map[Scope]Limiter, failOpen bool, logger *zap.Logger) *Service {
	return &Service{
		limiters: limiters,
		failOpen: failOpen,
		logger:   logger,
	}
}

// Check records a hit for key under scope. Scopes without a limiter are unlimited.
func (s *Service) Check(ctx context.Context, scope Scope, key string) (Result, error) {
	limiter, ok := s.limiters[scope]
	if !ok || limiter == nil {
		return Result{Allowed: true}, nil
	}

	res, err := limiter.Allow(ctx, string(scope)+":"+key)
	if err != nil {
		if s.failOpen {
			s.logger.Warn("rate limiter unavailable, allowing request",
				zap.String("scope", string(scope)),
				zap.Error(err))
			return Result{Allowed: true}, nil
		}
		return Result{}, err
	}
	return res, nil
}
