package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const minRateLimitWindow = time.Second

// RateLimitDecision is the outcome of counting one request against a limit.
type RateLimitDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter counts requests per scope and subject within a window.
type RateLimiter interface {
	Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateLimitDecision, error)
}

// NoopRateLimiter never limits. Used when Redis is not configured.
type NoopRateLimiter struct{}

func (NoopRateLimiter) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateLimitDecision, error) {
	return RateLimitDecision{Allowed: true, Remaining: limit}, nil
}

// RedisRateLimiter keeps a sliding window log per key in a Redis sorted set.
// Every request is logged, rejected ones included, so a client that keeps
// retrying stays blocked until it backs off for a full window.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "autolytiq:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateLimitDecision, error) {
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if r == nil || r.client == nil || limit <= 0 || scope == "" || subject == "" {
		return RateLimitDecision{Allowed: true, Remaining: limit}, nil
	}
	if window < minRateLimitWindow {
		window = minRateLimitWindow
	}

	now := r.now()
	key := r.key(scope, subject)
	var count *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
		count = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		pipe.PExpire(ctx, key, window)
		return nil
	})
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	return decideRateLimit(count.Val(), oldest.Val(), limit, window, now), nil
}

func (r *RedisRateLimiter) key(scope, subject string) string {
	return r.prefix + ":" + scope + ":" + subject
}

// decideRateLimit turns the logged request count into a decision. A rejected
// client may retry once the oldest logged request leaves the window.
func decideRateLimit(count int64, oldest []redis.Z, limit int, window time.Duration, now time.Time) RateLimitDecision {
	if remaining := limit - int(count); remaining >= 0 {
		return RateLimitDecision{Allowed: true, Remaining: remaining}
	}

	retryAfter := window
	if len(oldest) > 0 {
		retryAfter = time.UnixMilli(int64(oldest[0].Score)).Add(window).Sub(now)
	}
	if retryAfter < minRateLimitWindow {
		retryAfter = minRateLimitWindow
	}
	return RateLimitDecision{RetryAfter: retryAfter}
}
