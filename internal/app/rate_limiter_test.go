package app

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestDecideRateLimit(t *testing.T) {
	now := time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC)
	loggedAt := func(ago time.Duration) []redis.Z {
		return []redis.Z{{Score: float64(now.Add(-ago).UnixMilli()), Member: "m"}}
	}

	tests := []struct {
		name          string
		count         int64
		oldest        []redis.Z
		wantAllowed   bool
		wantRemaining int
		wantRetry     time.Duration
	}{
		{"first request", 1, loggedAt(0), true, 4, 0},
		{"at limit", 5, loggedAt(10 * time.Second), true, 0, 0},
		{"over limit", 6, loggedAt(45 * time.Second), false, 0, 15 * time.Second},
		{"oldest about to expire", 6, loggedAt(time.Minute - 200*time.Millisecond), false, 0, time.Second},
		{"no oldest entry", 6, nil, false, 0, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decideRateLimit(tt.count, tt.oldest, 5, time.Minute, now)
			if got.Allowed != tt.wantAllowed || got.Remaining != tt.wantRemaining || got.RetryAfter != tt.wantRetry {
				t.Fatalf("expected allowed=%v remaining=%d retry=%s, got %+v", tt.wantAllowed, tt.wantRemaining, tt.wantRetry, got)
			}
		})
	}
}

func TestRedisRateLimiterSkipsWithoutClient(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, " custom:prefix: ")
	if limiter.prefix != "custom:prefix" {
		t.Fatalf("expected trimmed prefix, got %q", limiter.prefix)
	}
	if got := limiter.key("checkout", "1.2.3.4"); got != "custom:prefix:checkout:1.2.3.4" {
		t.Fatalf("unexpected key %q", got)
	}

	decision, err := limiter.Allow(context.Background(), "checkout", "1.2.3.4", 5, time.Minute)
	if err != nil || !decision.Allowed || decision.Remaining != 5 {
		t.Fatalf("expected an open decision without a client, got %+v %v", decision, err)
	}

	if NewRedisRateLimiter(nil, "").prefix != "autolytiq:rate_limit" {
		t.Fatal("expected the default prefix")
	}
}
