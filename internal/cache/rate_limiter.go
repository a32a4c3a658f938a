package cache

import (
	"context"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter shared by every server instance.
type RateLimiter struct {
	client *redisv9.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(client *redisv9.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

// Allow counts one hit for subject. When the limit is exceeded it reports how
// long until the current window ends. A non-positive limit disables limiting.
func (l *RateLimiter) Allow(ctx context.Context, subject string) (bool, time.Duration, error) {
	if l.limit <= 0 {
		return true, 0, nil
	}
	now := l.now()
	windowStart := now.Truncate(l.window)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", l.prefix, subject, windowStart.Unix())

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("redis incr rate limit failed: %w", err)
	}
	count := incr.Val()
	if count > l.limit {
		return false, windowStart.Add(l.window).Sub(now), nil
	}
	return true, 0, nil
}
