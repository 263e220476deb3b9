package ratelimit

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window counter on Redis, keyed per client IP. It
// blunts brute-force probing of personal numbers on the initiation
// endpoint.
type Limiter struct {
	client *goredis.Client
	prefix string
	limit  int64
	window time.Duration
}

func New(client *goredis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{
		client: client,
		prefix: "ratelimit:",
		limit:  int64(limit),
		window: window,
	}
}

// Allow counts one hit for key and reports whether it is still within
// the window's limit.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key

	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, err
		}
	}

	return n <= l.limit, nil
}
