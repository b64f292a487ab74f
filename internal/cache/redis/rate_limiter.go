package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/zcesur/crypto-arb/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// minWait bounds how often a blocked Wait goes back to Redis.
const minWait = 10 * time.Millisecond

// RateLimiter is a request budget shared by every process talking to the
// same venue with the same API key. It keeps a sliding window of request
// timestamps per key in a sorted set and admits requests atomically in Lua.
type RateLimiter struct {
	c      *Client
	script *redis.Script
	limit  int
	window time.Duration
}

// NewRateLimiter allows limit requests per window for every key.
func NewRateLimiter(c *Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		c:      c,
		script: redis.NewScript(slidingWindowLua),
		limit:  limit,
		window: window,
	}
}

// reserve tries to admit one request under key. When the window is full it
// returns how long until the oldest request in it expires.
func (rl *RateLimiter) reserve(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := rl.script.Run(ctx, rl.c.rdb,
		[]string{rl.c.key("ratelimit", key)},
		time.Now().UnixMicro(),
		rl.window.Microseconds(),
		rl.limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("redis: rate limit %s: unexpected reply %v", key, res)
	}
	return res[0] == 1, time.Duration(res[1]) * time.Microsecond, nil
}

// Wait blocks until key has room in its window, then counts the request.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		ok, wait, err := rl.reserve(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		wait = max(wait, minWait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
