package domain

import "context"

// RateLimiter throttles outbound venue requests. Wait blocks until one more
// request under key is allowed or ctx is done.
type RateLimiter interface {
	Wait(ctx context.Context, key string) error
}
