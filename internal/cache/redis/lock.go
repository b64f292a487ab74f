package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld is returned when another process holds the lease.
var ErrLeaseHeld = errors.New("redis: lease held by another process")

// ErrLeaseLost is the cause of a lease context cancelled because the lease
// could not be renewed.
var ErrLeaseLost = errors.New("redis: lease lost")

// releaseLua deletes a lease key only while it still carries the holder's
// token.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// renewLua resets the TTL of a lease key only while the holder owns it.
const renewLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager hands out exclusive leases so that one origin runs in at most
// one process at a time.
type LockManager struct {
	c       *Client
	release *redis.Script
	renew   *redis.Script
	logger  *slog.Logger
}

// NewLockManager creates a LockManager backed by c.
func NewLockManager(c *Client, logger *slog.Logger) *LockManager {
	return &LockManager{
		c:       c,
		release: redis.NewScript(releaseLua),
		renew:   redis.NewScript(renewLua),
		logger:  logger,
	}
}

// Hold takes the lease on name and renews it every ttl/3. The returned
// context is cancelled with cause ErrLeaseLost if a renewal finds the lease
// gone, or when ctx ends. Release stops renewing and frees the lease; it is
// safe to call more than once.
func (lm *LockManager) Hold(ctx context.Context, name string, ttl time.Duration) (context.Context, func(), error) {
	token := uuid.NewString()
	key := lm.c.key("lock", name)

	ok, err := lm.c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("redis: acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrLeaseHeld, name)
	}
	lm.logger.InfoContext(ctx, "lease acquired", slog.String("lease", name), slog.Duration("ttl", ttl))

	leaseCtx, cancel := context.WithCancelCause(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-leaseCtx.Done():
				return
			case <-ticker.C:
			}
			n, err := lm.renew.Run(leaseCtx, lm.c.rdb, []string{key}, token, ttl.Milliseconds()).Int64()
			if err != nil {
				// A later tick may still renew in time.
				lm.logger.WarnContext(ctx, "lease renewal failed",
					slog.String("lease", name),
					slog.String("error", err.Error()),
				)
				continue
			}
			if n == 0 {
				lm.logger.ErrorContext(ctx, "lease lost", slog.String("lease", name))
				cancel(fmt.Errorf("%w: %s", ErrLeaseLost, name))
				return
			}
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel(context.Canceled)
			wg.Wait()

			// The caller's context is usually done by now.
			releaseCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := lm.release.Run(releaseCtx, lm.c.rdb, []string{key}, token).Err(); err != nil {
				lm.logger.Warn("lease release failed",
					slog.String("lease", name),
					slog.String("error", err.Error()),
				)
			}
		})
	}
	return leaseCtx, release, nil
}
