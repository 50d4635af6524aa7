package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/example/cab-pooling/internal/lock"
)

// DefaultLockTTL bounds how long a crashed holder can keep a pool
// claimed. Critical sections are expected to finish well within it.
const DefaultLockTTL = 5 * time.Second

// withPoolLock acquires the advisory lock for a pool, runs fn while
// holding it, and releases the claim on every exit path. A held lock
// yields ErrLockContention without blocking. A release failure is
// surfaced so the surrounding atomic scope rolls back rather than
// committing with the claim in an unknown state.
func withPoolLock(ctx context.Context, l lock.Locker, poolID string, ttl time.Duration, fn func() error) (err error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	key := lock.PoolKey(poolID)
	ok, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return fmt.Errorf("acquire pool lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("pool %s: %w", poolID, ErrLockContention)
	}
	defer func() {
		if rerr := l.Release(ctx, key); rerr != nil && err == nil {
			err = fmt.Errorf("release pool lock: %w", rerr)
		}
	}()
	return fn()
}
