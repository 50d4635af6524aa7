package lock

import (
	"context"
	"sync"
	"time"
)

// Locker is an advisory per-key mutual-exclusion claim with a TTL.
// Acquire is a non-blocking attempt: it returns false immediately when
// another holder is active, and never queues. The TTL bounds the damage
// of a crashed holder; the claim self-expires.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// PoolKey derives the lock key for a pool.
func PoolKey(poolID string) string { return "lock:pool:" + poolID }

// MemoryLocker is a process-local Locker for tests and single-node runs.
type MemoryLocker struct {
	mu     sync.Mutex
	claims map[string]time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{claims: make(map[string]time.Time)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if exp, held := l.claims[key]; held && time.Now().Before(exp) {
		return false, nil
	}
	l.claims[key] = time.Now().Add(ttl)
	return true, nil
}

func (l *MemoryLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, key)
	return nil
}
