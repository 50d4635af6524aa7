package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker implements Locker with SET NX EX, matching the claim
// semantics every other instance of the engine observes.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(addr, password string) *RedisLocker {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisLocker{client: c}
}

// NewRedisLockerFromClient wraps an already-constructed client so the
// connection can be shared and closed by the caller.
func NewRedisLockerFromClient(c *redis.Client) *RedisLocker {
	return &RedisLocker{client: c}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "locked", ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}

func (l *RedisLocker) Close() error { return l.client.Close() }
