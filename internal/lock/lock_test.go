package lock

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLockerExclusive(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()
	key := PoolKey("p1")

	ok, err := l.Acquire(ctx, key, time.Second)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = l.Acquire(ctx, key, time.Second)
	if err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}
}

func TestMemoryLockerRelease(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()
	key := PoolKey("p1")

	if ok, _ := l.Acquire(ctx, key, time.Second); !ok {
		t.Fatal("acquire failed")
	}
	if err := l.Release(ctx, key); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := l.Acquire(ctx, key, time.Second); !ok {
		t.Fatal("reacquire after release failed")
	}
}

func TestMemoryLockerTTLExpiry(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()
	key := PoolKey("p1")

	if ok, _ := l.Acquire(ctx, key, 10*time.Millisecond); !ok {
		t.Fatal("acquire failed")
	}
	time.Sleep(20 * time.Millisecond)
	if ok, _ := l.Acquire(ctx, key, time.Second); !ok {
		t.Fatal("expected expired claim to be reclaimable")
	}
}

func TestPoolKeyFormat(t *testing.T) {
	if got := PoolKey("abc"); got != "lock:pool:abc" {
		t.Fatalf("unexpected key %q", got)
	}
}
