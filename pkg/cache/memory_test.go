package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type point struct {
	X float64 `json:"x"`
	Y string  `json:"y"`
}

func TestMemoryCacheRoundTripsStructs(t *testing.T) {
	mc := NewMemoryCache()
	ctx := context.Background()

	if err := mc.Set(ctx, "p", point{X: 1.5, Y: "a"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got point
	if err := mc.Get(ctx, "p", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.X != 1.5 || got.Y != "a" {
		t.Fatalf("unexpected value %+v", got)
	}

	var missing point
	if err := mc.Get(ctx, "nope", &missing); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestMemoryCacheLockNeedsToken(t *testing.T) {
	mc := NewMemoryCache()
	ctx := context.Background()

	tok, ok, _ := mc.TryLock(ctx, "l", time.Minute)
	if !ok || tok == "" {
		t.Fatalf("first lock should succeed with a token")
	}
	if _, ok, _ = mc.TryLock(ctx, "l", time.Minute); ok {
		t.Fatalf("second lock should fail while held")
	}
	_ = mc.Unlock(ctx, "l", "someone-else")
	if _, ok, _ = mc.TryLock(ctx, "l", time.Minute); ok {
		t.Fatalf("a foreign token must not release the lock")
	}
	_ = mc.Unlock(ctx, "l", tok)
	if _, ok, _ = mc.TryLock(ctx, "l", time.Minute); !ok {
		t.Fatalf("lock should succeed after unlock")
	}
}

func TestMemoryCacheExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	mc := NewMemoryCache()
	mc.now = func() time.Time { return now }
	ctx := context.Background()

	old, _, _ := mc.TryLock(ctx, "calibrate", time.Minute)
	now = now.Add(2 * time.Minute)
	next, ok, _ := mc.TryLock(ctx, "calibrate", time.Minute)
	if !ok {
		t.Fatalf("expired lock should be free")
	}
	_ = mc.Unlock(ctx, "calibrate", old)
	if _, ok, _ := mc.TryLock(ctx, "calibrate", time.Minute); ok {
		t.Fatalf("old holder released the new holder's lock")
	}
	_ = mc.Unlock(ctx, "calibrate", next)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMaxEntries(2))
	ctx := context.Background()

	_ = mc.Set(ctx, "a", "1", 0)
	_ = mc.Set(ctx, "b", "2", 0)
	var s string
	_ = mc.Get(ctx, "a", &s)
	_ = mc.Set(ctx, "c", "3", 0)

	if err := mc.Get(ctx, "b", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("least recently used key should be evicted, got %v", err)
	}
	if err := mc.Get(ctx, "a", &s); err != nil || s != "1" {
		t.Fatalf("recently read key evicted: %q %v", s, err)
	}
	if mc.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", mc.Len())
	}
}
