package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowBurstThenDeny(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		if !l.Allow("quote", 3, 0.001) {
			t.Fatalf("expected token %d to be granted", i)
		}
	}
	if l.Allow("quote", 3, 0.001) {
		t.Fatalf("expected bucket to be empty")
	}
	if !l.Allow("historical", 1, 0.001) {
		t.Fatalf("expected separate key to have its own bucket")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	l := New()
	if err := l.Wait(context.Background(), "k", 1, 0.001); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "k", 1, 0.001); err == nil {
		t.Fatalf("expected wait to fail before refill")
	}
}

func TestIdleFullBucketsAreEvicted(t *testing.T) {
	clock := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	l := New(WithIdleTTL(time.Minute))
	l.now = func() time.Time { return clock }

	l.Allow("10.0.0.1:sync", 2, 1)
	l.Allow("busy", 1, 0.001)
	clock = clock.Add(2 * time.Minute)
	l.Allow("10.0.0.2:sync", 2, 1)

	if n := l.Len(); n != 2 {
		t.Fatalf("expected the refilled idle bucket to be dropped, got %d buckets", n)
	}
	if l.Allow("busy", 1, 0.001) {
		t.Fatalf("a drained bucket must survive the sweep")
	}
}

func TestMaxKeysEvictsLeastRecentlyUsed(t *testing.T) {
	clock := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	l := New(WithMaxKeys(2))
	l.now = func() time.Time { return clock }

	for _, k := range []string{"a", "b", "c"} {
		if !l.Allow(k, 1, 0.001) {
			t.Fatalf("first token for %s should be granted", k)
		}
		clock = clock.Add(time.Second)
	}
	if n := l.Len(); n != 2 {
		t.Fatalf("expected the cap to hold at 2, got %d", n)
	}
	if !l.Allow("a", 1, 0.001) {
		t.Fatalf("evicted key should start with a fresh bucket")
	}
	if l.Allow("c", 1, 0.001) {
		t.Fatalf("recent key should keep its drained bucket")
	}
}
