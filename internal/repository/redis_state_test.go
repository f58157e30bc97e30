package repository

import (
	"context"
	"testing"
	"time"

	"SwingDesk/internal/domain/models"
	"SwingDesk/pkg/cache"
)

func TestCacheStateStoreMissesAreEmpty(t *testing.T) {
	mc := cache.NewMemoryCache()
	s := NewCacheStateStore(mc)
	ctx := context.Background()

	snap, err := s.LoadWeights(ctx)
	if err != nil || snap != nil {
		t.Fatalf("expected empty weights, got %+v err=%v", snap, err)
	}
	_, ok, err := s.LastBalance(ctx)
	if err != nil || ok {
		t.Fatalf("expected no balance, got ok=%v err=%v", ok, err)
	}
}

func TestCacheStateStorePersistsState(t *testing.T) {
	mc := cache.NewMemoryCache()
	s := NewCacheStateStore(mc)
	ctx := context.Background()

	in := &models.WeightSnapshot{Version: 7, Weights: map[string]float64{"breakout/daily": 1.2}}
	if err := s.SaveWeights(ctx, in); err != nil {
		t.Fatalf("save weights: %v", err)
	}
	out, err := s.LoadWeights(ctx)
	if err != nil || out == nil || out.Version != 7 || out.Weight("breakout", "daily") != 1.2 {
		t.Fatalf("unexpected snapshot %+v err=%v", out, err)
	}

	if err := s.SaveBalance(ctx, 12500.5); err != nil {
		t.Fatalf("save balance: %v", err)
	}
	bal, ok, err := s.LastBalance(ctx)
	if err != nil || !ok || bal != 12500.5 {
		t.Fatalf("unexpected balance %v ok=%v err=%v", bal, ok, err)
	}

	got, _ := s.TryLock(ctx, "job", time.Minute)
	again, _ := s.TryLock(ctx, "job", time.Minute)
	if !got || again {
		t.Fatalf("lock should be exclusive, got %v then %v", got, again)
	}

	other := NewCacheStateStore(mc)
	if err := other.Unlock(ctx, "job"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if ok, _ := other.TryLock(ctx, "job", time.Minute); ok {
		t.Fatalf("a store that never held the lock must not release it")
	}
	_ = s.Unlock(ctx, "job")
	if ok, _ := other.TryLock(ctx, "job", time.Minute); !ok {
		t.Fatalf("lock should be free after its holder unlocks")
	}
}
