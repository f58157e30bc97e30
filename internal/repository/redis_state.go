package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	"SwingDesk/pkg/cache"
)

const (
	stateNamespace = "state"
	weightsKey     = "weights:snapshot"
	balanceKey     = "reconcile:last_balance"
)

// CacheStateStore keeps the shared weight snapshot, the last observed fund
// balance and cross-process locks in a cache.Service (Redis in production).
type CacheStateStore struct {
	c cache.Service

	mu     sync.Mutex
	tokens map[string]string // held lock key -> token
}

var _ domrepo.StateStore = (*CacheStateStore)(nil)

func NewCacheStateStore(c cache.Service) *CacheStateStore {
	return &CacheStateStore{c: c, tokens: make(map[string]string)}
}

type balanceRecord struct {
	Balance float64   `json:"balance"`
	At      time.Time `json:"at"`
}

func (s *CacheStateStore) SaveWeights(ctx context.Context, snap *models.WeightSnapshot) error {
	if snap == nil {
		return nil
	}
	if err := s.c.Set(ctx, cache.Key(stateNamespace, weightsKey), snap, 0); err != nil {
		return fmt.Errorf("save weights: %w", err)
	}
	return nil
}

// LoadWeights returns nil when no snapshot has been published yet.
func (s *CacheStateStore) LoadWeights(ctx context.Context) (*models.WeightSnapshot, error) {
	var snap models.WeightSnapshot
	err := s.c.Get(ctx, cache.Key(stateNamespace, weightsKey), &snap)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	return &snap, nil
}

func (s *CacheStateStore) LastBalance(ctx context.Context) (float64, bool, error) {
	var rec balanceRecord
	err := s.c.Get(ctx, cache.Key(stateNamespace, balanceKey), &rec)
	if errors.Is(err, cache.ErrCacheMiss) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("last balance: %w", err)
	}
	return rec.Balance, true, nil
}

func (s *CacheStateStore) SaveBalance(ctx context.Context, balance float64) error {
	rec := balanceRecord{Balance: balance, At: time.Now().UTC()}
	if err := s.c.Set(ctx, cache.Key(stateNamespace, balanceKey), rec, 0); err != nil {
		return fmt.Errorf("save balance: %w", err)
	}
	return nil
}

// TryLock takes a cross-process lock. The token is kept in this process so
// that Unlock only releases a lock this store acquired.
func (s *CacheStateStore) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token, ok, err := s.c.TryLock(ctx, cache.Key(stateNamespace, key), ttl)
	if err != nil || !ok {
		return false, err
	}
	s.mu.Lock()
	s.tokens[key] = token
	s.mu.Unlock()
	return true, nil
}

func (s *CacheStateStore) Unlock(ctx context.Context, key string) error {
	s.mu.Lock()
	token, ok := s.tokens[key]
	delete(s.tokens, key)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.c.Unlock(ctx, cache.Key(stateNamespace, key), token)
}
