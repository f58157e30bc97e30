package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	applogger "SwingDesk/pkg/logger"
)

// WeightBook holds the current trust-weight snapshot. Readers take one
// snapshot and keep it for a whole run; writers swap in a new version.
type WeightBook struct {
	cur      atomic.Pointer[models.WeightSnapshot]
	defaults map[string]float64
	ledger   domrepo.LedgerTx
	state    domrepo.StateStore
	l        *applogger.Logger
}

// NewWeightBook starts at version 0 with the given default weights.
func NewWeightBook(defaults map[string]float64, ledger domrepo.LedgerTx, state domrepo.StateStore, l *applogger.Logger) *WeightBook {
	if l == nil {
		l = applogger.Nop()
	}
	b := &WeightBook{defaults: copyWeights(defaults), ledger: ledger, state: state, l: l}
	b.cur.Store(&models.WeightSnapshot{Weights: copyWeights(defaults), LoadedAt: time.Now()})
	return b
}

// Snapshot returns the current immutable snapshot.
func (b *WeightBook) Snapshot() *models.WeightSnapshot { return b.cur.Load() }

// Load refreshes weights from the performance store, falling back to the
// shared cache and then to the configured defaults.
func (b *WeightBook) Load(ctx context.Context) (*models.WeightSnapshot, error) {
	if b.ledger != nil {
		rows, err := b.ledger.ListPerformance(ctx)
		if err == nil {
			return b.Publish(ctx, models.WeightsFrom(rows)), nil
		}
		b.l.Warn("weights.load_ledger_failed", applogger.Error(err))
	}
	if b.state != nil {
		snap, err := b.state.LoadWeights(ctx)
		if err != nil {
			return b.Snapshot(), fmt.Errorf("load weights: %w", err)
		}
		if snap != nil {
			return b.Publish(ctx, snap.Weights), nil
		}
	}
	return b.Snapshot(), nil
}

// Publish installs a new snapshot built from defaults overlaid with weights.
func (b *WeightBook) Publish(ctx context.Context, weights map[string]float64) *models.WeightSnapshot {
	merged := copyWeights(b.defaults)
	for k, v := range weights {
		merged[k] = v
	}
	var next *models.WeightSnapshot
	for {
		prev := b.cur.Load()
		next = &models.WeightSnapshot{Version: prev.Version + 1, Weights: merged, LoadedAt: time.Now()}
		if b.cur.CompareAndSwap(prev, next) {
			break
		}
	}
	if b.state != nil {
		if err := b.state.SaveWeights(ctx, next); err != nil {
			b.l.Warn("weights.cache_save_failed", applogger.Int64("version", next.Version), applogger.Error(err))
		}
	}
	b.l.Info("weights.published", applogger.Int64("version", next.Version), applogger.Int("count", len(merged)))
	return next
}

func copyWeights(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
