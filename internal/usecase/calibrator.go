package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	applogger "SwingDesk/pkg/logger"
)

const calibratorLockKey = "calibrator:lock"

// CalibrationResult is the outcome of one calibrator pass.
type CalibrationResult struct {
	Version int64              `json:"version"`
	Changed int                `json:"changed"`
	Weights map[string]float64 `json:"weights"`
}

// Calibrator adjusts detector trust weights from accumulated performance.
// Only one pass runs at a time, in this process and across processes that
// share the state store.
type Calibrator struct {
	ledger  domrepo.LedgerStore
	state   domrepo.StateStore
	weights *WeightBook
	metrics domrepo.Metrics
	lockTTL time.Duration
	l       *applogger.Logger
	now     func() time.Time

	running sync.Mutex
}

func NewCalibrator(
	ledger domrepo.LedgerStore,
	state domrepo.StateStore,
	weights *WeightBook,
	metrics domrepo.Metrics,
	lockTTL time.Duration,
	l *applogger.Logger,
) *Calibrator {
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Calibrator{ledger: ledger, state: state, weights: weights, metrics: metrics, lockTTL: lockTTL, l: l, now: time.Now}
}

// Run applies one calibration step to every performance row and publishes
// the resulting weight map. It returns ErrCalibrationRunning when another
// pass holds the lock.
func (c *Calibrator) Run(ctx context.Context) (*CalibrationResult, error) {
	if !c.running.TryLock() {
		return nil, models.ErrCalibrationRunning
	}
	defer c.running.Unlock()

	if c.state != nil {
		ok, err := c.state.TryLock(ctx, calibratorLockKey, c.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire calibrator lock: %w", err)
		}
		if !ok {
			return nil, models.ErrCalibrationRunning
		}
		defer func() {
			if err := c.state.Unlock(context.WithoutCancel(ctx), calibratorLockKey); err != nil {
				c.l.Warn("calibrator.unlock_failed", applogger.Error(err))
			}
		}()
	}

	at := c.now()
	var (
		weights map[string]float64
		changed int
	)
	err := c.ledger.WithinTx(ctx, func(tx domrepo.LedgerTx) error {
		rows, err := tx.ListPerformance(ctx)
		if err != nil {
			return fmt.Errorf("list performance: %w", err)
		}
		changed = 0
		weights = make(map[string]float64, len(rows))
		for i := range rows {
			r := &rows[i]
			old := r.TrustWeight
			if r.Calibrate(at) {
				if err := tx.SavePerformance(ctx, r); err != nil {
					return fmt.Errorf("save %s: %w", models.WeightKey(r.DetectorID, r.Timeframe), err)
				}
				changed++
				c.l.Info("calibrator.weight_changed",
					applogger.String("detector", r.DetectorID),
					applogger.String("timeframe", r.Timeframe),
					applogger.Float("from", old),
					applogger.Float("to", r.TrustWeight),
					applogger.Float("win_rate", r.WinRate),
					applogger.Float("avg_pnl_pct", r.AvgPnLPct))
			}
			weights[models.WeightKey(r.DetectorID, r.Timeframe)] = r.TrustWeight
		}
		return nil
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordError("calibration")
		}
		return nil, err
	}

	res := &CalibrationResult{Changed: changed, Weights: weights}
	if c.weights != nil {
		snap := c.weights.Publish(ctx, weights)
		res.Version = snap.Version
		res.Weights = snap.Weights
	}
	if c.metrics != nil {
		c.metrics.RecordCalibration(changed)
	}
	c.l.Info("calibrator.completed",
		applogger.Int("rows", len(weights)),
		applogger.Int("changed", changed),
		applogger.Int64("version", res.Version))
	return res, nil
}
