package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	applogger "SwingDesk/pkg/logger"
)

// OutcomeTracker attributes realized trade outcomes and skips to the
// detectors that produced the originating suggestion.
type OutcomeTracker struct {
	ledger domrepo.LedgerStore
	known  map[string]struct{}
	alpha  float64
	l      *applogger.Logger
	now    func() time.Time
}

var _ domrepo.OutcomeSink = (*OutcomeTracker)(nil)

func NewOutcomeTracker(ledger domrepo.LedgerStore, detectorIDs []string, alpha float64, l *applogger.Logger) *OutcomeTracker {
	if alpha <= 0 || alpha > 1 {
		alpha = models.DefaultOutcomeSmoothing
	}
	if l == nil {
		l = applogger.Nop()
	}
	known := make(map[string]struct{}, len(detectorIDs))
	for _, id := range detectorIDs {
		known[id] = struct{}{}
	}
	return &OutcomeTracker{ledger: ledger, known: known, alpha: alpha, l: l, now: time.Now}
}

// PositionClosed folds a closed position into the statistics of every
// detector that contributed to its suggestion, once per position. The
// position is stamped learned in the same transaction, so a redelivered
// event is a no-op. Failures for one detector roll back alone and do not
// stop the others.
func (t *OutcomeTracker) PositionClosed(ctx context.Context, p *models.Position) error {
	if p == nil || p.SuggestionID == nil {
		return nil
	}
	sug, ok := t.suggestion(ctx, *p.SuggestionID)
	if !ok {
		return nil
	}
	at := t.now()

	var (
		n          int
		pnlPct, rr float64
		already    bool
	)
	err := t.ledger.WithinTx(ctx, func(tx domrepo.LedgerTx) error {
		n, already = 0, false
		cur, err := tx.GetPosition(ctx, p.ID)
		if err != nil {
			return err
		}
		if cur.LearnedAt != nil {
			already = true
			return nil
		}
		if cur.IsOpen() {
			return fmt.Errorf("%w: position %d is still open", models.ErrPositionClosed, cur.ID)
		}

		exit := sug.Entry
		if cur.ExitPrice != nil {
			exit = *cur.ExitPrice
		}
		rr = 0
		if risk := math.Abs(sug.Entry - sug.Stop); risk > 0 {
			rr = models.RoundTo(math.Abs(exit-sug.Entry)/risk, 2)
		}
		pnlPct = 0
		if cur.PnLPct != nil {
			pnlPct = *cur.PnLPct
		}
		held := cur.HeldDays()

		n = t.attribute(ctx, tx, sug, func(perf *models.DetectorPerformance) {
			perf.RecordOutcome(pnlPct, rr, held, t.alpha, at)
		})
		cur.LearnedAt = &at
		return tx.UpdatePosition(ctx, cur)
	})
	if errors.Is(err, models.ErrPositionNotFound) {
		t.l.Debug("outcome.position_missing", applogger.Int64("position_id", p.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("learn position %d: %w", p.ID, err)
	}
	if already {
		t.l.Debug("outcome.already_learned", applogger.Int64("position_id", p.ID))
		return nil
	}
	t.l.Info("outcome.position_closed",
		applogger.Int64("position_id", p.ID),
		applogger.Int64("suggestion_id", sug.ID),
		applogger.Float("pnl_pct", pnlPct),
		applogger.Float("risk_reward", rr),
		applogger.Int("detectors", n))
	return nil
}

// SuggestionSkipped counts a skipped suggestion against its detectors, once
// per suggestion.
func (t *OutcomeTracker) SuggestionSkipped(ctx context.Context, s *models.Suggestion) error {
	if s == nil {
		return nil
	}
	if _, ok := t.suggestion(ctx, s.ID); !ok {
		return nil
	}
	at := t.now()

	var (
		n       int
		already bool
	)
	err := t.ledger.WithinTx(ctx, func(tx domrepo.LedgerTx) error {
		n, already = 0, false
		sug, err := tx.GetSuggestion(ctx, s.ID)
		if err != nil {
			return err
		}
		if sug.LearnedAt != nil {
			already = true
			return nil
		}
		n = t.attribute(ctx, tx, sug, func(perf *models.DetectorPerformance) {
			perf.RecordSkip(at)
		})
		sug.LearnedAt = &at
		return tx.UpdateSuggestion(ctx, sug)
	})
	if err != nil {
		return fmt.Errorf("learn suggestion %d: %w", s.ID, err)
	}
	if already {
		t.l.Debug("outcome.already_learned", applogger.Int64("suggestion_id", s.ID))
		return nil
	}
	t.l.Info("outcome.suggestion_skipped", applogger.Int64("suggestion_id", s.ID), applogger.Int("detectors", n))
	return nil
}

func (t *OutcomeTracker) suggestion(ctx context.Context, id int64) (*models.Suggestion, bool) {
	sug, err := t.ledger.GetSuggestion(ctx, id)
	if err != nil {
		if !errors.Is(err, models.ErrSuggestionNotFound) {
			t.l.Error("outcome.load_suggestion_failed", applogger.Int64("suggestion_id", id), applogger.Error(err))
		}
		return nil, false
	}
	if len(sug.Signals) == 0 {
		t.l.Debug("outcome.no_signals", applogger.Int64("suggestion_id", id))
		return nil, false
	}
	return sug, true
}

// attribute applies update to each contributing detector's row under its
// own savepoint and returns how many rows were written.
func (t *OutcomeTracker) attribute(ctx context.Context, tx domrepo.LedgerTx, sug *models.Suggestion, update func(*models.DetectorPerformance)) int {
	written := 0
	for _, proj := range sug.Signals {
		id := proj.DetectorID()
		if _, ok := t.known[id]; !ok {
			t.l.Debug("outcome.unknown_detector", applogger.String("detector", id))
			continue
		}
		tf := proj.Timeframe()
		if tf == "" {
			tf = sug.Timeframe
		}
		err := tx.Savepoint(ctx, func(sp domrepo.LedgerTx) error {
			perf, err := sp.GetOrCreatePerformance(ctx, id, tf)
			if err != nil {
				return err
			}
			update(perf)
			return sp.SavePerformance(ctx, perf)
		})
		if err != nil {
			t.l.Error("outcome.update_failed",
				applogger.String("detector", id),
				applogger.String("timeframe", tf),
				applogger.Error(err))
			continue
		}
		written++
	}
	return written
}
