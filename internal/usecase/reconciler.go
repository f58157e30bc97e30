package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	applogger "SwingDesk/pkg/logger"
)

// ReconcileConfig controls the ledger reconciler.
type ReconcileConfig struct {
	FundNoiseThreshold float64
	StopPct            float64
	TargetPct          float64
	FetchTimeout       time.Duration
}

// Reconciler brings the internal ledger in line with the broker account.
// The broker is authoritative for which instruments are held.
type Reconciler struct {
	cfg      ReconcileConfig
	broker   domrepo.BrokerAccount
	quotes   domrepo.QuoteProvider
	ledger   domrepo.LedgerStore
	state    domrepo.StateStore
	outcomes domrepo.OutcomeSink
	notifier domrepo.Notifier
	metrics  domrepo.Metrics
	l        *applogger.Logger
	now      func() time.Time
}

func NewReconciler(
	cfg ReconcileConfig,
	broker domrepo.BrokerAccount,
	quotes domrepo.QuoteProvider,
	ledger domrepo.LedgerStore,
	state domrepo.StateStore,
	outcomes domrepo.OutcomeSink,
	notifier domrepo.Notifier,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *Reconciler {
	if cfg.FundNoiseThreshold <= 0 {
		cfg.FundNoiseThreshold = 500
	}
	if cfg.StopPct <= 0 {
		cfg.StopPct = 0.06
	}
	if cfg.TargetPct <= 0 {
		cfg.TargetPct = 0.10
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 20 * time.Second
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Reconciler{
		cfg:      cfg,
		broker:   broker,
		quotes:   quotes,
		ledger:   ledger,
		state:    state,
		outcomes: outcomes,
		notifier: notifier,
		metrics:  metrics,
		l:        l,
		now:      time.Now,
	}
}

// Sync runs one reconcile pass. Broker fetch failures abort the pass; per
// symbol failures are collected in the result and the rest commit together.
//
// The pass time is taken before the broker is asked, so positions opened
// while the fetch is in flight are never closed by it.
func (r *Reconciler) Sync(ctx context.Context) (*models.SyncResult, error) {
	at := r.now()
	res := &models.SyncResult{
		RunID:           uuid.NewString(),
		At:              at,
		NewPositions:    []models.SyncedPosition{},
		ClosedPositions: []models.SyncedPosition{},
		Errors:          []string{},
	}
	l := r.l.With(applogger.String("run_id", res.RunID))

	snap, err := r.fetchExternal(ctx, at)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordError("reconcile_fetch")
		}
		return nil, err
	}

	internal, err := r.ledger.OpenInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("open instruments: %w", err)
	}
	prices := r.exitPrices(ctx, internal, snap, res)
	held := symbols(snap.held)

	var closed []models.Position
	err = r.ledger.WithinTx(ctx, func(tx domrepo.LedgerTx) error {
		res.NewPositions = res.NewPositions[:0]
		res.ClosedPositions = res.ClosedPositions[:0]
		closed = closed[:0]
		txErrs := []string{}

		open, err := r.lockOpen(ctx, tx, union(internal, held))
		if err != nil {
			return err
		}
		byInstrument := make(map[string]models.Position, len(open))
		for _, p := range open {
			byInstrument[p.Instrument] = p
		}

		for _, sym := range held {
			if _, ok := byInstrument[sym]; ok {
				continue
			}
			p, err := r.placeholder(snap.held[sym], snap.at)
			if err == nil {
				err = tx.Savepoint(ctx, func(sp domrepo.LedgerTx) error { return sp.InsertPosition(ctx, p) })
			}
			if err != nil {
				txErrs = append(txErrs, fmt.Sprintf("create %s: %v", sym, err))
				continue
			}
			res.NewPositions = append(res.NewPositions, models.SyncedPosition{
				PositionID: p.ID, Instrument: sym, Quantity: p.Quantity, Price: p.EntryPrice,
			})
		}

		for _, p := range open {
			if _, ok := snap.held[p.Instrument]; ok {
				continue
			}
			if !p.EntryDate.Before(snap.at) {
				l.Debug("reconcile.skip_recent", applogger.String("instrument", p.Instrument))
				continue
			}
			pos := p
			exit, priced := prices[pos.Instrument]
			if !priced || exit <= 0 {
				priced = false
				exit = pos.Target
				pos.Notes = appendNote(pos.Notes, "exit at target: no broker or quote price")
				txErrs = append(txErrs, fmt.Sprintf("quote %s: unavailable, using target", pos.Instrument))
			}
			err := tx.Savepoint(ctx, func(sp domrepo.LedgerTx) error {
				if err := pos.Close(exit, snap.at, models.ExitManual); err != nil {
					return err
				}
				return sp.UpdatePosition(ctx, &pos)
			})
			if err != nil {
				txErrs = append(txErrs, fmt.Sprintf("close %s: %v", pos.Instrument, err))
				continue
			}
			if priced {
				closed = append(closed, pos)
			}
			res.ClosedPositions = append(res.ClosedPositions, models.SyncedPosition{
				PositionID: pos.ID, Instrument: pos.Instrument, Quantity: pos.Quantity,
				Price: *pos.ExitPrice, PnL: *pos.PnL, PnLPct: *pos.PnLPct,
			})
		}
		res.Errors = append(res.Errors, txErrs...)
		return nil
	})
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordError("reconcile_commit")
		}
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	// Target-priced closes are synthetic and never reach learning.
	if r.outcomes != nil {
		for i := range closed {
			if closed[i].SuggestionID == nil {
				continue
			}
			if err := r.outcomes.PositionClosed(ctx, &closed[i]); err != nil {
				l.Warn("reconcile.outcome_failed", applogger.Int64("position_id", closed[i].ID), applogger.Error(err))
			}
		}
	}

	r.reconcileFunds(ctx, res)

	if r.metrics != nil {
		r.metrics.RecordReconcile(len(res.NewPositions), len(res.ClosedPositions), len(res.Errors), res.FundChanged)
	}
	l.Info("reconcile.completed",
		applogger.Int("external", len(held)),
		applogger.Int("created", len(res.NewPositions)),
		applogger.Int("closed", len(res.ClosedPositions)),
		applogger.Bool("fund_changed", res.FundChanged),
		applogger.Int("errors", len(res.Errors)))

	if r.notifier != nil && (res.HasPositionChanges() || res.HasFundChange()) {
		if err := r.notifier.NotifySync(ctx, res); err != nil {
			l.Warn("reconcile.notify_failed", applogger.Error(err))
		}
	}
	return res, nil
}

// brokerSnapshot is the broker state observed at one instant.
type brokerSnapshot struct {
	held      map[string]models.ExternalHolding
	lastPrice map[string]float64
	at        time.Time
}

// fetchExternal merges broker holdings and positions into one map keyed by
// symbol. Rows without a symbol or with non-positive quantity are not held,
// but their last price is still kept for closing.
func (r *Reconciler) fetchExternal(ctx context.Context, at time.Time) (*brokerSnapshot, error) {
	fctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	holdings, err := r.broker.Holdings(fctx)
	if err != nil {
		return nil, fmt.Errorf("%w: holdings: %v", models.ErrExternalService, err)
	}
	positions, err := r.broker.Positions(fctx)
	if err != nil {
		return nil, fmt.Errorf("%w: positions: %v", models.ErrExternalService, err)
	}

	snap := &brokerSnapshot{
		held:      make(map[string]models.ExternalHolding, len(holdings)+len(positions)),
		lastPrice: make(map[string]float64, len(holdings)+len(positions)),
		at:        at,
	}
	rows := make([]models.ExternalHolding, 0, len(holdings)+len(positions))
	rows = append(append(rows, holdings...), positions...)
	for _, h := range rows {
		if h.Symbol == "" {
			continue
		}
		if h.LastPrice > 0 {
			snap.lastPrice[h.Symbol] = h.LastPrice
		}
		if h.Quantity <= 0 {
			continue
		}
		if prev, ok := snap.held[h.Symbol]; ok {
			if h.AvgPrice <= 0 {
				h.AvgPrice = prev.AvgPrice
			}
			if h.LastPrice <= 0 {
				h.LastPrice = prev.LastPrice
			}
		}
		snap.held[h.Symbol] = h
	}
	return snap, nil
}

// exitPrices resolves exit prices for internal positions the broker no
// longer holds: the broker's last price when it has one, else a live quote.
// Symbols missing from the result close at their own target.
func (r *Reconciler) exitPrices(ctx context.Context, internal []string, snap *brokerSnapshot, res *models.SyncResult) map[string]float64 {
	prices := make(map[string]float64)
	var need []string
	for _, sym := range internal {
		if _, ok := snap.held[sym]; ok {
			continue
		}
		if px, ok := snap.lastPrice[sym]; ok {
			prices[sym] = px
			continue
		}
		need = append(need, sym)
	}
	if len(need) == 0 || r.quotes == nil {
		return prices
	}

	qctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()
	quotes, err := r.quotes.GetQuotes(qctx, need)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("quotes: %v", err))
		return prices
	}
	for _, sym := range need {
		if q, ok := quotes[sym]; ok && q.LastPrice > 0 {
			prices[sym] = q.LastPrice
		}
	}
	return prices
}

// lockOpen locks the given instruments, then every instrument that is OPEN
// once those locks are held, and returns the OPEN rows read under the full
// lock set. Instruments opened between the two reads are locked before the
// list is taken again.
func (r *Reconciler) lockOpen(ctx context.Context, tx domrepo.LedgerTx, instruments []string) ([]models.Position, error) {
	locked := make(map[string]struct{}, len(instruments))
	for _, inst := range instruments {
		locked[inst] = struct{}{}
	}
	if err := tx.LockInstruments(ctx, instruments...); err != nil {
		return nil, fmt.Errorf("lock instruments: %w", err)
	}
	for {
		open, err := tx.OpenPositions(ctx)
		if err != nil {
			return nil, fmt.Errorf("open positions: %w", err)
		}
		var extra []string
		for _, p := range open {
			if _, ok := locked[p.Instrument]; !ok {
				locked[p.Instrument] = struct{}{}
				extra = append(extra, p.Instrument)
			}
		}
		if len(extra) == 0 {
			return open, nil
		}
		if err := tx.LockInstruments(ctx, extra...); err != nil {
			return nil, fmt.Errorf("lock instruments: %w", err)
		}
	}
}

// placeholder builds an externally created long position with default
// protective levels around the broker's entry price.
func (r *Reconciler) placeholder(h models.ExternalHolding, at time.Time) (*models.Position, error) {
	entry := h.AvgPrice
	if entry <= 0 {
		entry = h.LastPrice
	}
	if entry <= 0 || math.IsNaN(entry) {
		return nil, fmt.Errorf("no entry price")
	}
	return &models.Position{
		Instrument:        h.Symbol,
		Direction:         models.Long,
		EntryPrice:        models.Price(entry),
		EntryDate:         at,
		Quantity:          h.Quantity,
		CurrentStop:       models.Price(entry * (1 - r.cfg.StopPct)),
		Target:            models.Price(entry * (1 + r.cfg.TargetPct)),
		Status:            models.PositionOpen,
		ExternallyCreated: true,
		Notes:             "created by broker reconcile",
	}, nil
}

// reconcileFunds compares the broker balance with the last one seen. The
// first observation reports a zero change.
func (r *Reconciler) reconcileFunds(ctx context.Context, res *models.SyncResult) {
	fctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	balance, err := r.broker.AvailableFunds(fctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("funds: %v", err))
		return
	}
	res.FundBalance = &balance
	if r.state == nil {
		return
	}

	prev, ok, err := r.state.LastBalance(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("last balance: %v", err))
	} else if ok {
		res.FundChange = models.Price(balance - prev)
		res.FundChanged = math.Abs(res.FundChange) > r.cfg.FundNoiseThreshold
	}
	if err := r.state.SaveBalance(ctx, balance); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("save balance: %v", err))
	}
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "; " + note
}

func symbols(m map[string]models.ExternalHolding) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func union(a, b []string) []string {
	out := dedupe(append(append([]string{}, a...), b...))
	sort.Strings(out)
	return out
}
