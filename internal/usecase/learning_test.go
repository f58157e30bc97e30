package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"SwingDesk/internal/domain/models"
	"SwingDesk/internal/repository"
	"SwingDesk/pkg/cache"
)

func newState(t *testing.T) *repository.CacheStateStore {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	return repository.NewCacheStateStore(mc)
}

func seedPerformance(t *testing.T, ledger *repository.MemoryLedger, rows ...models.DetectorPerformance) {
	t.Helper()
	for i := range rows {
		if err := ledger.SavePerformance(context.Background(), &rows[i]); err != nil {
			t.Fatalf("seed %s: %v", rows[i].DetectorID, err)
		}
	}
}

func TestCalibratorStepsAndClampsWeights(t *testing.T) {
	ctx := context.Background()
	ledger := repository.NewMemoryLedger()
	seedPerformance(t, ledger,
		models.DetectorPerformance{DetectorID: "trend_crossover", Timeframe: "daily", ExecutedSignals: 12, WinRate: 0.7, AvgPnLPct: 2.0, TrustWeight: 1.95},
		models.DetectorPerformance{DetectorID: "reversal", Timeframe: "daily", ExecutedSignals: 10, WinRate: 0.2, AvgPnLPct: -2.0, TrustWeight: 0.15},
		models.DetectorPerformance{DetectorID: "breakout", Timeframe: "daily", ExecutedSignals: 3, WinRate: 1.0, AvgPnLPct: 5.0, TrustWeight: 1.0},
		models.DetectorPerformance{DetectorID: "volume_surge", Timeframe: "daily", ExecutedSignals: 20, WinRate: 0.5, AvgPnLPct: 0.5, TrustWeight: 1.0},
	)
	state := newState(t)
	book := NewWeightBook(nil, ledger, state, nil)
	cal := NewCalibrator(ledger, state, book, nil, time.Minute, nil)
	cal.now = func() time.Time { return testNow }

	res, err := cal.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Changed != 2 || res.Version != 1 {
		t.Fatalf("expected 2 changes at version 1, got %+v", res)
	}
	want := map[string]float64{
		"trend_crossover/daily": 2.0,
		"reversal/daily":        0.1,
		"breakout/daily":        1.0,
		"volume_surge/daily":    1.0,
	}
	for k, w := range want {
		if res.Weights[k] != w {
			t.Fatalf("%s: expected %v, got %v", k, w, res.Weights[k])
		}
	}
	if book.Snapshot().Weight("reversal", "daily") != 0.1 {
		t.Fatalf("book should serve the published weights")
	}

	perf, _ := ledger.GetOrCreatePerformance(ctx, "trend_crossover", "daily")
	if perf.TrustWeight != 2.0 || perf.LastCalibrated == nil || !perf.LastCalibrated.Equal(testNow) {
		t.Fatalf("calibration should be persisted, got %+v", perf)
	}

	cached, err := state.LoadWeights(ctx)
	if err != nil || cached == nil || cached.Version != 1 {
		t.Fatalf("expected cached snapshot v1, got %+v err=%v", cached, err)
	}
}

func TestCalibratorRefusesWhileLocked(t *testing.T) {
	ctx := context.Background()
	ledger := repository.NewMemoryLedger()
	state := newState(t)
	cal := NewCalibrator(ledger, state, NewWeightBook(nil, ledger, state, nil), nil, time.Minute, nil)

	ok, err := state.TryLock(ctx, calibratorLockKey, time.Minute)
	if err != nil || !ok {
		t.Fatalf("take lock: ok=%v err=%v", ok, err)
	}
	if _, err := cal.Run(ctx); !errors.Is(err, models.ErrCalibrationRunning) {
		t.Fatalf("expected ErrCalibrationRunning, got %v", err)
	}
	_ = state.Unlock(ctx, calibratorLockKey)
	if _, err := cal.Run(ctx); err != nil {
		t.Fatalf("run after unlock: %v", err)
	}
}

func insertSuggestion(t *testing.T, ledger *repository.MemoryLedger, s *models.Suggestion) *models.Suggestion {
	t.Helper()
	if s.Status == "" {
		s.Status = models.SuggestionPending
	}
	if s.Date.IsZero() {
		s.Date = testNow
	}
	if err := ledger.InsertSuggestion(context.Background(), s); err != nil {
		t.Fatalf("insert suggestion: %v", err)
	}
	return s
}

func TestOutcomeTrackerAttributesClosedPosition(t *testing.T) {
	ctx := context.Background()
	ledger := repository.NewMemoryLedger()
	lead := longSignal(0.8, 100, 110, 95)
	lead.DetectorID = "trend_crossover"
	sug := insertSuggestion(t, ledger, &models.Suggestion{
		Instrument: "ABC",
		Direction:  models.Long,
		Entry:      100,
		Stop:       95,
		Target:     110,
		Timeframe:  "daily",
		Signals: []models.Projection{
			lead.Projection(),
			{"detector_id": "volume_surge"},
			{"detector_id": "retired_detector", "timeframe": "daily"},
		},
	})
	p := &models.Position{
		SuggestionID: int64p(sug.ID),
		Instrument:   "ABC",
		Direction:    models.Long,
		EntryPrice:   100,
		EntryDate:    testNow.AddDate(0, 0, -4),
		Quantity:     10,
		Status:       models.PositionOpen,
	}
	if err := p.Close(110, testNow, models.ExitTargetHit); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ledger.InsertPosition(ctx, p); err != nil {
		t.Fatalf("insert position: %v", err)
	}

	tr := NewOutcomeTracker(ledger, []string{"trend_crossover", "volume_surge"}, 0.5, nil)
	tr.now = func() time.Time { return testNow }
	for i := 0; i < 2; i++ {
		if err := tr.PositionClosed(ctx, p); err != nil {
			t.Fatalf("position closed #%d: %v", i+1, err)
		}
	}
	if stored, _ := ledger.GetPosition(ctx, p.ID); stored.LearnedAt == nil || !stored.LearnedAt.Equal(testNow) {
		t.Fatalf("position should be stamped learned, got %+v", stored.LearnedAt)
	}

	rows, _ := ledger.ListPerformance(ctx)
	if len(rows) != 2 {
		t.Fatalf("unknown detectors must not get rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Timeframe != "daily" {
			t.Fatalf("missing timeframe should fall back to the suggestion's, got %q", r.Timeframe)
		}
		if r.ExecutedSignals != 1 || r.WinningTrades != 1 || r.WinRate != 1 {
			t.Fatalf("a redelivered close must be counted once, got %+v", r)
		}
		if r.AvgPnLPct != 5 || r.AvgRiskReward != 1 || r.AvgHeldDays != 2 {
			t.Fatalf("unexpected smoothed stats %+v", r)
		}
	}

	for i := 0; i < 2; i++ {
		if err := tr.SuggestionSkipped(ctx, sug); err != nil {
			t.Fatalf("skip #%d: %v", i+1, err)
		}
	}
	perf, _ := ledger.GetOrCreatePerformance(ctx, "trend_crossover", "daily")
	if perf.TotalSignals != 2 || perf.ExecutedSignals != 1 {
		t.Fatalf("skip should count a signal without an execution, got %+v", perf)
	}
}

func TestOutcomeTrackerIgnoresUnlinkedPositions(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	tr := NewOutcomeTracker(ledger, []string{"trend_crossover"}, 0.1, nil)
	if err := tr.PositionClosed(context.Background(), &models.Position{ID: 1, Status: models.PositionClosed}); err != nil {
		t.Fatalf("unlinked position: %v", err)
	}
	if err := tr.PositionClosed(context.Background(), &models.Position{ID: 2, SuggestionID: int64p(404)}); err != nil {
		t.Fatalf("missing suggestion: %v", err)
	}
	rows, _ := ledger.ListPerformance(context.Background())
	if len(rows) != 0 {
		t.Fatalf("expected no performance rows, got %d", len(rows))
	}
}

func TestWeightBookLoadsFromLedgerThenCache(t *testing.T) {
	ctx := context.Background()
	ledger := repository.NewMemoryLedger()
	seedPerformance(t, ledger, models.DetectorPerformance{DetectorID: "breakout", Timeframe: "daily", TrustWeight: 1.3})
	state := newState(t)

	defaults := map[string]float64{"breakout/daily": 1.0, "reversal/daily": 0.8}
	book := NewWeightBook(defaults, ledger, state, nil)
	if v := book.Snapshot().Version; v != 0 {
		t.Fatalf("fresh book should be version 0, got %d", v)
	}
	snap, err := book.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Version != 1 || snap.Weight("breakout", "daily") != 1.3 || snap.Weight("reversal", "daily") != 0.8 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	cacheOnly := NewWeightBook(defaults, nil, state, nil)
	snap, err = cacheOnly.Load(ctx)
	if err != nil {
		t.Fatalf("load from cache: %v", err)
	}
	if snap.Weight("breakout", "daily") != 1.3 {
		t.Fatalf("expected cached weight, got %+v", snap.Weights)
	}
}

func TestOutcomeEventsHandlerDropsPoisonMessages(t *testing.T) {
	ctx := context.Background()
	ledger := repository.NewMemoryLedger()
	sink := &recordingSink{}
	h := NewOutcomeEventsHandler("swingdesk.outcomes", ledger, sink, nil)

	p := &models.Position{Instrument: "ABC", Direction: models.Long, EntryPrice: 10, Quantity: 1, Status: models.PositionOpen}
	if err := ledger.InsertPosition(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	sug := insertSuggestion(t, ledger, &models.Suggestion{Instrument: "XYZ"})

	cases := []string{
		`{not json`,
		`{"kind":"position_closed","position_id":999}`,
		`{"kind":"mystery"}`,
		`{"kind":"position_closed","position_id":1}`,
		`{"kind":"suggestion_skipped","suggestion_id":1}`,
	}
	for _, c := range cases {
		if err := h.Handle(ctx, []byte(c)); err != nil {
			t.Fatalf("%s: %v", c, err)
		}
	}
	if len(sink.closed) != 1 || sink.closed[0] != p.ID {
		t.Fatalf("expected one closed event for %d, got %v", p.ID, sink.closed)
	}
	if len(sink.skipped) != 1 || sink.skipped[0] != sug.ID {
		t.Fatalf("expected one skipped event for %d, got %v", sug.ID, sink.skipped)
	}
	if h.Topic() != "swingdesk.outcomes" {
		t.Fatalf("unexpected topic %q", h.Topic())
	}
}

func TestOutcomeEventsHandlerIgnoresRedelivery(t *testing.T) {
	ctx := context.Background()
	ledger := repository.NewMemoryLedger()
	lead := longSignal(0.8, 100, 110, 95)
	lead.DetectorID = "breakout"
	sug := insertSuggestion(t, ledger, &models.Suggestion{
		Instrument: "ABC", Direction: models.Long, Entry: 100, Stop: 95, Target: 110,
		Timeframe: "daily", Signals: []models.Projection{lead.Projection()},
	})
	p := &models.Position{SuggestionID: int64p(sug.ID), Instrument: "ABC", Direction: models.Long, EntryPrice: 100, EntryDate: testNow.AddDate(0, 0, -1), Quantity: 1, Status: models.PositionOpen}
	if err := p.Close(95, testNow, models.ExitStopHit); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ledger.InsertPosition(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	tr := NewOutcomeTracker(ledger, []string{"breakout"}, 0.2, nil)
	h := NewOutcomeEventsHandler("swingdesk.outcomes", ledger, tr, nil)
	msg := []byte(`{"kind":"position_closed","position_id":1}`)
	for i := 0; i < 3; i++ {
		if err := h.Handle(ctx, msg); err != nil {
			t.Fatalf("delivery #%d: %v", i+1, err)
		}
	}
	perf, _ := ledger.GetOrCreatePerformance(ctx, "breakout", "daily")
	if perf.ExecutedSignals != 1 || perf.WinningTrades != 0 {
		t.Fatalf("expected one losing trade learned, got %+v", perf)
	}
}
