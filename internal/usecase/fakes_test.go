package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
)

var testNow = time.Date(2024, 6, 10, 15, 30, 0, 0, time.UTC)

// stubDetector returns the signal configured for the symbol of the last bar.
type stubDetector struct {
	id       string
	bySymbol map[string]*models.Signal
	panics   bool
}

func (d *stubDetector) ID() string { return d.id }

func (d *stubDetector) Evaluate(series []models.Candle) *models.Signal {
	if d.panics {
		panic("index out of range")
	}
	if len(series) == 0 {
		return nil
	}
	s, ok := d.bySymbol[series[len(series)-1].Symbol]
	if !ok || s == nil {
		return nil
	}
	cp := *s
	cp.DetectorID = d.id
	return &cp
}

func longSignal(strength, entry, target, stop float64) *models.Signal {
	return &models.Signal{Direction: models.Long, Strength: strength, Entry: entry, Target: target, Stop: stop, Timeframe: models.TimeframeDaily}
}

func shortSignal(strength, entry, target, stop float64) *models.Signal {
	return &models.Signal{Direction: models.Short, Strength: strength, Entry: entry, Target: target, Stop: stop, Timeframe: models.TimeframeDaily}
}

func testBars(sym string, n int) []models.Candle {
	out := make([]models.Candle, n)
	start := testNow.AddDate(0, 0, -n)
	for i := range out {
		px := 10 + float64(i)*0.1
		out[i] = models.Candle{
			Symbol: sym,
			Time:   start.AddDate(0, 0, i),
			Open:   px,
			High:   px + 0.5,
			Low:    px - 0.5,
			Close:  px + 0.2,
			Volume: 1000,
		}
	}
	return out
}

type fakeMarket struct {
	bars map[string][]models.Candle
	errs map[string]error
}

func (f *fakeMarket) GetCandles(_ context.Context, symbol string, _, _ time.Time, _ domrepo.Interval) ([]models.Candle, error) {
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	return f.bars[symbol], nil
}

type recordingSink struct {
	mu      sync.Mutex
	closed  []int64
	skipped []int64
}

func (s *recordingSink) PositionClosed(_ context.Context, p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, p.ID)
	return nil
}

func (s *recordingSink) SuggestionSkipped(_ context.Context, sug *models.Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped = append(s.skipped, sug.ID)
	return nil
}

type fakeBroker struct {
	holdings  []models.ExternalHolding
	positions []models.ExternalHolding
	funds     []float64
	err       error
	calls     int
	// duringFetch runs inside Holdings, while a reconcile pass waits on the broker.
	duringFetch func()
}

func (b *fakeBroker) Holdings(context.Context) ([]models.ExternalHolding, error) {
	if b.duringFetch != nil {
		b.duringFetch()
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.holdings, nil
}

func (b *fakeBroker) Positions(context.Context) ([]models.ExternalHolding, error) {
	return b.positions, nil
}

func (b *fakeBroker) AvailableFunds(context.Context) (float64, error) {
	if len(b.funds) == 0 {
		return 0, errors.New("no funds configured")
	}
	i := b.calls
	if i >= len(b.funds) {
		i = len(b.funds) - 1
	}
	b.calls++
	return b.funds[i], nil
}

type fakeQuotes struct {
	prices map[string]float64
}

func (q *fakeQuotes) GetQuotes(_ context.Context, symbols []string) (map[string]models.Quote, error) {
	out := make(map[string]models.Quote, len(symbols))
	for _, s := range symbols {
		if px, ok := q.prices[s]; ok {
			out[s] = models.Quote{Symbol: s, LastPrice: px, Time: testNow}
		}
	}
	return out, nil
}

func int64p(v int64) *int64 { return &v }
