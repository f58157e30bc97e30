package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
)

// MemoryLedger is an in-process LedgerStore. Transactions are serialized and
// work on a copy that replaces the committed state only when fn succeeds.
type MemoryLedger struct {
	mu   sync.Mutex
	data *ledgerData
}

type ledgerData struct {
	positions   map[int64]models.Position
	suggestions map[int64]models.Suggestion
	perf        map[string]models.DetectorPerformance
	nextPos     int64
	nextSug     int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{data: &ledgerData{
		positions:   map[int64]models.Position{},
		suggestions: map[int64]models.Suggestion{},
		perf:        map[string]models.DetectorPerformance{},
	}}
}

func (d *ledgerData) clone() *ledgerData {
	c := &ledgerData{
		positions:   make(map[int64]models.Position, len(d.positions)),
		suggestions: make(map[int64]models.Suggestion, len(d.suggestions)),
		perf:        make(map[string]models.DetectorPerformance, len(d.perf)),
		nextPos:     d.nextPos,
		nextSug:     d.nextSug,
	}
	for k, v := range d.positions {
		c.positions[k] = v
	}
	for k, v := range d.suggestions {
		c.suggestions[k] = v
	}
	for k, v := range d.perf {
		c.perf[k] = v
	}
	return c
}

func (m *MemoryLedger) WithinTx(ctx context.Context, fn func(tx domrepo.LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{data: m.data.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data = tx.data
	return nil
}

func (m *MemoryLedger) run(fn func(tx *memTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{data: m.data})
}

func (m *MemoryLedger) Health(context.Context) error { return nil }
func (m *MemoryLedger) Close() error                 { return nil }

func (m *MemoryLedger) LockInstruments(context.Context, ...string) error { return nil }

func (m *MemoryLedger) OpenInstruments(ctx context.Context) (out []string, err error) {
	err = m.run(func(tx *memTx) error { out, err = tx.OpenInstruments(ctx); return err })
	return out, err
}

func (m *MemoryLedger) OpenPositions(ctx context.Context) (out []models.Position, err error) {
	err = m.run(func(tx *memTx) error { out, err = tx.OpenPositions(ctx); return err })
	return out, err
}

func (m *MemoryLedger) OpenPosition(ctx context.Context, instrument string) (out *models.Position, err error) {
	err = m.run(func(tx *memTx) error { out, err = tx.OpenPosition(ctx, instrument); return err })
	return out, err
}

func (m *MemoryLedger) GetPosition(ctx context.Context, id int64) (out *models.Position, err error) {
	err = m.run(func(tx *memTx) error { out, err = tx.GetPosition(ctx, id); return err })
	return out, err
}

func (m *MemoryLedger) InsertPosition(ctx context.Context, p *models.Position) error {
	return m.run(func(tx *memTx) error { return tx.InsertPosition(ctx, p) })
}

func (m *MemoryLedger) UpdatePosition(ctx context.Context, p *models.Position) error {
	return m.run(func(tx *memTx) error { return tx.UpdatePosition(ctx, p) })
}

func (m *MemoryLedger) GetSuggestion(ctx context.Context, id int64) (out *models.Suggestion, err error) {
	err = m.run(func(tx *memTx) error { out, err = tx.GetSuggestion(ctx, id); return err })
	return out, err
}

func (m *MemoryLedger) InsertSuggestion(ctx context.Context, s *models.Suggestion) error {
	return m.run(func(tx *memTx) error { return tx.InsertSuggestion(ctx, s) })
}

func (m *MemoryLedger) UpdateSuggestion(ctx context.Context, s *models.Suggestion) error {
	return m.run(func(tx *memTx) error { return tx.UpdateSuggestion(ctx, s) })
}

func (m *MemoryLedger) ExpireSuggestions(ctx context.Context, before, at time.Time) (n int, err error) {
	err = m.run(func(tx *memTx) error { n, err = tx.ExpireSuggestions(ctx, before, at); return err })
	return n, err
}

func (m *MemoryLedger) GetOrCreatePerformance(ctx context.Context, detectorID, timeframe string) (out *models.DetectorPerformance, err error) {
	err = m.run(func(tx *memTx) error { out, err = tx.GetOrCreatePerformance(ctx, detectorID, timeframe); return err })
	return out, err
}

func (m *MemoryLedger) ListPerformance(ctx context.Context) (out []models.DetectorPerformance, err error) {
	err = m.run(func(tx *memTx) error { out, err = tx.ListPerformance(ctx); return err })
	return out, err
}

func (m *MemoryLedger) SavePerformance(ctx context.Context, p *models.DetectorPerformance) error {
	return m.run(func(tx *memTx) error { return tx.SavePerformance(ctx, p) })
}

func (m *MemoryLedger) Savepoint(ctx context.Context, fn func(tx domrepo.LedgerTx) error) error {
	return m.WithinTx(ctx, fn)
}

type memTx struct {
	data *ledgerData
}

func (t *memTx) LockInstruments(context.Context, ...string) error { return nil }

func (t *memTx) OpenInstruments(ctx context.Context) ([]string, error) {
	ps, _ := t.OpenPositions(ctx)
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Instrument)
	}
	return out, nil
}

func (t *memTx) OpenPositions(context.Context) ([]models.Position, error) {
	out := make([]models.Position, 0)
	for _, p := range t.data.positions {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) OpenPosition(_ context.Context, instrument string) (*models.Position, error) {
	for _, p := range t.data.positions {
		if p.IsOpen() && p.Instrument == instrument {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) GetPosition(_ context.Context, id int64) (*models.Position, error) {
	p, ok := t.data.positions[id]
	if !ok {
		return nil, models.ErrPositionNotFound
	}
	return &p, nil
}

func (t *memTx) InsertPosition(ctx context.Context, p *models.Position) error {
	if p.IsOpen() {
		if existing, _ := t.OpenPosition(ctx, p.Instrument); existing != nil {
			return models.ErrPositionExists
		}
	}
	t.data.nextPos++
	p.ID = t.data.nextPos
	t.data.positions[p.ID] = *p
	return nil
}

func (t *memTx) UpdatePosition(_ context.Context, p *models.Position) error {
	if _, ok := t.data.positions[p.ID]; !ok {
		return models.ErrPositionNotFound
	}
	t.data.positions[p.ID] = *p
	return nil
}

func (t *memTx) GetSuggestion(_ context.Context, id int64) (*models.Suggestion, error) {
	s, ok := t.data.suggestions[id]
	if !ok {
		return nil, models.ErrSuggestionNotFound
	}
	return &s, nil
}

func (t *memTx) InsertSuggestion(_ context.Context, s *models.Suggestion) error {
	t.data.nextSug++
	s.ID = t.data.nextSug
	t.data.suggestions[s.ID] = *s
	return nil
}

func (t *memTx) UpdateSuggestion(_ context.Context, s *models.Suggestion) error {
	if _, ok := t.data.suggestions[s.ID]; !ok {
		return models.ErrSuggestionNotFound
	}
	t.data.suggestions[s.ID] = *s
	return nil
}

func (t *memTx) ExpireSuggestions(_ context.Context, before, at time.Time) (int, error) {
	n := 0
	for id, s := range t.data.suggestions {
		if s.IsPending() && s.Date.Before(before) {
			_ = s.Respond(models.SuggestionExpired, at)
			t.data.suggestions[id] = s
			n++
		}
	}
	return n, nil
}

func (t *memTx) GetOrCreatePerformance(_ context.Context, detectorID, timeframe string) (*models.DetectorPerformance, error) {
	key := models.WeightKey(detectorID, timeframe)
	if p, ok := t.data.perf[key]; ok {
		return &p, nil
	}
	p := models.NewDetectorPerformance(detectorID, timeframe)
	t.data.perf[key] = *p
	return p, nil
}

func (t *memTx) ListPerformance(context.Context) ([]models.DetectorPerformance, error) {
	out := make([]models.DetectorPerformance, 0, len(t.data.perf))
	for _, p := range t.data.perf {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return models.WeightKey(out[i].DetectorID, out[i].Timeframe) < models.WeightKey(out[j].DetectorID, out[j].Timeframe)
	})
	return out, nil
}

func (t *memTx) SavePerformance(_ context.Context, p *models.DetectorPerformance) error {
	t.data.perf[models.WeightKey(p.DetectorID, p.Timeframe)] = *p
	return nil
}

func (t *memTx) Savepoint(_ context.Context, fn func(tx domrepo.LedgerTx) error) error {
	inner := &memTx{data: t.data.clone()}
	if err := fn(inner); err != nil {
		return err
	}
	t.data = inner.data
	return nil
}

var (
	_ domrepo.LedgerStore = (*MemoryLedger)(nil)
	_ domrepo.LedgerTx    = (*memTx)(nil)
)
