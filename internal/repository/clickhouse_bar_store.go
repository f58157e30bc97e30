package repository

import (
	"context"
	"fmt"
	"time"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	pkgch "SwingDesk/pkg/clickhouse"
	applogger "SwingDesk/pkg/logger"
)

// BarSchema returns the DDL for one bar table per interval in db.
// ReplacingMergeTree keeps the latest version of a (symbol, ts) row so
// re-inserting a fetched window is harmless.
func BarSchema(db string) []string {
	ivs := []domrepo.Interval{domrepo.IntervalDay, domrepo.IntervalWeek, domrepo.IntervalHour}
	out := make([]string, len(ivs))
	for i, iv := range ivs {
		out[i] = barTableDDL(barTable(db, iv))
	}
	return out
}

func barTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
        symbol LowCardinality(String),
        ts DateTime64(3, 'UTC'),
        open Float64,
        high Float64,
        low Float64,
        close Float64,
        volume Float64,
        inserted_at DateTime64(3, 'UTC') DEFAULT now64(3)
    ) ENGINE = ReplacingMergeTree(inserted_at)
    ORDER BY (symbol, ts)`, table)
}

// CHBarStore stores and serves historical bars from ClickHouse.
type CHBarStore struct {
	ch *pkgch.Client
	l  *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, l *applogger.Logger) *CHBarStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHBarStore{ch: ch, l: l}
}

func (s *CHBarStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, iv domrepo.Interval) ([]models.Candle, error) {
	start := time.Now()
	table, err := tableForInterval(s.ch.Database(), iv)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT ts, symbol, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	rows, err := s.ch.DB().QueryContext(ctx, fmt.Sprintf(qtpl, table), symbol, from, to)
	if err != nil {
		s.l.Error("clickhouse get_candles query error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 256)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Time, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse get_candles ok",
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

var barColumns = []string{"symbol", "ts", "open", "high", "low", "close", "volume"}

// StoreBars inserts bars in chunks of 2000 rows.
func (s *CHBarStore) StoreBars(ctx context.Context, symbol string, iv domrepo.Interval, bars []models.Candle) error {
	if len(bars) == 0 {
		return nil
	}
	table, err := tableForInterval(s.ch.Database(), iv)
	if err != nil {
		return err
	}
	rows := make([][]any, len(bars))
	for i, b := range bars {
		rows[i] = []any{symbol, b.Time.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume}
	}
	if err := s.ch.InsertRows(ctx, table, barColumns, rows, 2000); err != nil {
		return fmt.Errorf("store bars: %w", err)
	}
	return nil
}

func (s *CHBarStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func barTable(db string, iv domrepo.Interval) string {
	return db + ".bars_" + string(iv)
}

func tableForInterval(db string, iv domrepo.Interval) (string, error) {
	if !domrepo.IsValidInterval(iv) {
		return "", fmt.Errorf("unsupported interval: %s", iv)
	}
	return barTable(db, iv), nil
}

// ReadThroughMarketData serves bars from the local store and falls back to
// an upstream provider when the stored window is empty or stale, writing
// the fetched bars back.
type ReadThroughMarketData struct {
	store    *CHBarStore
	upstream domrepo.MarketData
	l        *applogger.Logger
}

var _ domrepo.MarketData = (*ReadThroughMarketData)(nil)

func NewReadThroughMarketData(store *CHBarStore, upstream domrepo.MarketData, l *applogger.Logger) *ReadThroughMarketData {
	if l == nil {
		l = applogger.Nop()
	}
	return &ReadThroughMarketData{store: store, upstream: upstream, l: l}
}

func (m *ReadThroughMarketData) GetCandles(ctx context.Context, symbol string, from, to time.Time, iv domrepo.Interval) ([]models.Candle, error) {
	cached, err := m.store.GetCandles(ctx, symbol, from, to, iv)
	if err != nil {
		m.l.Warn("bars.cache_read_failed", applogger.String("symbol", symbol), applogger.Error(err))
	} else if !stale(cached, to, iv) {
		return cached, nil
	}
	if m.upstream == nil {
		return cached, err
	}

	fresh, err := m.upstream.GetCandles(ctx, symbol, from, to, iv)
	if err != nil {
		return nil, err
	}
	if err := m.store.StoreBars(ctx, symbol, iv, fresh); err != nil {
		m.l.Warn("bars.cache_write_failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
	return fresh, nil
}

// stale reports whether the newest stored bar is too old to serve a
// window ending at to. Weekends are absorbed by the daily allowance.
func stale(bars []models.Candle, to time.Time, iv domrepo.Interval) bool {
	if len(bars) == 0 {
		return true
	}
	allow := 4 * 24 * time.Hour
	switch iv {
	case domrepo.IntervalWeek:
		allow = 10 * 24 * time.Hour
	case domrepo.IntervalHour:
		allow = 3 * 24 * time.Hour
	}
	return to.Sub(bars[len(bars)-1].Time) > allow
}
