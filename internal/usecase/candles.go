package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
)

// CandlesUseCase fetches bar series and normalizes them for the detectors.
type CandlesUseCase struct {
	source domrepo.MarketData
}

func NewCandlesUseCase(source domrepo.MarketData) *CandlesUseCase {
	return &CandlesUseCase{source: source}
}

type GetCandlesParams struct {
	Symbol   string
	From     time.Time
	To       time.Time
	Interval domrepo.Interval
	Limit    int
}

type GetCandlesResult struct {
	Symbol   string
	Interval string
	From     time.Time
	To       time.Time
	Count    int
	Candles  []models.Candle
}

// GetCandles returns ascending, de-duplicated bars. Provider failures and
// malformed series are reported as ErrDataUnavailable.
func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Interval == "" {
		p.Interval = domrepo.DefaultInterval()
	}
	if p.Limit <= 0 {
		p.Limit = 5000
	}

	candles, err := uc.source.GetCandles(ctx, p.Symbol, p.From, p.To, p.Interval)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrDataUnavailable, p.Symbol, err)
	}
	candles = normalize(candles)
	if err := models.ValidateSeries(candles); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrDataUnavailable, p.Symbol, err)
	}
	if len(candles) > p.Limit {
		candles = candles[len(candles)-p.Limit:]
	}

	return &GetCandlesResult{
		Symbol:   p.Symbol,
		Interval: string(p.Interval),
		From:     p.From,
		To:       p.To,
		Count:    len(candles),
		Candles:  candles,
	}, nil
}

// normalize sorts by time and keeps the last bar seen for a timestamp.
func normalize(candles []models.Candle) []models.Candle {
	out := append([]models.Candle(nil), candles...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	n := 0
	for i := range out {
		if n > 0 && out[n-1].Time.Equal(out[i].Time) {
			out[n-1] = out[i]
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}
