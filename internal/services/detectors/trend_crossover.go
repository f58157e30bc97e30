package detectors

import (
	"math"

	"SwingDesk/internal/domain/models"
	domsvc "SwingDesk/internal/domain/service"
	"SwingDesk/internal/services/features"
)

// TrendCrossoverParams configures TrendCrossover.
type TrendCrossoverParams struct {
	Fast      int
	Slow      int
	ATRPeriod int
	SwingBars int
	TargetATR float64
	StopATR   float64
	Timeframe string
}

func DefaultTrendCrossoverParams() TrendCrossoverParams {
	return TrendCrossoverParams{Fast: 20, Slow: 50, ATRPeriod: 14, SwingBars: 5, TargetATR: 2.0, StopATR: 0.5, Timeframe: models.TimeframeDaily}
}

// TrendCrossover fires when the fast EMA crosses the slow EMA on the last bar
// and the close confirms beyond the fast EMA.
type TrendCrossover struct{ p TrendCrossoverParams }

func NewTrendCrossover(p TrendCrossoverParams) *TrendCrossover { return &TrendCrossover{p: p} }

func (d *TrendCrossover) ID() string { return TrendCrossoverID }

// MinBars is the shortest series Evaluate will look at.
func (d *TrendCrossover) MinBars() int { return d.p.Slow + d.p.SwingBars }

func (d *TrendCrossover) Evaluate(series []models.Candle) *models.Signal {
	n := len(series)
	if n < d.MinBars() {
		return nil
	}
	closes := features.Closes(series)
	fast := features.EMA(closes, d.p.Fast)
	slow := features.EMA(closes, d.p.Slow)
	atr := features.Last(features.ATR(series, d.p.ATRPeriod))

	lf, ls := fast[n-1], slow[n-1]
	pf, ps := fast[n-2], slow[n-2]
	if !finite(lf, ls, pf, ps, atr) || ls == 0 {
		return nil
	}
	lastClose := closes[n-1]

	var (
		dir          models.Direction
		target, stop float64
	)
	// swing extreme over the bars preceding the crossover bar
	from, to := n-1-d.p.SwingBars, n-1
	switch {
	case pf <= ps && lf > ls && lastClose > lf:
		dir = models.Long
		stop = features.Lowest(features.Lows(series), from, to) - d.p.StopATR*atr
		target = lastClose + d.p.TargetATR*atr
	case pf >= ps && lf < ls && lastClose < lf:
		dir = models.Short
		stop = features.Highest(features.Highs(series), from, to) + d.p.StopATR*atr
		target = lastClose - d.p.TargetATR*atr
	default:
		return nil
	}

	gap := math.Abs(lf-ls) / ls
	return signal(d.ID(), d.p.Timeframe, dir, gap*50, lastClose, target, stop, map[string]any{
		"ema_fast": models.Price(lf),
		"ema_slow": models.Price(ls),
		"atr":      models.Price(atr),
		"gap_pct":  models.Price(gap * 100),
	})
}

var _ domsvc.Detector = (*TrendCrossover)(nil)
