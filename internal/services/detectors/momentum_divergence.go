package detectors

import (
	"math"

	"SwingDesk/internal/domain/models"
	domsvc "SwingDesk/internal/domain/service"
	"SwingDesk/internal/services/features"
)

// MomentumDivergenceParams configures MomentumDivergence.
type MomentumDivergenceParams struct {
	RSIPeriod   int
	ATRPeriod   int
	Lookback    int
	PivotWindow int
	Oversold    float64
	Overbought  float64
	ZoneWidth   float64
	TargetATR   float64
	StopATR     float64
	Timeframe   string
}

func DefaultMomentumDivergenceParams() MomentumDivergenceParams {
	return MomentumDivergenceParams{
		RSIPeriod:   14,
		ATRPeriod:   14,
		Lookback:    25,
		PivotWindow: 3,
		Oversold:    40,
		Overbought:  60,
		ZoneWidth:   15,
		TargetATR:   2.5,
		StopATR:     0.3,
		Timeframe:   models.TimeframeDaily,
	}
}

// MomentumDivergence compares the last two swing pivots of the lookback
// window against RSI: price making a lower low while RSI makes a higher low
// is bullish, and the mirror is bearish.
type MomentumDivergence struct{ p MomentumDivergenceParams }

func NewMomentumDivergence(p MomentumDivergenceParams) *MomentumDivergence {
	return &MomentumDivergence{p: p}
}

func (d *MomentumDivergence) ID() string { return MomentumDivergenceID }

// MinBars is the shortest series Evaluate will look at.
func (d *MomentumDivergence) MinBars() int { return d.p.Lookback + d.p.RSIPeriod }

func (d *MomentumDivergence) Evaluate(series []models.Candle) *models.Signal {
	n := len(series)
	if n < d.MinBars() {
		return nil
	}
	closes := features.Closes(series)
	rsi := features.RSI(closes, d.p.RSIPeriod)
	atr := features.Last(features.ATR(series, d.p.ATRPeriod))
	lastClose := closes[n-1]
	if !finite(atr, rsi[n-1]) {
		return nil
	}

	off := n - d.p.Lookback
	lows := features.Lows(series)[off:]
	highs := features.Highs(series)[off:]
	rsiW := rsi[off:]
	for _, v := range rsiW {
		if math.IsNaN(v) {
			return nil
		}
	}

	if pl := features.PivotLows(lows, d.p.PivotWindow); len(pl) >= 2 {
		p1, p2 := pl[len(pl)-2], pl[len(pl)-1]
		if lows[p2] < lows[p1] && rsiW[p2] > rsiW[p1] && rsiW[p2] < d.p.Oversold+d.p.ZoneWidth {
			return signal(d.ID(), d.p.Timeframe, models.Long, (rsiW[p2]-rsiW[p1])/15,
				lastClose, lastClose+d.p.TargetATR*atr, lows[p2]-d.p.StopATR*atr, d.meta(rsiW, p1, p2, "bullish_divergence"))
		}
	}

	if ph := features.PivotHighs(highs, d.p.PivotWindow); len(ph) >= 2 {
		p1, p2 := ph[len(ph)-2], ph[len(ph)-1]
		if highs[p2] > highs[p1] && rsiW[p2] < rsiW[p1] && rsiW[p2] > d.p.Overbought-d.p.ZoneWidth {
			return signal(d.ID(), d.p.Timeframe, models.Short, (rsiW[p1]-rsiW[p2])/15,
				lastClose, lastClose-d.p.TargetATR*atr, highs[p2]+d.p.StopATR*atr, d.meta(rsiW, p1, p2, "bearish_divergence"))
		}
	}
	return nil
}

func (d *MomentumDivergence) meta(rsi []float64, p1, p2 int, kind string) map[string]any {
	return map[string]any{
		"rsi_current": models.RoundTo(rsi[len(rsi)-1], 1),
		"rsi_p1":      models.RoundTo(rsi[p1], 1),
		"rsi_p2":      models.RoundTo(rsi[p2], 1),
		"type":        kind,
	}
}

var _ domsvc.Detector = (*MomentumDivergence)(nil)
