package detectors

import (
	"SwingDesk/internal/domain/models"
	domsvc "SwingDesk/internal/domain/service"
	"SwingDesk/internal/services/features"
)

// LevelBreakoutParams configures LevelBreakout.
type LevelBreakoutParams struct {
	Lookback       int
	PivotWindow    int
	ATRPeriod      int
	VolumePeriod   int
	MergeTolerance float64
	BreakoutPct    float64
	MinVolumeRatio float64
	TargetATR      float64
	StopATR        float64
	Timeframe      string
}

func DefaultLevelBreakoutParams() LevelBreakoutParams {
	return LevelBreakoutParams{
		Lookback:       60,
		PivotWindow:    5,
		ATRPeriod:      14,
		VolumePeriod:   20,
		MergeTolerance: 0.005,
		BreakoutPct:    0.003,
		MinVolumeRatio: 1.3,
		TargetATR:      2.0,
		StopATR:        0.5,
		Timeframe:      models.TimeframeDaily,
	}
}

// LevelBreakout fires when the close breaks a clustered pivot level with
// volume confirmation. Resistance is scanned highest first, support lowest
// first; the first qualifying level wins.
type LevelBreakout struct{ p LevelBreakoutParams }

func NewLevelBreakout(p LevelBreakoutParams) *LevelBreakout { return &LevelBreakout{p: p} }

func (d *LevelBreakout) ID() string { return LevelBreakoutID }

// MinBars is the shortest series Evaluate will look at.
func (d *LevelBreakout) MinBars() int { return d.p.Lookback + d.p.VolumePeriod }

func (d *LevelBreakout) Evaluate(series []models.Candle) *models.Signal {
	n := len(series)
	if n < d.MinBars() {
		return nil
	}
	atr := features.Last(features.ATR(series, d.p.ATRPeriod))
	volMA := features.Last(features.SMA(features.Volumes(series), d.p.VolumePeriod))
	if !finite(atr, volMA) {
		return nil
	}
	last := series[n-1]
	ratio := 0.0
	if volMA > 0 {
		ratio = last.Volume / volMA
	}
	if ratio < d.p.MinVolumeRatio {
		return nil
	}

	off := n - d.p.Lookback
	highs := features.Highs(series)[off:]
	lows := features.Lows(series)[off:]
	var swingHighs, swingLows []float64
	for _, i := range features.PivotHighs(highs, d.p.PivotWindow) {
		swingHighs = append(swingHighs, highs[i])
	}
	for _, i := range features.PivotLows(lows, d.p.PivotWindow) {
		swingLows = append(swingLows, lows[i])
	}
	resistance := features.ClusterLevels(swingHighs, d.p.MergeTolerance)
	support := features.ClusterLevels(swingLows, d.p.MergeTolerance)
	strength := (ratio-d.p.MinVolumeRatio)/2 + 0.5
	px := last.Close

	for i := len(resistance) - 1; i >= 0; i-- {
		r := resistance[i]
		if px <= r*(1+d.p.BreakoutPct) {
			continue
		}
		target := px + d.p.TargetATR*atr
		found := false
		for _, lv := range resistance {
			if lv > px && (!found || lv < target) {
				target, found = lv, true
			}
		}
		return signal(d.ID(), d.p.Timeframe, models.Long, strength, px, target, r-d.p.StopATR*atr,
			d.meta(r, ratio, "resistance_breakout"))
	}

	for _, s := range support {
		if px >= s*(1-d.p.BreakoutPct) {
			continue
		}
		target := px - d.p.TargetATR*atr
		found := false
		for _, lv := range support {
			if lv < px && (!found || lv > target) {
				target, found = lv, true
			}
		}
		return signal(d.ID(), d.p.Timeframe, models.Short, strength, px, target, s+d.p.StopATR*atr,
			d.meta(s, ratio, "support_breakdown"))
	}
	return nil
}

func (d *LevelBreakout) meta(level, ratio float64, kind string) map[string]any {
	return map[string]any{
		"broken_level": models.Price(level),
		"vol_ratio":    models.Price(ratio),
		"type":         kind,
	}
}

var _ domsvc.Detector = (*LevelBreakout)(nil)
