package detectors

import (
	"math"

	"SwingDesk/internal/domain/models"
	domsvc "SwingDesk/internal/domain/service"
	"SwingDesk/internal/services/features"
)

// VolumeSurgeParams configures VolumeSurge.
type VolumeSurgeParams struct {
	VolumePeriod   int
	ATRPeriod      int
	MinVolumeRatio float64
	MinBodyRatio   float64
	TargetATR      float64
	StopATR        float64
	Timeframe      string
}

func DefaultVolumeSurgeParams() VolumeSurgeParams {
	return VolumeSurgeParams{VolumePeriod: 20, ATRPeriod: 14, MinVolumeRatio: 2.0, MinBodyRatio: 0.6, TargetATR: 2.0, StopATR: 0.2, Timeframe: models.TimeframeDaily}
}

// VolumeSurge fires on a decisive bar traded at a multiple of average volume.
// Direction follows the bar's body.
type VolumeSurge struct{ p VolumeSurgeParams }

func NewVolumeSurge(p VolumeSurgeParams) *VolumeSurge { return &VolumeSurge{p: p} }

func (d *VolumeSurge) ID() string { return VolumeSurgeID }

// MinBars is the shortest series Evaluate will look at.
func (d *VolumeSurge) MinBars() int { return d.p.VolumePeriod + 5 }

func (d *VolumeSurge) Evaluate(series []models.Candle) *models.Signal {
	n := len(series)
	if n < d.MinBars() {
		return nil
	}
	atr := features.Last(features.ATR(series, d.p.ATRPeriod))
	volMA := features.Last(features.SMA(features.Volumes(series), d.p.VolumePeriod))
	if !finite(atr, volMA) || volMA <= 0 {
		return nil
	}
	last := series[n-1]
	ratio := last.Volume / volMA
	if ratio < d.p.MinVolumeRatio {
		return nil
	}
	rng := last.High - last.Low
	if rng <= 0 {
		return nil
	}
	body := math.Abs(last.Close - last.Open)
	if body/rng < d.p.MinBodyRatio {
		return nil
	}

	meta := map[string]any{
		"vol_ratio": models.Price(ratio),
		"body_pct":  models.RoundTo(body/rng*100, 1),
		"atr":       models.Price(atr),
	}
	strength := (ratio-d.p.MinVolumeRatio)/3 + 0.5
	if last.Close > last.Open {
		return signal(d.ID(), d.p.Timeframe, models.Long, strength, last.Close,
			last.Close+d.p.TargetATR*atr, last.Low-d.p.StopATR*atr, meta)
	}
	return signal(d.ID(), d.p.Timeframe, models.Short, strength, last.Close,
		last.Close-d.p.TargetATR*atr, last.High+d.p.StopATR*atr, meta)
}

var _ domsvc.Detector = (*VolumeSurge)(nil)
