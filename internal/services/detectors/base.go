package detectors

import (
	"fmt"
	"math"

	"SwingDesk/internal/domain/models"
	domsvc "SwingDesk/internal/domain/service"
)

// Detector identifiers. They key performance rows and trust weights.
const (
	TrendCrossoverID     = "trend_crossover"
	MomentumDivergenceID = "momentum_divergence"
	LevelBreakoutID      = "level_breakout"
	VolumeSurgeID        = "volume_surge"
)

// AllIDs lists the built-in detectors in evaluation order.
var AllIDs = []string{TrendCrossoverID, MomentumDivergenceID, LevelBreakoutID, VolumeSurgeID}

// New builds the named detectors with default parameters on the given timeframe.
func New(ids []string, timeframe string) ([]domsvc.Detector, error) {
	if len(ids) == 0 {
		ids = AllIDs
	}
	out := make([]domsvc.Detector, 0, len(ids))
	for _, id := range ids {
		switch id {
		case TrendCrossoverID:
			p := DefaultTrendCrossoverParams()
			p.Timeframe = timeframe
			out = append(out, NewTrendCrossover(p))
		case MomentumDivergenceID:
			p := DefaultMomentumDivergenceParams()
			p.Timeframe = timeframe
			out = append(out, NewMomentumDivergence(p))
		case LevelBreakoutID:
			p := DefaultLevelBreakoutParams()
			p.Timeframe = timeframe
			out = append(out, NewLevelBreakout(p))
		case VolumeSurgeID:
			p := DefaultVolumeSurgeParams()
			p.Timeframe = timeframe
			out = append(out, NewVolumeSurge(p))
		default:
			return nil, fmt.Errorf("unknown detector %q", id)
		}
	}
	return out, nil
}

// MinLookback returns the shortest minimum series length among ds, or zero
// when none of them report one.
func MinLookback(ds []domsvc.Detector) int {
	shortest := 0
	for _, d := range ds {
		m, ok := d.(interface{ MinBars() int })
		if ok && (shortest == 0 || m.MinBars() < shortest) {
			shortest = m.MinBars()
		}
	}
	return shortest
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func signal(id, tf string, dir models.Direction, strength, entry, target, stop float64, meta map[string]any) *models.Signal {
	if tf == "" {
		tf = models.TimeframeDaily
	}
	return &models.Signal{
		DetectorID: id,
		Direction:  dir,
		Strength:   models.Strength(math.Max(0, math.Min(1, strength))),
		Entry:      models.Price(entry),
		Target:     models.Price(target),
		Stop:       models.Price(stop),
		Timeframe:  tf,
		Metadata:   meta,
	}
}
