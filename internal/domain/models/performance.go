package models

import (
	"math"
	"time"
)

// Calibration bounds for detector trust weights.
const (
	DefaultTrustWeight      = 1.0
	MinTrustWeight          = 0.1
	MaxTrustWeight          = 2.0
	TrustWeightStep         = 0.1
	MinCalibrationTrades    = 10
	HighWinRate             = 0.60
	LowWinRate              = 0.35
	HighAvgPnLPct           = 1.5
	LowAvgPnLPct            = -1.0
	DefaultOutcomeSmoothing = 0.1
)

// DetectorPerformance holds the running outcome statistics of one detector on one timeframe.
type DetectorPerformance struct {
	DetectorID      string     `json:"detector_id"`
	Timeframe       string     `json:"timeframe"`
	TotalSignals    int        `json:"total_signals"`
	ExecutedSignals int        `json:"executed_signals"`
	WinningTrades   int        `json:"winning_trades"`
	WinRate         float64    `json:"win_rate"`
	AvgPnLPct       float64    `json:"rolling_avg_pnl_pct"`
	AvgRiskReward   float64    `json:"rolling_avg_risk_reward"`
	AvgHeldDays     float64    `json:"rolling_avg_held_days"`
	TrustWeight     float64    `json:"trust_weight"`
	LastCalibrated  *time.Time `json:"last_calibrated,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewDetectorPerformance returns a zeroed row at the default weight.
func NewDetectorPerformance(detectorID, timeframe string) *DetectorPerformance {
	return &DetectorPerformance{DetectorID: detectorID, Timeframe: timeframe, TrustWeight: DefaultTrustWeight}
}

// RecordOutcome folds one executed trade into the statistics using
// exponential smoothing with the given alpha.
func (p *DetectorPerformance) RecordOutcome(pnlPct, riskReward, heldDays, alpha float64, at time.Time) {
	p.TotalSignals++
	p.ExecutedSignals++
	if pnlPct > 0 {
		p.WinningTrades++
	}
	p.AvgPnLPct = (1-alpha)*p.AvgPnLPct + alpha*pnlPct
	p.AvgRiskReward = (1-alpha)*p.AvgRiskReward + alpha*riskReward
	p.AvgHeldDays = (1-alpha)*p.AvgHeldDays + alpha*heldDays
	p.WinRate = float64(p.WinningTrades) / float64(p.ExecutedSignals)
	p.UpdatedAt = at
}

// RecordSkip counts a signal that fired but was not acted on.
func (p *DetectorPerformance) RecordSkip(at time.Time) {
	p.TotalSignals++
	p.UpdatedAt = at
}

// Calibrate applies one step of the trust-weight rule and reports whether the
// weight changed. Rows with too few executed trades are left alone.
func (p *DetectorPerformance) Calibrate(at time.Time) bool {
	if p.ExecutedSignals < MinCalibrationTrades {
		return false
	}
	old := p.TrustWeight
	next := old
	switch {
	case p.WinRate >= HighWinRate && p.AvgPnLPct >= HighAvgPnLPct:
		next = math.Min(MaxTrustWeight, old+TrustWeightStep)
	case p.WinRate <= LowWinRate || p.AvgPnLPct <= LowAvgPnLPct:
		next = math.Max(MinTrustWeight, old-TrustWeightStep)
	}
	next = RoundTo(next, 2)
	if next == old {
		return false
	}
	p.TrustWeight = next
	p.LastCalibrated = &at
	p.UpdatedAt = at
	return true
}

// WeightKey is the weight map key for a detector on a timeframe.
func WeightKey(detectorID, timeframe string) string {
	return detectorID + "/" + timeframe
}

// WeightSnapshot is an immutable, versioned view of trust weights.
type WeightSnapshot struct {
	Version  int64              `json:"version"`
	Weights  map[string]float64 `json:"weights"`
	LoadedAt time.Time          `json:"loaded_at"`
}

// Weight returns the trust weight for a detector, defaulting to 1.0.
func (s *WeightSnapshot) Weight(detectorID, timeframe string) float64 {
	if s == nil {
		return DefaultTrustWeight
	}
	if w, ok := s.Weights[WeightKey(detectorID, timeframe)]; ok {
		return w
	}
	return DefaultTrustWeight
}

// WeightsFrom builds a weight map from performance rows.
func WeightsFrom(rows []DetectorPerformance) map[string]float64 {
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[WeightKey(r.DetectorID, r.Timeframe)] = r.TrustWeight
	}
	return out
}
