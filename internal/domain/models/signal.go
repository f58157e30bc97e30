package models

// Direction is the side of a trade idea.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Valid reports whether d is LONG or SHORT.
func (d Direction) Valid() bool { return d == Long || d == Short }

// Timeframe names the bar resolution a signal was produced on.
const TimeframeDaily = "daily"

// Signal is one detector's opinion about an instrument. Treat as immutable.
type Signal struct {
	DetectorID string         `json:"detector_id"`
	Direction  Direction      `json:"direction"`
	Strength   float64        `json:"strength"`
	Entry      float64        `json:"entry"`
	Target     float64        `json:"target"`
	Stop       float64        `json:"stop"`
	Timeframe  string         `json:"timeframe"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RiskReward returns reward over risk for the signal's direction, or 0 when
// the stop sits on the wrong side of the entry.
func (s *Signal) RiskReward() float64 {
	var risk, reward float64
	if s.Direction == Long {
		risk = s.Entry - s.Stop
		reward = s.Target - s.Entry
	} else {
		risk = s.Stop - s.Entry
		reward = s.Entry - s.Target
	}
	if risk <= 0 {
		return 0
	}
	return reward / risk
}

// Valid reports whether the signal is usable at the given minimum risk/reward.
func (s *Signal) Valid(minRiskReward float64) bool {
	return s != nil && s.Strength > 0 && s.RiskReward() >= minRiskReward
}

// Projection is the persisted form of a signal.
func (s *Signal) Projection() Projection {
	out := make(Projection, len(s.Metadata)+8)
	for k, v := range s.Metadata {
		out[k] = v
	}
	out["detector_id"] = s.DetectorID
	out["direction"] = string(s.Direction)
	out["strength"] = Strength(s.Strength)
	out["entry"] = s.Entry
	out["target"] = s.Target
	out["stop"] = s.Stop
	out["timeframe"] = s.Timeframe
	out["risk_reward"] = Price(s.RiskReward())
	return out
}

// Projection is a flattened signal as stored alongside suggestions.
type Projection map[string]any

// DetectorID returns the producing detector or "".
func (p Projection) DetectorID() string {
	v, _ := p["detector_id"].(string)
	return v
}

// Timeframe returns the stored timeframe or "".
func (p Projection) Timeframe() string {
	v, _ := p["timeframe"].(string)
	return v
}
