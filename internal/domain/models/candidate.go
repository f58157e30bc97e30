package models

import "time"

// Candidate is a ranked, risk-bounded trade idea built from agreeing signals.
type Candidate struct {
	Instrument     string    `json:"instrument"`
	Direction      Direction `json:"direction"`
	CompositeScore float64   `json:"composite_score"`
	Entry          float64   `json:"entry"`
	Target         float64   `json:"target"`
	Stop           float64   `json:"stop"`
	RiskReward     float64   `json:"risk_reward"`
	Signals        []Signal  `json:"contributing_signals"`
	Timeframe      string    `json:"timeframe"`
}

// Projections returns the persisted form of the contributing signals.
func (c *Candidate) Projections() []Projection {
	out := make([]Projection, 0, len(c.Signals))
	for i := range c.Signals {
		out = append(out, c.Signals[i].Projection())
	}
	return out
}

// ScreeningReport counts what happened to each instrument of a run.
type ScreeningReport struct {
	Universe          int            `json:"universe"`
	FetchErrors       int            `json:"fetch_errors"`
	InsufficientBars  int            `json:"insufficient_bars"`
	NoSignal          int            `json:"no_signal"`
	RiskRewardFail    map[string]int `json:"rr_fail"`
	ConsensusConflict int            `json:"consensus_conflict"`
	DetectorFailures  int            `json:"detector_failures"`
	Candidates        int            `json:"candidates"`
}

// ScreeningResult is the output of one screening run.
type ScreeningResult struct {
	RunID          string            `json:"run_id"`
	StartedAt      time.Time         `json:"started_at"`
	Duration       time.Duration     `json:"duration"`
	WeightsVersion int64             `json:"weights_version"`
	Candidates     []Candidate       `json:"candidates"`
	Report         ScreeningReport   `json:"report"`
	Errors         map[string]string `json:"errors,omitempty"`
}
