package models

import (
	"math"
	"time"
)

// SuggestionStatus is the lifecycle state of a published candidate.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "PENDING"
	SuggestionExecuted SuggestionStatus = "EXECUTED"
	SuggestionSkipped  SuggestionStatus = "SKIPPED"
	SuggestionExpired  SuggestionStatus = "EXPIRED"
)

// Suggestion is a candidate that was sized and offered for execution.
type Suggestion struct {
	ID             int64            `json:"id"`
	Date           time.Time        `json:"date"`
	Instrument     string           `json:"instrument"`
	Direction      Direction        `json:"direction"`
	Entry          float64          `json:"entry"`
	Target         float64          `json:"target"`
	Stop           float64          `json:"stop"`
	SuggestedQty   int              `json:"suggested_qty"`
	RiskAmount     float64          `json:"risk_amount"`
	RiskReward     float64          `json:"risk_reward"`
	Signals        []Projection     `json:"signals"`
	CompositeScore float64          `json:"composite_score"`
	Timeframe      string           `json:"timeframe"`
	Status         SuggestionStatus `json:"status"`
	RespondedAt    *time.Time       `json:"responded_at,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	LearnedAt      *time.Time       `json:"learned_at,omitempty"`
}

// IsPending reports whether the suggestion still awaits a response.
func (s *Suggestion) IsPending() bool { return s.Status == SuggestionPending }

// Respond moves a pending suggestion to a terminal status.
func (s *Suggestion) Respond(status SuggestionStatus, at time.Time) error {
	if !s.IsPending() {
		return ErrSuggestionState
	}
	s.Status = status
	s.RespondedAt = &at
	return nil
}

// PositionSize returns the fixed-risk share count for a trade. A non-positive
// risk per share yields 0; otherwise at least one share.
func PositionSize(capital, riskPct, entry, stop float64) int {
	rps := math.Abs(entry - stop)
	if rps <= 0 {
		return 0
	}
	qty := int(math.Floor(capital * riskPct / rps))
	if qty < 1 {
		qty = 1
	}
	return qty
}

// NewSuggestion sizes a candidate into a pending suggestion.
func NewSuggestion(c *Candidate, capital, riskPct float64, at time.Time) *Suggestion {
	qty := PositionSize(capital, riskPct, c.Entry, c.Stop)
	return &Suggestion{
		Date:           at,
		Instrument:     c.Instrument,
		Direction:      c.Direction,
		Entry:          c.Entry,
		Target:         c.Target,
		Stop:           c.Stop,
		SuggestedQty:   qty,
		RiskAmount:     Price(math.Abs(c.Entry-c.Stop) * float64(qty)),
		RiskReward:     Price(c.RiskReward),
		Signals:        c.Projections(),
		CompositeScore: Strength(c.CompositeScore),
		Timeframe:      c.Timeframe,
		Status:         SuggestionPending,
	}
}
