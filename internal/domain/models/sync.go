package models

import "time"

// ExternalHolding is one row of broker-reported holdings or positions.
type ExternalHolding struct {
	Symbol    string  `json:"symbol"`
	Quantity  int     `json:"quantity"`
	AvgPrice  float64 `json:"avg_price"`
	LastPrice float64 `json:"last_price"`
}

// SyncedPosition describes a position created or closed by a reconcile pass.
type SyncedPosition struct {
	PositionID int64   `json:"position_id"`
	Instrument string  `json:"instrument"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
	PnL        float64 `json:"pnl,omitempty"`
	PnLPct     float64 `json:"pnl_pct,omitempty"`
}

// SyncResult is the outcome of one reconcile pass.
type SyncResult struct {
	RunID           string           `json:"run_id"`
	At              time.Time        `json:"at"`
	NewPositions    []SyncedPosition `json:"new_positions"`
	ClosedPositions []SyncedPosition `json:"closed_positions"`
	FundBalance     *float64         `json:"fund_balance,omitempty"`
	FundChange      float64          `json:"fund_change"`
	FundChanged     bool             `json:"fund_changed"`
	Errors          []string         `json:"errors"`
}

// HasPositionChanges reports whether the ledger was modified.
func (r *SyncResult) HasPositionChanges() bool {
	return len(r.NewPositions) > 0 || len(r.ClosedPositions) > 0
}

// HasFundChange reports whether the balance moved beyond the noise threshold.
func (r *SyncResult) HasFundChange() bool { return r.FundChanged }

// OutcomeEvent is the wire form of a learning input.
type OutcomeEvent struct {
	Kind         string    `json:"kind"`
	PositionID   int64     `json:"position_id,omitempty"`
	SuggestionID int64     `json:"suggestion_id,omitempty"`
	At           time.Time `json:"at"`
}

// Outcome event kinds.
const (
	OutcomePositionClosed    = "position_closed"
	OutcomeSuggestionSkipped = "suggestion_skipped"
)
