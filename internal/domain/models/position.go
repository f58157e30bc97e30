package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// ExitReason explains why a position was closed.
type ExitReason string

const (
	ExitTargetHit ExitReason = "TARGET_HIT"
	ExitStopHit   ExitReason = "STOP_HIT"
	ExitManual    ExitReason = "MANUAL"
	ExitTrailing  ExitReason = "TRAILING"
	ExitExpired   ExitReason = "EXPIRED"
)

// ParseExitReason validates a reason name.
func ParseExitReason(s string) (ExitReason, error) {
	switch r := ExitReason(s); r {
	case ExitTargetHit, ExitStopHit, ExitManual, ExitTrailing, ExitExpired:
		return r, nil
	}
	return "", fmt.Errorf("unknown exit reason %q", s)
}

// Position is a tracked holding in the internal ledger.
type Position struct {
	ID                int64          `json:"id"`
	SuggestionID      *int64         `json:"suggestion_id,omitempty"`
	Instrument        string         `json:"instrument"`
	Direction         Direction      `json:"direction"`
	EntryPrice        float64        `json:"entry_price"`
	EntryDate         time.Time      `json:"entry_date"`
	Quantity          int            `json:"quantity"`
	CurrentStop       float64        `json:"current_stop"`
	Target            float64        `json:"target"`
	Status            PositionStatus `json:"status"`
	ExitPrice         *float64       `json:"exit_price,omitempty"`
	ExitDate          *time.Time     `json:"exit_date,omitempty"`
	ExitReason        ExitReason     `json:"exit_reason,omitempty"`
	PnL               *float64       `json:"pnl,omitempty"`
	PnLPct            *float64       `json:"pnl_pct,omitempty"`
	HeldDuration      time.Duration  `json:"held_duration"`
	ExternallyCreated bool           `json:"externally_created"`
	Notes             string         `json:"notes,omitempty"`
	// LearnedAt is set once the close has been folded into detector statistics.
	LearnedAt         *time.Time     `json:"learned_at,omitempty"`
}

// IsOpen reports whether the position is still live.
func (p *Position) IsOpen() bool { return p.Status == PositionOpen }

// Invested returns entry price times quantity.
func (p *Position) Invested() float64 { return Notional(p.EntryPrice, p.Quantity) }

// Close moves the position to CLOSED and fills in the realized fields.
// OPEN -> CLOSED is terminal: closing twice returns ErrPositionClosed.
func (p *Position) Close(exitPrice float64, at time.Time, reason ExitReason) error {
	if !p.IsOpen() {
		return ErrPositionClosed
	}
	entry := decimal.NewFromFloat(p.EntryPrice)
	exit := decimal.NewFromFloat(exitPrice)
	qty := decimal.NewFromInt(int64(p.Quantity))

	move := exit.Sub(entry)
	if p.Direction == Short {
		move = entry.Sub(exit)
	}
	pnl := move.Mul(qty)
	pnlPct := decimal.Zero
	if basis := entry.Mul(qty); !basis.IsZero() {
		pnlPct = pnl.Div(basis).Mul(decimal.NewFromInt(100))
	}

	pnlF, _ := pnl.Round(2).Float64()
	pctF, _ := pnlPct.Round(2).Float64()
	px := Price(exitPrice)
	exitAt := at

	p.Status = PositionClosed
	p.ExitPrice = &px
	p.ExitDate = &exitAt
	p.ExitReason = reason
	p.PnL = &pnlF
	p.PnLPct = &pctF
	p.HeldDuration = at.Sub(p.EntryDate)
	if p.HeldDuration < 0 {
		p.HeldDuration = 0
	}
	return nil
}

// HeldDays returns the held duration in fractional days.
func (p *Position) HeldDays() float64 { return p.HeldDuration.Hours() / 24 }

// PositionSummary is the open book.
type PositionSummary struct {
	OpenCount     int        `json:"open_count"`
	TotalInvested float64    `json:"total_invested"`
	Positions     []Position `json:"positions"`
}

// NewPositionSummary aggregates open positions.
func NewPositionSummary(open []Position) PositionSummary {
	total := decimal.Zero
	for i := range open {
		total = total.Add(decimal.NewFromFloat(open[i].EntryPrice).Mul(decimal.NewFromInt(int64(open[i].Quantity))))
	}
	f, _ := total.Round(2).Float64()
	if open == nil {
		open = []Position{}
	}
	return PositionSummary{OpenCount: len(open), TotalInvested: f, Positions: open}
}
