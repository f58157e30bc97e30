package usecase

import (
	"context"
	"fmt"
	"time"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	applogger "SwingDesk/pkg/logger"
)

// PositionService manages the lifecycle of open positions.
type PositionService struct {
	ledger   domrepo.LedgerStore
	outcomes domrepo.OutcomeSink
	l        *applogger.Logger
	now      func() time.Time
}

func NewPositionService(ledger domrepo.LedgerStore, outcomes domrepo.OutcomeSink, l *applogger.Logger) *PositionService {
	if l == nil {
		l = applogger.Nop()
	}
	return &PositionService{ledger: ledger, outcomes: outcomes, l: l, now: time.Now}
}

// UpdateStop moves the protective stop of an open position.
func (s *PositionService) UpdateStop(ctx context.Context, id int64, stop float64) (*models.Position, error) {
	return s.mutate(ctx, id, func(p *models.Position) error {
		if stop <= 0 {
			return fmt.Errorf("invalid stop %.2f", stop)
		}
		p.CurrentStop = models.Price(stop)
		return nil
	})
}

// UpdateTarget moves the profit target of an open position.
func (s *PositionService) UpdateTarget(ctx context.Context, id int64, target float64) (*models.Position, error) {
	return s.mutate(ctx, id, func(p *models.Position) error {
		if target <= 0 {
			return fmt.Errorf("invalid target %.2f", target)
		}
		p.Target = models.Price(target)
		return nil
	})
}

// Close realizes an open position and reports the outcome to the sink.
func (s *PositionService) Close(ctx context.Context, id int64, exitPrice float64, reason models.ExitReason) (*models.Position, error) {
	at := s.now()
	p, err := s.mutate(ctx, id, func(p *models.Position) error {
		if exitPrice <= 0 {
			return fmt.Errorf("invalid exit price %.2f", exitPrice)
		}
		return p.Close(exitPrice, at, reason)
	})
	if err != nil {
		return nil, err
	}
	s.l.Info("position.closed",
		applogger.Int64("id", p.ID),
		applogger.String("instrument", p.Instrument),
		applogger.String("reason", string(reason)),
		applogger.Float("pnl", *p.PnL),
		applogger.Float("pnl_pct", *p.PnLPct))
	if s.outcomes != nil {
		if err := s.outcomes.PositionClosed(ctx, p); err != nil {
			s.l.Warn("position.outcome_failed", applogger.Int64("id", p.ID), applogger.Error(err))
		}
	}
	return p, nil
}

// Summary returns the open book.
func (s *PositionService) Summary(ctx context.Context) (models.PositionSummary, error) {
	open, err := s.ledger.OpenPositions(ctx)
	if err != nil {
		return models.PositionSummary{}, fmt.Errorf("open positions: %w", err)
	}
	return models.NewPositionSummary(open), nil
}

func (s *PositionService) mutate(ctx context.Context, id int64, fn func(p *models.Position) error) (*models.Position, error) {
	var out *models.Position
	err := s.ledger.WithinTx(ctx, func(tx domrepo.LedgerTx) error {
		p, err := tx.GetPosition(ctx, id)
		if err != nil {
			return err
		}
		if !p.IsOpen() {
			return fmt.Errorf("%w: position %d", models.ErrPositionClosed, id)
		}
		if err := fn(p); err != nil {
			return err
		}
		if err := tx.UpdatePosition(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}
