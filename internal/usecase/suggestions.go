package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	applogger "SwingDesk/pkg/logger"
)

// RiskConfig sizes suggestions with the fixed-risk model.
type RiskConfig struct {
	FundSize         float64
	MaxRiskPerTrade  float64
	MaxOpenPositions int
}

// SuggestionService turns candidates into sized suggestions and handles the
// operator's response to them.
type SuggestionService struct {
	risk     RiskConfig
	ledger   domrepo.LedgerStore
	outcomes domrepo.OutcomeSink
	notifier domrepo.Notifier
	l        *applogger.Logger
	now      func() time.Time
}

func NewSuggestionService(
	risk RiskConfig,
	ledger domrepo.LedgerStore,
	outcomes domrepo.OutcomeSink,
	notifier domrepo.Notifier,
	l *applogger.Logger,
) *SuggestionService {
	if risk.MaxRiskPerTrade <= 0 {
		risk.MaxRiskPerTrade = 0.01
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &SuggestionService{risk: risk, ledger: ledger, outcomes: outcomes, notifier: notifier, l: l, now: time.Now}
}

// Publish persists one PENDING suggestion per candidate. Candidates whose
// instrument already has an open position are skipped.
func (s *SuggestionService) Publish(ctx context.Context, candidates []models.Candidate) ([]models.Suggestion, error) {
	at := s.now()
	out := make([]models.Suggestion, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		open, err := s.ledger.OpenPosition(ctx, c.Instrument)
		if err != nil {
			return out, fmt.Errorf("check open %s: %w", c.Instrument, err)
		}
		if open != nil {
			s.l.Debug("suggestion.already_open", applogger.String("instrument", c.Instrument))
			continue
		}
		sug := models.NewSuggestion(c, s.risk.FundSize, s.risk.MaxRiskPerTrade, at)
		if err := s.ledger.InsertSuggestion(ctx, sug); err != nil {
			return out, fmt.Errorf("insert suggestion %s: %w", c.Instrument, err)
		}
		out = append(out, *sug)
		s.l.Info("suggestion.published",
			applogger.Int64("id", sug.ID),
			applogger.String("instrument", sug.Instrument),
			applogger.String("direction", string(sug.Direction)),
			applogger.Int("qty", sug.SuggestedQty),
			applogger.Float("score", sug.CompositeScore))
		if s.notifier != nil {
			if err := s.notifier.NotifySuggestion(ctx, sug); err != nil {
				s.l.Warn("suggestion.notify_failed", applogger.Int64("id", sug.ID), applogger.Error(err))
			}
		}
	}
	return out, nil
}

// Execute marks a suggestion EXECUTED and opens its position in one
// transaction. It fails with ErrPositionExists when the instrument is
// already held.
func (s *SuggestionService) Execute(ctx context.Context, id int64, fillPrice float64, qty int) (*models.Position, error) {
	at := s.now()
	var pos *models.Position
	err := s.ledger.WithinTx(ctx, func(tx domrepo.LedgerTx) error {
		sug, err := tx.GetSuggestion(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.LockInstruments(ctx, sug.Instrument); err != nil {
			return err
		}
		if !sug.IsPending() {
			return fmt.Errorf("%w: suggestion %d is %s", models.ErrSuggestionState, id, sug.Status)
		}
		if s.risk.MaxOpenPositions > 0 {
			open, err := tx.OpenPositions(ctx)
			if err != nil {
				return err
			}
			if len(open) >= s.risk.MaxOpenPositions {
				return fmt.Errorf("%w: %d open positions", models.ErrRiskLimit, len(open))
			}
		}
		existing, err := tx.OpenPosition(ctx, sug.Instrument)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", models.ErrPositionExists, sug.Instrument)
		}

		if fillPrice <= 0 {
			fillPrice = sug.Entry
		}
		if qty <= 0 {
			qty = sug.SuggestedQty
		}
		if qty <= 0 {
			return fmt.Errorf("%w: no quantity for suggestion %d", models.ErrSuggestionState, id)
		}
		if err := sug.Respond(models.SuggestionExecuted, at); err != nil {
			return err
		}
		if err := tx.UpdateSuggestion(ctx, sug); err != nil {
			return err
		}

		sid := sug.ID
		pos = &models.Position{
			SuggestionID: &sid,
			Instrument:   sug.Instrument,
			Direction:    sug.Direction,
			EntryPrice:   models.Price(fillPrice),
			EntryDate:    at,
			Quantity:     qty,
			CurrentStop:  sug.Stop,
			Target:       sug.Target,
			Status:       models.PositionOpen,
		}
		return tx.InsertPosition(ctx, pos)
	})
	if err != nil {
		return nil, err
	}
	s.l.Info("suggestion.executed",
		applogger.Int64("id", id),
		applogger.Int64("position_id", pos.ID),
		applogger.String("instrument", pos.Instrument),
		applogger.Float("fill", pos.EntryPrice),
		applogger.Int("qty", pos.Quantity))
	return pos, nil
}

// Skip marks a suggestion SKIPPED and feeds the skip to the outcome sink.
func (s *SuggestionService) Skip(ctx context.Context, id int64, notes string) (*models.Suggestion, error) {
	at := s.now()
	var sug *models.Suggestion
	err := s.ledger.WithinTx(ctx, func(tx domrepo.LedgerTx) error {
		var err error
		sug, err = tx.GetSuggestion(ctx, id)
		if err != nil {
			return err
		}
		if err := sug.Respond(models.SuggestionSkipped, at); err != nil {
			return fmt.Errorf("%w: suggestion %d is %s", err, id, sug.Status)
		}
		if notes != "" {
			sug.Notes = notes
		}
		return tx.UpdateSuggestion(ctx, sug)
	})
	if err != nil {
		return nil, err
	}
	if s.outcomes != nil {
		if err := s.outcomes.SuggestionSkipped(ctx, sug); err != nil {
			s.l.Warn("suggestion.outcome_failed", applogger.Int64("id", id), applogger.Error(err))
		}
	}
	s.l.Info("suggestion.skipped", applogger.Int64("id", id), applogger.String("instrument", sug.Instrument))
	return sug, nil
}

// ExpireStale marks every PENDING suggestion dated before the cutoff as EXPIRED.
func (s *SuggestionService) ExpireStale(ctx context.Context, before time.Time) (int, error) {
	var n int
	err := s.ledger.WithinTx(ctx, func(tx domrepo.LedgerTx) error {
		var err error
		n, err = tx.ExpireSuggestions(ctx, before, s.now())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("expire suggestions: %w", err)
	}
	if n > 0 {
		s.l.Info("suggestion.expired", applogger.Int("count", n), applogger.String("before", before.Format(time.DateOnly)))
	}
	return n, nil
}

// IsConflict reports whether err is a state conflict rather than a failure.
func IsConflict(err error) bool {
	return errors.Is(err, models.ErrPositionExists) ||
		errors.Is(err, models.ErrSuggestionState) ||
		errors.Is(err, models.ErrPositionClosed) ||
		errors.Is(err, models.ErrRiskLimit) ||
		errors.Is(err, models.ErrCalibrationRunning)
}
