package repository

import (
	"context"
	"time"

	"SwingDesk/internal/domain/models"
)

// MarketData provides historical bars.
type MarketData interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, iv Interval) ([]models.Candle, error)
}

// QuoteProvider provides live last prices.
type QuoteProvider interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error)
}

// BrokerAccount is the authoritative external account state.
type BrokerAccount interface {
	Holdings(ctx context.Context) ([]models.ExternalHolding, error)
	Positions(ctx context.Context) ([]models.ExternalHolding, error)
	AvailableFunds(ctx context.Context) (float64, error)
}

// Notifier delivers fire-and-forget events to the notification channel.
type Notifier interface {
	NotifyCandidates(ctx context.Context, res *models.ScreeningResult) error
	NotifySuggestion(ctx context.Context, s *models.Suggestion) error
	NotifySync(ctx context.Context, r *models.SyncResult) error
	Close() error
}

// OutcomeSink receives learning inputs when positions close or suggestions are skipped.
type OutcomeSink interface {
	PositionClosed(ctx context.Context, p *models.Position) error
	SuggestionSkipped(ctx context.Context, s *models.Suggestion) error
}

// StateStore keeps small pieces of shared runtime state.
type StateStore interface {
	SaveWeights(ctx context.Context, snap *models.WeightSnapshot) error
	LoadWeights(ctx context.Context) (*models.WeightSnapshot, error)
	LastBalance(ctx context.Context) (float64, bool, error)
	SaveBalance(ctx context.Context, balance float64) error
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Metrics records service-level measurements.
type Metrics interface {
	RecordScreening(report models.ScreeningReport, seconds float64)
	RecordDetectorFailure(detector string)
	RecordCalibration(changed int)
	RecordReconcile(created, closed, errors int, fundChanged bool)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
