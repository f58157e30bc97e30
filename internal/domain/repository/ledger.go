package repository

import (
	"context"
	"time"

	"SwingDesk/internal/domain/models"
)

// LedgerTx is the set of ledger operations available inside and outside a transaction.
// Reads performed inside a transaction lock the rows they return.
type LedgerTx interface {
	// LockInstruments serializes writers touching the same instruments until commit.
	LockInstruments(ctx context.Context, instruments ...string) error
	OpenInstruments(ctx context.Context) ([]string, error)
	OpenPositions(ctx context.Context) ([]models.Position, error)
	// OpenPosition returns nil when the instrument has no OPEN row.
	OpenPosition(ctx context.Context, instrument string) (*models.Position, error)
	GetPosition(ctx context.Context, id int64) (*models.Position, error)
	InsertPosition(ctx context.Context, p *models.Position) error
	UpdatePosition(ctx context.Context, p *models.Position) error

	GetSuggestion(ctx context.Context, id int64) (*models.Suggestion, error)
	InsertSuggestion(ctx context.Context, s *models.Suggestion) error
	UpdateSuggestion(ctx context.Context, s *models.Suggestion) error
	ExpireSuggestions(ctx context.Context, before, at time.Time) (int, error)

	GetOrCreatePerformance(ctx context.Context, detectorID, timeframe string) (*models.DetectorPerformance, error)
	ListPerformance(ctx context.Context) ([]models.DetectorPerformance, error)
	SavePerformance(ctx context.Context, p *models.DetectorPerformance) error

	// Savepoint runs fn so that its writes roll back alone on error.
	Savepoint(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerStore is the durable store for positions, suggestions and detector performance.
type LedgerStore interface {
	LedgerTx
	// WithinTx commits fn's writes together or not at all.
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
	Health(ctx context.Context) error
	Close() error
}
