package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	pkgpg "SwingDesk/pkg/postgres"
)

// LedgerSchema creates the ledger tables.
var LedgerSchema = []string{
	`CREATE TABLE IF NOT EXISTS suggestions (
		id BIGSERIAL PRIMARY KEY,
		date TIMESTAMPTZ NOT NULL,
		instrument VARCHAR(32) NOT NULL,
		direction VARCHAR(5) NOT NULL,
		entry DOUBLE PRECISION NOT NULL,
		target DOUBLE PRECISION NOT NULL,
		stop DOUBLE PRECISION NOT NULL,
		suggested_qty INTEGER NOT NULL,
		risk_amount DOUBLE PRECISION NOT NULL,
		risk_reward DOUBLE PRECISION NOT NULL,
		signals JSONB NOT NULL DEFAULT '[]',
		composite_score DOUBLE PRECISION NOT NULL,
		timeframe VARCHAR(16) NOT NULL,
		status VARCHAR(10) NOT NULL DEFAULT 'PENDING',
		responded_at TIMESTAMPTZ,
		notes TEXT NOT NULL DEFAULT '',
		learned_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_suggestions_status_date ON suggestions(status, date)`,

	`CREATE TABLE IF NOT EXISTS positions (
		id BIGSERIAL PRIMARY KEY,
		suggestion_id BIGINT REFERENCES suggestions(id) ON DELETE SET NULL,
		instrument VARCHAR(32) NOT NULL,
		direction VARCHAR(5) NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		entry_date TIMESTAMPTZ NOT NULL,
		quantity INTEGER NOT NULL,
		current_stop DOUBLE PRECISION NOT NULL,
		target DOUBLE PRECISION NOT NULL,
		status VARCHAR(6) NOT NULL DEFAULT 'OPEN',
		exit_price DOUBLE PRECISION,
		exit_date TIMESTAMPTZ,
		exit_reason VARCHAR(16),
		pnl DOUBLE PRECISION,
		pnl_pct DOUBLE PRECISION,
		held_seconds BIGINT NOT NULL DEFAULT 0,
		externally_created BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT NOT NULL DEFAULT '',
		learned_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE positions ADD COLUMN IF NOT EXISTS learned_at TIMESTAMPTZ`,
	`ALTER TABLE suggestions ADD COLUMN IF NOT EXISTS learned_at TIMESTAMPTZ`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_positions_open_instrument ON positions(instrument) WHERE status = 'OPEN'`,

	`CREATE TABLE IF NOT EXISTS detector_performance (
		detector_id VARCHAR(64) NOT NULL,
		timeframe VARCHAR(16) NOT NULL,
		total_signals INTEGER NOT NULL DEFAULT 0,
		executed_signals INTEGER NOT NULL DEFAULT 0,
		winning_trades INTEGER NOT NULL DEFAULT 0,
		win_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_pnl_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_risk_reward DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_held_days DOUBLE PRECISION NOT NULL DEFAULT 0,
		trust_weight DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		last_calibrated TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (detector_id, timeframe)
	)`,
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger implements LedgerStore on PostgreSQL.
type PostgresLedger struct {
	client *pkgpg.Client
	pgTx
}

// pgTx runs ledger statements on a pool or inside a transaction. Inside a
// transaction, reads take row locks.
type pgTx struct {
	q    querier
	tx   pgx.Tx
	lock string
}

var (
	_ domrepo.LedgerStore = (*PostgresLedger)(nil)
	_ domrepo.LedgerTx    = (*pgTx)(nil)
)

func NewPostgresLedger(client *pkgpg.Client) *PostgresLedger {
	return &PostgresLedger{client: client, pgTx: pgTx{q: client.Pool()}}
}

// Migrate creates the ledger schema.
func (s *PostgresLedger) Migrate(ctx context.Context) error {
	return s.client.RunMigrations(ctx, LedgerSchema)
}

func (s *PostgresLedger) WithinTx(ctx context.Context, fn func(tx domrepo.LedgerTx) error) error {
	return pgx.BeginFunc(ctx, s.client.Pool(), func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx, tx: tx, lock: " FOR UPDATE"})
	})
}

func (s *PostgresLedger) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *PostgresLedger) Close() error { return s.client.Close() }

// Savepoint nests fn in a savepoint inside a transaction, or in a fresh
// transaction when called on the pool.
func (t *pgTx) Savepoint(ctx context.Context, fn func(tx domrepo.LedgerTx) error) error {
	var db interface {
		Begin(ctx context.Context) (pgx.Tx, error)
	}
	if t.tx != nil {
		db = t.tx
	} else {
		pool, ok := t.q.(interface {
			Begin(ctx context.Context) (pgx.Tx, error)
		})
		if !ok {
			return fmt.Errorf("savepoint: querier cannot begin")
		}
		db = pool
	}
	return pgx.BeginFunc(ctx, db, func(sp pgx.Tx) error {
		return fn(&pgTx{q: sp, tx: sp, lock: " FOR UPDATE"})
	})
}

// LockInstruments takes transaction-scoped advisory locks in a fixed order.
func (t *pgTx) LockInstruments(ctx context.Context, instruments ...string) error {
	if t.tx == nil || len(instruments) == 0 {
		return nil
	}
	sorted := append([]string(nil), instruments...)
	sort.Strings(sorted)
	for i, inst := range sorted {
		if i > 0 && inst == sorted[i-1] {
			continue
		}
		if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, inst); err != nil {
			return fmt.Errorf("lock %s: %w", inst, err)
		}
	}
	return nil
}

func (t *pgTx) OpenInstruments(ctx context.Context) ([]string, error) {
	rows, err := t.q.Query(ctx, `SELECT instrument FROM positions WHERE status = 'OPEN' ORDER BY instrument`)
	if err != nil {
		return nil, fmt.Errorf("open instruments: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

const positionColumns = `id, suggestion_id, instrument, direction, entry_price, entry_date, quantity,
	current_stop, target, status, exit_price, exit_date, COALESCE(exit_reason, ''), pnl, pnl_pct,
	held_seconds, externally_created, notes, learned_at`

func scanPosition(row pgx.Row) (*models.Position, error) {
	var (
		p    models.Position
		held int64
	)
	err := row.Scan(&p.ID, &p.SuggestionID, &p.Instrument, &p.Direction, &p.EntryPrice, &p.EntryDate, &p.Quantity,
		&p.CurrentStop, &p.Target, &p.Status, &p.ExitPrice, &p.ExitDate, &p.ExitReason, &p.PnL, &p.PnLPct,
		&held, &p.ExternallyCreated, &p.Notes, &p.LearnedAt)
	if err != nil {
		return nil, err
	}
	p.HeldDuration = time.Duration(held) * time.Second
	return &p, nil
}

func (t *pgTx) OpenPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := t.q.Query(ctx, `SELECT `+positionColumns+` FROM positions WHERE status = 'OPEN' ORDER BY id`+t.lock)
	if err != nil {
		return nil, fmt.Errorf("open positions: %w", err)
	}
	defer rows.Close()
	out := make([]models.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (t *pgTx) OpenPosition(ctx context.Context, instrument string) (*models.Position, error) {
	p, err := scanPosition(t.q.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE status = 'OPEN' AND instrument = $1`+t.lock, instrument))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open position %s: %w", instrument, err)
	}
	return p, nil
}

func (t *pgTx) GetPosition(ctx context.Context, id int64) (*models.Position, error) {
	p, err := scanPosition(t.q.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`+t.lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position %d: %w", id, err)
	}
	return p, nil
}

func (t *pgTx) InsertPosition(ctx context.Context, p *models.Position) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO positions (suggestion_id, instrument, direction, entry_price, entry_date, quantity,
			current_stop, target, status, exit_price, exit_date, exit_reason, pnl, pnl_pct,
			held_seconds, externally_created, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14, $15, $16, $17)
		RETURNING id`,
		p.SuggestionID, p.Instrument, string(p.Direction), p.EntryPrice, p.EntryDate, p.Quantity,
		p.CurrentStop, p.Target, string(p.Status), p.ExitPrice, p.ExitDate, string(p.ExitReason), p.PnL, p.PnLPct,
		int64(p.HeldDuration/time.Second), p.ExternallyCreated, p.Notes,
	).Scan(&p.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", models.ErrPositionExists, p.Instrument)
	}
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

func (t *pgTx) UpdatePosition(ctx context.Context, p *models.Position) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE positions SET current_stop = $2, target = $3, status = $4, exit_price = $5, exit_date = $6,
			exit_reason = NULLIF($7, ''), pnl = $8, pnl_pct = $9, held_seconds = $10, notes = $11,
			learned_at = $12, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.CurrentStop, p.Target, string(p.Status), p.ExitPrice, p.ExitDate,
		string(p.ExitReason), p.PnL, p.PnLPct, int64(p.HeldDuration/time.Second), p.Notes, p.LearnedAt)
	if err != nil {
		return fmt.Errorf("update position %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrPositionNotFound
	}
	return nil
}

const suggestionColumns = `id, date, instrument, direction, entry, target, stop, suggested_qty, risk_amount,
	risk_reward, signals, composite_score, timeframe, status, responded_at, notes, learned_at`

func (t *pgTx) GetSuggestion(ctx context.Context, id int64) (*models.Suggestion, error) {
	var (
		s       models.Suggestion
		signals []byte
	)
	err := t.q.QueryRow(ctx, `SELECT `+suggestionColumns+` FROM suggestions WHERE id = $1`+t.lock, id).Scan(
		&s.ID, &s.Date, &s.Instrument, &s.Direction, &s.Entry, &s.Target, &s.Stop, &s.SuggestedQty, &s.RiskAmount,
		&s.RiskReward, &signals, &s.CompositeScore, &s.Timeframe, &s.Status, &s.RespondedAt, &s.Notes, &s.LearnedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrSuggestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get suggestion %d: %w", id, err)
	}
	if len(signals) > 0 {
		if err := json.Unmarshal(signals, &s.Signals); err != nil {
			return nil, fmt.Errorf("decode signals of suggestion %d: %w", id, err)
		}
	}
	return &s, nil
}

func (t *pgTx) InsertSuggestion(ctx context.Context, s *models.Suggestion) error {
	signals, err := json.Marshal(s.Signals)
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	err = t.q.QueryRow(ctx, `
		INSERT INTO suggestions (date, instrument, direction, entry, target, stop, suggested_qty, risk_amount,
			risk_reward, signals, composite_score, timeframe, status, responded_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`,
		s.Date, s.Instrument, string(s.Direction), s.Entry, s.Target, s.Stop, s.SuggestedQty, s.RiskAmount,
		s.RiskReward, signals, s.CompositeScore, s.Timeframe, string(s.Status), s.RespondedAt, s.Notes,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert suggestion: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateSuggestion(ctx context.Context, s *models.Suggestion) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE suggestions SET status = $2, responded_at = $3, notes = $4, learned_at = $5 WHERE id = $1`,
		s.ID, string(s.Status), s.RespondedAt, s.Notes, s.LearnedAt)
	if err != nil {
		return fmt.Errorf("update suggestion %d: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSuggestionNotFound
	}
	return nil
}

func (t *pgTx) ExpireSuggestions(ctx context.Context, before, at time.Time) (int, error) {
	tag, err := t.q.Exec(ctx,
		`UPDATE suggestions SET status = 'EXPIRED', responded_at = $2 WHERE status = 'PENDING' AND date < $1`,
		before, at)
	if err != nil {
		return 0, fmt.Errorf("expire suggestions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const performanceColumns = `detector_id, timeframe, total_signals, executed_signals, winning_trades, win_rate,
	avg_pnl_pct, avg_risk_reward, avg_held_days, trust_weight, last_calibrated, updated_at`

func scanPerformance(row pgx.Row) (*models.DetectorPerformance, error) {
	var p models.DetectorPerformance
	err := row.Scan(&p.DetectorID, &p.Timeframe, &p.TotalSignals, &p.ExecutedSignals, &p.WinningTrades, &p.WinRate,
		&p.AvgPnLPct, &p.AvgRiskReward, &p.AvgHeldDays, &p.TrustWeight, &p.LastCalibrated, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) GetOrCreatePerformance(ctx context.Context, detectorID, timeframe string) (*models.DetectorPerformance, error) {
	if _, err := t.q.Exec(ctx, `
		INSERT INTO detector_performance (detector_id, timeframe, trust_weight)
		VALUES ($1, $2, $3)
		ON CONFLICT (detector_id, timeframe) DO NOTHING`,
		detectorID, timeframe, models.DefaultTrustWeight); err != nil {
		return nil, fmt.Errorf("create performance %s: %w", models.WeightKey(detectorID, timeframe), err)
	}
	p, err := scanPerformance(t.q.QueryRow(ctx,
		`SELECT `+performanceColumns+` FROM detector_performance WHERE detector_id = $1 AND timeframe = $2`+t.lock,
		detectorID, timeframe))
	if err != nil {
		return nil, fmt.Errorf("get performance %s: %w", models.WeightKey(detectorID, timeframe), err)
	}
	return p, nil
}

func (t *pgTx) ListPerformance(ctx context.Context) ([]models.DetectorPerformance, error) {
	rows, err := t.q.Query(ctx, `SELECT `+performanceColumns+` FROM detector_performance ORDER BY detector_id, timeframe`+t.lock)
	if err != nil {
		return nil, fmt.Errorf("list performance: %w", err)
	}
	defer rows.Close()
	out := make([]models.DetectorPerformance, 0)
	for rows.Next() {
		p, err := scanPerformance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan performance: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (t *pgTx) SavePerformance(ctx context.Context, p *models.DetectorPerformance) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO detector_performance (`+performanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (detector_id, timeframe) DO UPDATE SET
			total_signals = EXCLUDED.total_signals,
			executed_signals = EXCLUDED.executed_signals,
			winning_trades = EXCLUDED.winning_trades,
			win_rate = EXCLUDED.win_rate,
			avg_pnl_pct = EXCLUDED.avg_pnl_pct,
			avg_risk_reward = EXCLUDED.avg_risk_reward,
			avg_held_days = EXCLUDED.avg_held_days,
			trust_weight = EXCLUDED.trust_weight,
			last_calibrated = EXCLUDED.last_calibrated,
			updated_at = EXCLUDED.updated_at`,
		p.DetectorID, p.Timeframe, p.TotalSignals, p.ExecutedSignals, p.WinningTrades, p.WinRate,
		p.AvgPnLPct, p.AvgRiskReward, p.AvgHeldDays, p.TrustWeight, p.LastCalibrated, updatedAt(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save performance %s: %w", models.WeightKey(p.DetectorID, p.Timeframe), err)
	}
	return nil
}

func updatedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
