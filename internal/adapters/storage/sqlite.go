package storage

// sqlite.go — SQLite persistence for the capital core.
//
// Tables:
//   trades          — one row per trade, open until settlement closes it
//   strategy_params — tuned per-venue, per-category risk thresholds
//   learning_events — tuner pattern detections
//   predictions     — confidence-scored forecasts, resolved on settlement
//   rebalances      — advisory inter-venue transfer requests

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/areyes/bankroll/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id                TEXT PRIMARY KEY,   -- local UUID
    opportunity_id    TEXT NOT NULL DEFAULT '',
    venue             TEXT NOT NULL,
    type              TEXT NOT NULL DEFAULT 'binary',
    side              TEXT NOT NULL,      -- yes / no
    instrument_id     TEXT NOT NULL,
    amount            REAL NOT NULL,
    entry_price_cents REAL NOT NULL DEFAULT 0,
    exit_price_cents  REAL NOT NULL DEFAULT 0,
    contracts         REAL NOT NULL DEFAULT 0,
    fees              REAL NOT NULL DEFAULT 0,
    status            TEXT NOT NULL DEFAULT 'open',
    profit            REAL,
    category          TEXT NOT NULL DEFAULT '',
    confidence        REAL NOT NULL DEFAULT 0,
    edge              REAL NOT NULL DEFAULT 0,
    executed_at       DATETIME NOT NULL,
    settled_at        DATETIME
);

CREATE INDEX IF NOT EXISTS trades_status   ON trades(status);
CREATE INDEX IF NOT EXISTS trades_venue    ON trades(venue, status);
CREATE INDEX IF NOT EXISTS trades_category ON trades(category);

CREATE TABLE IF NOT EXISTS strategy_params (
    venue                TEXT NOT NULL,
    category             TEXT NOT NULL,
    min_confidence       REAL NOT NULL,
    min_edge             REAL NOT NULL,
    max_trade_usd        REAL NOT NULL,
    daily_spending_limit REAL NOT NULL,
    max_open_positions   INTEGER NOT NULL,
    updated_at           DATETIME NOT NULL,
    PRIMARY KEY (venue, category)
);

CREATE TABLE IF NOT EXISTS learning_events (
    id          TEXT PRIMARY KEY,
    venue       TEXT NOT NULL,
    category    TEXT NOT NULL,
    pattern     TEXT NOT NULL,
    win_rate    REAL NOT NULL DEFAULT 0,
    pnl         REAL NOT NULL DEFAULT 0,
    sample_size INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS predictions (
    id            TEXT PRIMARY KEY,
    venue         TEXT NOT NULL,
    category      TEXT NOT NULL DEFAULT '',
    instrument_id TEXT NOT NULL,
    side          TEXT NOT NULL DEFAULT '',
    confidence    REAL NOT NULL DEFAULT 0,
    resolved      INTEGER NOT NULL DEFAULT 0,
    outcome       TEXT NOT NULL DEFAULT '',
    pnl           REAL NOT NULL DEFAULT 0,
    created_at    DATETIME NOT NULL,
    resolved_at   DATETIME
);

CREATE INDEX IF NOT EXISTS predictions_instrument ON predictions(venue, instrument_id);
CREATE INDEX IF NOT EXISTS predictions_resolved   ON predictions(resolved);

CREATE TABLE IF NOT EXISTS rebalances (
    id           TEXT PRIMARY KEY,
    from_venue   TEXT NOT NULL,
    to_venue     TEXT NOT NULL,
    amount       REAL NOT NULL,
    status       TEXT NOT NULL DEFAULT 'pending',
    created_at   DATETIME NOT NULL,
    initiated_at DATETIME,
    completed_at DATETIME
);
`

// SQLiteStore implements ports.Store using SQLite (pure Go, no CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and
// applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ─── Trades ──────────────────────────────────────────────────────────────────

// SaveTrade inserts (or replaces) a trade row.
func (s *SQLiteStore) SaveTrade(ctx context.Context, t domain.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO trades
		  (id, opportunity_id, venue, type, side, instrument_id, amount,
		   entry_price_cents, exit_price_cents, contracts, fees, status,
		   profit, category, confidence, edge, executed_at, settled_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.OpportunityID, string(t.Venue), t.Type, t.Side, t.InstrumentID, t.Amount,
		t.EntryPriceCents, t.ExitPriceCents, t.Contracts, t.Fees, string(t.Status),
		nullFloat(t.Profit), t.Category, t.Confidence, t.Edge,
		fmtTime(t.ExecutedAt), nullTime(t.SettledAt),
	)
	return err
}

// UpdateTrade rewrites a trade row; same shape as SaveTrade.
func (s *SQLiteStore) UpdateTrade(ctx context.Context, t domain.Trade) error {
	return s.SaveTrade(ctx, t)
}

// CloseTrade settles an open trade in a single atomic update. The status
// filter makes a second closure of the same id a no-op, reported to the
// caller as false.
func (s *SQLiteStore) CloseTrade(ctx context.Context, id string, c domain.TradeClose) (bool, error) {
	status := c.StatusFor()
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades
		SET status = ?, profit = ?, exit_price_cents = ?, contracts = ?, settled_at = ?
		WHERE id = ? AND status IN ('pending', 'open')`,
		string(status), c.PnL, c.ExitPriceCents, c.Contracts, fmtTime(c.ClosedAt), id,
	)
	if err != nil {
		return false, fmt.Errorf("storage.CloseTrade: %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.CloseTrade: %s: rows affected: %w", id, err)
	}
	return n > 0, nil
}

// GetOpenTrades returns a venue's open trades, oldest first.
func (s *SQLiteStore) GetOpenTrades(ctx context.Context, venue domain.Venue, limit int) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE venue = ? AND status IN ('pending', 'open')
		ORDER BY executed_at ASC
		LIMIT ?`, string(venue), limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetOpenTrades: query: %w", err)
	}
	return scanTrades(rows)
}

// GetRecentClosedTrades returns a venue's settled trades, newest first.
func (s *SQLiteStore) GetRecentClosedTrades(ctx context.Context, venue domain.Venue, limit int) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE venue = ? AND status IN ('won', 'lost')
		ORDER BY settled_at DESC
		LIMIT ?`, string(venue), limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetRecentClosedTrades: query: %w", err)
	}
	return scanTrades(rows)
}

const tradeColumns = `id, opportunity_id, venue, type, side, instrument_id, amount,
	entry_price_cents, exit_price_cents, contracts, fees, status, profit,
	category, confidence, edge, executed_at, settled_at`

func scanTrades(rows *sql.Rows) ([]domain.Trade, error) {
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var venue, status, executedAt string
		var profit sql.NullFloat64
		var settledAt sql.NullString

		if err := rows.Scan(
			&t.ID, &t.OpportunityID, &venue, &t.Type, &t.Side, &t.InstrumentID, &t.Amount,
			&t.EntryPriceCents, &t.ExitPriceCents, &t.Contracts, &t.Fees, &status, &profit,
			&t.Category, &t.Confidence, &t.Edge, &executedAt, &settledAt,
		); err != nil {
			return nil, fmt.Errorf("storage.scanTrades: %w", err)
		}

		t.Venue = domain.Venue(venue)
		t.Status = domain.TradeStatus(status)
		t.ExecutedAt = parseTime(executedAt)
		if profit.Valid {
			p := profit.Float64
			t.Profit = &p
		}
		if settledAt.Valid {
			at := parseTime(settledAt.String)
			t.SettledAt = &at
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// Times are stored as RFC3339 text so they round-trip regardless of driver
// datetime handling.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
