package storage

// records.go — strategy params, learning events, predictions, rebalances.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/areyes/bankroll/internal/domain"
)

// ─── Strategy params ─────────────────────────────────────────────────────────

// GetStrategyParams returns the tuned thresholds for a venue/category pair,
// or nil when none exist yet.
func (s *SQLiteStore) GetStrategyParams(ctx context.Context, venue domain.Venue, category string) (*domain.StrategyParams, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT venue, category, min_confidence, min_edge, max_trade_usd,
		       daily_spending_limit, max_open_positions, updated_at
		FROM strategy_params
		WHERE venue = ? AND category = ?`, string(venue), category)

	var p domain.StrategyParams
	var v, updatedAt string
	err := row.Scan(&v, &p.Category, &p.MinConfidence, &p.MinEdge, &p.MaxTradeUSD,
		&p.DailySpendingLimit, &p.MaxOpenPositions, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.GetStrategyParams: %w", err)
	}
	p.Venue = domain.Venue(v)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// UpsertStrategyParams writes the thresholds for a venue/category pair.
func (s *SQLiteStore) UpsertStrategyParams(ctx context.Context, p domain.StrategyParams) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strategy_params
		  (venue, category, min_confidence, min_edge, max_trade_usd,
		   daily_spending_limit, max_open_positions, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(venue, category) DO UPDATE SET
		  min_confidence       = excluded.min_confidence,
		  min_edge             = excluded.min_edge,
		  max_trade_usd        = excluded.max_trade_usd,
		  daily_spending_limit = excluded.daily_spending_limit,
		  max_open_positions   = excluded.max_open_positions,
		  updated_at           = excluded.updated_at`,
		string(p.Venue), p.Category, p.MinConfidence, p.MinEdge, p.MaxTradeUSD,
		p.DailySpendingLimit, p.MaxOpenPositions, fmtTime(p.UpdatedAt),
	)
	return err
}

// ─── Learning events ─────────────────────────────────────────────────────────

// SaveLearningEvent appends a tuner pattern detection.
func (s *SQLiteStore) SaveLearningEvent(ctx context.Context, e domain.LearningEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO learning_events
		  (id, venue, category, pattern, win_rate, pnl, sample_size, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, string(e.Venue), e.Category, e.Pattern, e.WinRate, e.PnL,
		e.SampleSize, fmtTime(e.CreatedAt),
	)
	return err
}

// GetLearningEvents returns a venue's pattern detections, newest first.
func (s *SQLiteStore) GetLearningEvents(ctx context.Context, venue domain.Venue, limit int) ([]domain.LearningEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, venue, category, pattern, win_rate, pnl, sample_size, created_at
		FROM learning_events
		WHERE venue = ?
		ORDER BY created_at DESC
		LIMIT ?`, string(venue), limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetLearningEvents: query: %w", err)
	}
	defer rows.Close()

	var events []domain.LearningEvent
	for rows.Next() {
		var e domain.LearningEvent
		var v, createdAt string
		if err := rows.Scan(&e.ID, &v, &e.Category, &e.Pattern, &e.WinRate,
			&e.PnL, &e.SampleSize, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("storage.GetLearningEvents: scan: %w", err)
		}
		e.Venue = domain.Venue(v)
		e.CreatedAt = parseTime(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ─── Predictions ─────────────────────────────────────────────────────────────

// SavePrediction inserts (or replaces) a prediction row.
func (s *SQLiteStore) SavePrediction(ctx context.Context, p domain.Prediction) error {
	resolved := 0
	if p.Resolved {
		resolved = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO predictions
		  (id, venue, category, instrument_id, side, confidence,
		   resolved, outcome, pnl, created_at, resolved_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, string(p.Venue), p.Category, p.InstrumentID, p.Side, p.Confidence,
		resolved, p.Outcome, p.PnL, fmtTime(p.CreatedAt), nullTime(p.ResolvedAt),
	)
	return err
}

// GetPredictions returns a venue's predictions, newest first. An empty
// category matches all categories.
func (s *SQLiteStore) GetPredictions(ctx context.Context, category string, venue domain.Venue, limit int) ([]domain.Prediction, error) {
	query := `
		SELECT id, venue, category, instrument_id, side, confidence,
		       resolved, outcome, pnl, created_at, resolved_at
		FROM predictions
		WHERE venue = ?`
	args := []any{string(venue)}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.GetPredictions: query: %w", err)
	}
	defer rows.Close()

	var preds []domain.Prediction
	for rows.Next() {
		var p domain.Prediction
		var v, createdAt string
		var resolved int
		var resolvedAt sql.NullString

		if err := rows.Scan(&p.ID, &v, &p.Category, &p.InstrumentID, &p.Side,
			&p.Confidence, &resolved, &p.Outcome, &p.PnL, &createdAt, &resolvedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.GetPredictions: scan: %w", err)
		}

		p.Venue = domain.Venue(v)
		p.Resolved = resolved == 1
		p.CreatedAt = parseTime(createdAt)
		if resolvedAt.Valid {
			at := parseTime(resolvedAt.String)
			p.ResolvedAt = &at
		}
		preds = append(preds, p)
	}
	return preds, rows.Err()
}

// MarkPredictionsResolved attaches the settlement outcome to every
// unresolved prediction on the instrument.
func (s *SQLiteStore) MarkPredictionsResolved(ctx context.Context, venue domain.Venue, instrumentID, outcome string, pnl float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE predictions
		SET resolved = 1, outcome = ?, pnl = ?, resolved_at = datetime('now')
		WHERE venue = ? AND instrument_id = ? AND resolved = 0`,
		outcome, pnl, string(venue), instrumentID,
	)
	if err != nil {
		return fmt.Errorf("storage.MarkPredictionsResolved: %s: %w", instrumentID, err)
	}
	return nil
}

// ─── Rebalances ──────────────────────────────────────────────────────────────

// SaveRebalance upserts an advisory transfer request.
func (s *SQLiteStore) SaveRebalance(ctx context.Context, r domain.RebalanceRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO rebalances
		  (id, from_venue, to_venue, amount, status, created_at, initiated_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		r.ID, string(r.From), string(r.To), r.Amount, string(r.Status),
		fmtTime(r.CreatedAt), nullTime(r.InitiatedAt), nullTime(r.CompletedAt),
	)
	return err
}

// GetRebalances returns transfer requests, newest first.
func (s *SQLiteStore) GetRebalances(ctx context.Context, limit int) ([]domain.RebalanceRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_venue, to_venue, amount, status, created_at, initiated_at, completed_at
		FROM rebalances
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetRebalances: query: %w", err)
	}
	defer rows.Close()

	var reqs []domain.RebalanceRequest
	for rows.Next() {
		var r domain.RebalanceRequest
		var from, to, status, createdAt string
		var initiatedAt, completedAt sql.NullString

		if err := rows.Scan(&r.ID, &from, &to, &r.Amount, &status,
			&createdAt, &initiatedAt, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.GetRebalances: scan: %w", err)
		}

		r.From = domain.Venue(from)
		r.To = domain.Venue(to)
		r.Status = domain.RebalanceStatus(status)
		r.CreatedAt = parseTime(createdAt)
		if initiatedAt.Valid {
			at := parseTime(initiatedAt.String)
			r.InitiatedAt = &at
		}
		if completedAt.Valid {
			at := parseTime(completedAt.String)
			r.CompletedAt = &at
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}
