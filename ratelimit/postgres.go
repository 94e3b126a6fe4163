package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// PostgresStore keeps the limits in the rate_limits table (see db.Migrate).
type PostgresStore struct {
	DB *sql.DB
}

func (ps *PostgresStore) Load(ctx context.Context) (map[string]float64, error) {
	rows, err := ps.DB.QueryContext(ctx, `SELECT user_id, last_request FROM rate_limits`)
	if err != nil {
		return nil, fmt.Errorf("query rate limits: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	limits := map[string]float64{}
	for rows.Next() {
		var id string
		var last float64
		if err := rows.Scan(&id, &last); err != nil {
			return nil, fmt.Errorf("scan rate limit: %w", err)
		}
		limits[id] = last
	}
	return limits, rows.Err()
}

// Save replaces the table contents in one transaction.
func (ps *PostgresStore) Save(ctx context.Context, limits map[string]float64) error {
	tx, err := ps.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rate_limits`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear rate limits: %w", err)
	}
	for id, last := range limits {
		if _, err := tx.ExecContext(ctx, `INSERT INTO rate_limits (user_id, last_request, updated_at) VALUES ($1, $2, NOW())`, id, last); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert rate limit %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rate limits: %w", err)
	}
	return nil
}

func (ps *PostgresStore) Ping(ctx context.Context) error { return ps.DB.PingContext(ctx) }
