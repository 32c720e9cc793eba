// Package store provides persistence: a SQLite tick repository for the
// collector and crash-safe JSON session files for the paper trader.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"polytrader/pkg/types"
)

// TickRepo persists trade ticks in SQLite.
type TickRepo struct {
	db *sql.DB
}

// OpenTickRepo opens (creating if needed) the SQLite database at path and
// ensures the schema exists. WAL mode keeps concurrent readers cheap.
func OpenTickRepo(path string) (*TickRepo, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	repo := &TickRepo{db: db}
	if err := repo.init(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// init creates the schema. Safe to run on every open.
func (r *TickRepo) init() error {
	const schema = `
CREATE TABLE IF NOT EXISTS ticks (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	asset_id       TEXT    NOT NULL,
	condition_id   TEXT    NOT NULL,
	price          TEXT    NOT NULL,
	size           TEXT    NOT NULL,
	side           TEXT    NOT NULL,
	fee_rate_bps   INTEGER NOT NULL DEFAULT 0,
	timestamp_ms   INTEGER NOT NULL,
	received_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ticks_asset_time ON ticks(asset_id, timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_ticks_condition_time ON ticks(condition_id, timestamp_ms);`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveTicks inserts a batch of ticks in one transaction.
func (r *TickRepo) SaveTicks(ctx context.Context, ticks []types.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO ticks (asset_id, condition_id, price, size, side, fee_rate_bps, timestamp_ms, received_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, tick := range ticks {
		if _, err := stmt.ExecContext(ctx,
			tick.AssetID, tick.ConditionID,
			tick.Price.String(), tick.Size.String(), tick.Side,
			tick.FeeRateBps, tick.TimestampMs, tick.ReceivedAtMs,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert tick: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetTicks returns an asset's ticks in [startMs, endMs], oldest first.
// limit <= 0 means no limit.
func (r *TickRepo) GetTicks(ctx context.Context, assetID string, startMs, endMs int64, limit int) ([]types.Tick, error) {
	query := `
SELECT asset_id, condition_id, price, size, side, fee_rate_bps, timestamp_ms, received_at_ms
FROM ticks WHERE asset_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
ORDER BY timestamp_ms`
	args := []any{assetID, startMs, endMs}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.queryTicks(ctx, query, args...)
}

// GetTicksByCondition returns a market's ticks (both sides) in
// [startMs, endMs], oldest first.
func (r *TickRepo) GetTicksByCondition(ctx context.Context, conditionID string, startMs, endMs int64) ([]types.Tick, error) {
	return r.queryTicks(ctx, `
SELECT asset_id, condition_id, price, size, side, fee_rate_bps, timestamp_ms, received_at_ms
FROM ticks WHERE condition_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
ORDER BY timestamp_ms`, conditionID, startMs, endMs)
}

// GetDistinctConditionIDs lists every market with recorded ticks.
func (r *TickRepo) GetDistinctConditionIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT condition_id FROM ticks ORDER BY condition_id`)
	if err != nil {
		return nil, fmt.Errorf("query condition ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan condition id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetTickCount returns the total number of stored ticks.
func (r *TickRepo) GetTickCount(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ticks: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (r *TickRepo) Close() error { return r.db.Close() }

func (r *TickRepo) queryTicks(ctx context.Context, query string, args ...any) ([]types.Tick, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []types.Tick
	for rows.Next() {
		var (
			tick        types.Tick
			price, size string
		)
		if err := rows.Scan(&tick.AssetID, &tick.ConditionID, &price, &size,
			&tick.Side, &tick.FeeRateBps, &tick.TimestampMs, &tick.ReceivedAtMs); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		if tick.Price, err = types.SafeDecimal(price); err != nil {
			return nil, fmt.Errorf("tick price %q: %w", price, err)
		}
		if tick.Size, err = types.SafeDecimal(size); err != nil {
			return nil, fmt.Errorf("tick size %q: %w", size, err)
		}
		ticks = append(ticks, tick)
	}
	return ticks, rows.Err()
}
