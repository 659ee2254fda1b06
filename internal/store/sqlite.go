package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"binance-ats/internal/logging"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLiteStore is the embedded store used by default.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logging.Logger
}

// OpenSQLite opens (creating if needed) the database file at dsn and ensures
// the schema. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	memory := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
	if !memory {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one connection keeps an in-memory database alive and serialises writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logging.WithComponent("store")}
	if !memory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			s.logger.Warn("failed to set WAL mode", "error", err)
		}
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("sqlite store ready", "dsn", dsn)
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) UpdateHeat(ctx context.Context, fn func(HeatEntry) HeatEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var entries []HeatEntry
	if err := tx.SelectContext(ctx, &entries,
		`SELECT symbol, COALESCE(heat, 0) AS heat, COALESCE(ts, 0) AS ts, COALESCE(last_touch_ts, 0) AS last_touch_ts
		 FROM overlay_queue`); err != nil {
		return fmt.Errorf("failed to read overlay: %w", err)
	}

	for _, e := range entries {
		next := fn(e)
		if _, err := tx.ExecContext(ctx,
			`UPDATE overlay_queue SET heat = ?, ts = ? WHERE symbol = ?`,
			next.Heat, next.TS, e.Symbol); err != nil {
			return fmt.Errorf("failed to update heat for %s: %w", e.Symbol, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) AddHeat(ctx context.Context, symbols []string, weight float64, now time.Time) error {
	if len(symbols) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := now.Unix()
	for _, sym := range symbols {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO overlay_queue (symbol, ts, heat, last_touch_ts)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(symbol) DO UPDATE SET
				heat = overlay_queue.heat + excluded.heat,
				last_touch_ts = excluded.last_touch_ts`,
			sym, ts, weight, ts); err != nil {
			return fmt.Errorf("failed to bump %s: %w", sym, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) TopHeat(ctx context.Context, limit int, minHeat float64) ([]HeatEntry, error) {
	var entries []HeatEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT symbol, heat, COALESCE(ts, 0) AS ts, COALESCE(last_touch_ts, 0) AS last_touch_ts
		FROM overlay_queue
		WHERE heat > ?
		ORDER BY heat DESC
		LIMIT ?`, minHeat, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query overlay top: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) SetCooldown(ctx context.Context, symbol, side string, until time.Time, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cooldowns (symbol, side, until_utc, reason)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol, side) DO UPDATE SET
			until_utc = excluded.until_utc,
			reason = excluded.reason`,
		symbol, side, until.Unix(), reason)
	if err != nil {
		return fmt.Errorf("failed to set cooldown for %s: %w", symbol, err)
	}
	return nil
}

func (s *SQLiteStore) CooldownUntil(ctx context.Context, symbol, side string) (time.Time, error) {
	var until int64
	err := s.db.GetContext(ctx, &until,
		`SELECT until_utc FROM cooldowns WHERE symbol = ? AND side = ?`, symbol, side)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read cooldown for %s: %w", symbol, err)
	}
	return time.Unix(until, 0).UTC(), nil
}

func (s *SQLiteStore) RecordRiskUsage(ctx context.Context, ts time.Time, used, portfolioR float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO risk_budget (ts, hourly_used, portfolio_R) VALUES (?, ?, ?)`,
		ts.Unix(), used, portfolioR)
	if err != nil {
		return fmt.Errorf("failed to record risk usage: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RiskUsedSince(ctx context.Context, since time.Time) (float64, error) {
	var used float64
	err := s.db.GetContext(ctx, &used,
		`SELECT COALESCE(SUM(hourly_used), 0) FROM risk_budget WHERE ts >= ?`, since.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to sum risk usage: %w", err)
	}
	return used, nil
}

func (s *SQLiteStore) InsertPlan(ctx context.Context, rec PlanRecord) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO plans (ts, symbol, side, l1, l2, l3, w1, w2, w3, sl, tp1, tp2, R, costR, room, gates, mode)
		VALUES (:ts, :symbol, :side, :l1, :l2, :l3, :w1, :w2, :w3, :sl, :tp1, :tp2, :r, :costr, :room, :gates, :mode)`,
		rec)
	if err != nil {
		return fmt.Errorf("failed to insert plan for %s: %w", rec.Symbol, err)
	}
	return nil
}

func (s *SQLiteStore) RecentPlans(ctx context.Context, limit int) ([]PlanRecord, error) {
	var plans []PlanRecord
	err := s.db.SelectContext(ctx, &plans, `
		SELECT ts, symbol, side, l1, l2, l3, w1, w2, w3, sl, tp1, tp2,
			R AS r, costR AS costr, room, COALESCE(gates, '') AS gates, COALESCE(mode, '') AS mode
		FROM plans
		ORDER BY ts DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	return plans, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
