package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"binance-ats/internal/logging"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the same state in PostgreSQL for deployments that share
// one database across hosts.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *logging.Logger
}

// OpenPostgres creates the connection pool and runs migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logging.WithComponent("store")}
	if err := s.RunMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s.logger.Info("postgres store ready", "database", poolConfig.ConnConfig.Database)
	return s, nil
}

// RunMigrations executes the schema statements in order.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	for i, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	s.logger.Debug("database migrations completed", "statements", len(postgresSchema))
	return nil
}

func (s *PostgresStore) UpdateHeat(ctx context.Context, fn func(HeatEntry) HeatEntry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT symbol, heat, COALESCE(ts, 0) AS ts, COALESCE(last_touch_ts, 0) AS last_touch_ts
			FROM overlay_queue
			FOR UPDATE`)
		if err != nil {
			return fmt.Errorf("failed to read overlay: %w", err)
		}
		entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[HeatEntry])
		if err != nil {
			return fmt.Errorf("failed to scan overlay: %w", err)
		}

		for _, e := range entries {
			next := fn(e)
			if _, err := tx.Exec(ctx,
				`UPDATE overlay_queue SET heat = $1, ts = $2 WHERE symbol = $3`,
				next.Heat, next.TS, e.Symbol); err != nil {
				return fmt.Errorf("failed to update heat for %s: %w", e.Symbol, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) AddHeat(ctx context.Context, symbols []string, weight float64, now time.Time) error {
	if len(symbols) == 0 {
		return nil
	}
	ts := now.Unix()

	batch := &pgx.Batch{}
	for _, sym := range symbols {
		batch.Queue(`
			INSERT INTO overlay_queue (symbol, ts, heat, last_touch_ts)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (symbol) DO UPDATE SET
				heat = overlay_queue.heat + EXCLUDED.heat,
				last_touch_ts = EXCLUDED.last_touch_ts`,
			sym, ts, weight, ts)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to bump overlay: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) TopHeat(ctx context.Context, limit int, minHeat float64) ([]HeatEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, heat, COALESCE(ts, 0) AS ts, COALESCE(last_touch_ts, 0) AS last_touch_ts
		FROM overlay_queue
		WHERE heat > $1
		ORDER BY heat DESC
		LIMIT $2`, minHeat, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query overlay top: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[HeatEntry])
}

func (s *PostgresStore) SetCooldown(ctx context.Context, symbol, side string, until time.Time, reason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cooldowns (symbol, side, until_utc, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, side) DO UPDATE SET
			until_utc = EXCLUDED.until_utc,
			reason = EXCLUDED.reason`,
		symbol, side, until.Unix(), reason)
	if err != nil {
		return fmt.Errorf("failed to set cooldown for %s: %w", symbol, err)
	}
	return nil
}

func (s *PostgresStore) CooldownUntil(ctx context.Context, symbol, side string) (time.Time, error) {
	var until int64
	err := s.pool.QueryRow(ctx,
		`SELECT until_utc FROM cooldowns WHERE symbol = $1 AND side = $2`, symbol, side).Scan(&until)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read cooldown for %s: %w", symbol, err)
	}
	return time.Unix(until, 0).UTC(), nil
}

func (s *PostgresStore) RecordRiskUsage(ctx context.Context, ts time.Time, used, portfolioR float64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO risk_budget (ts, hourly_used, portfolio_r) VALUES ($1, $2, $3)`,
		ts.Unix(), used, portfolioR)
	if err != nil {
		return fmt.Errorf("failed to record risk usage: %w", err)
	}
	return nil
}

func (s *PostgresStore) RiskUsedSince(ctx context.Context, since time.Time) (float64, error) {
	var used float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(hourly_used), 0) FROM risk_budget WHERE ts >= $1`, since.Unix()).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("failed to sum risk usage: %w", err)
	}
	return used, nil
}

func (s *PostgresStore) InsertPlan(ctx context.Context, rec PlanRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO plans (ts, symbol, side, l1, l2, l3, w1, w2, w3, sl, tp1, tp2, r, costr, room, gates, mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		rec.TS, rec.Symbol, rec.Side, rec.L1, rec.L2, rec.L3, rec.W1, rec.W2, rec.W3,
		rec.SL, rec.TP1, rec.TP2, rec.R, rec.CostR, rec.Room, rec.Gates, rec.Mode)
	if err != nil {
		return fmt.Errorf("failed to insert plan for %s: %w", rec.Symbol, err)
	}
	return nil
}

func (s *PostgresStore) RecentPlans(ctx context.Context, limit int) ([]PlanRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ts, symbol, side, l1, l2, l3, w1, w2, w3, sl, tp1, tp2, r, costr, room,
			COALESCE(gates, '') AS gates, COALESCE(mode, '') AS mode
		FROM plans
		ORDER BY ts DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[PlanRecord])
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("database connection closed")
	}
	return nil
}
