// Package store persists the bot state: cooldowns, the hourly risk budget,
// the heat overlay and every plan that passed the gates.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"binance-ats/config"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned by single-row lookups with no match.
var ErrNotFound = errors.New("store: not found")

// HeatEntry is one overlay_queue row. TS is the last decay time and
// LastTouch the last bump, both unix seconds.
type HeatEntry struct {
	Symbol    string  `db:"symbol" json:"symbol"`
	Heat      float64 `db:"heat" json:"heat"`
	TS        int64   `db:"ts" json:"ts"`
	LastTouch int64   `db:"last_touch_ts" json:"last_touch_ts"`
}

// PlanRecord is one plans row. Gates holds the JSON gate verdicts and Mode is
// "live" or "dry".
type PlanRecord struct {
	TS     int64   `db:"ts" json:"ts"`
	Symbol string  `db:"symbol" json:"symbol"`
	Side   string  `db:"side" json:"side"`
	L1     float64 `db:"l1" json:"l1"`
	L2     float64 `db:"l2" json:"l2"`
	L3     float64 `db:"l3" json:"l3"`
	W1     float64 `db:"w1" json:"w1"`
	W2     float64 `db:"w2" json:"w2"`
	W3     float64 `db:"w3" json:"w3"`
	SL     float64 `db:"sl" json:"sl"`
	TP1    float64 `db:"tp1" json:"tp1"`
	TP2    float64 `db:"tp2" json:"tp2"`
	R      float64 `db:"r" json:"R"`
	CostR  float64 `db:"costr" json:"costR"`
	Room   float64 `db:"room" json:"room"`
	Gates  string  `db:"gates" json:"gates"`
	Mode   string  `db:"mode" json:"mode"`
}

// Plan modes.
const (
	ModeLive = "live"
	ModeDry  = "dry"
)

// Store is the persistence contract shared by the overlay, runner, risk
// guard and status API.
type Store interface {
	// UpdateHeat rewrites every overlay row through fn inside one transaction.
	UpdateHeat(ctx context.Context, fn func(HeatEntry) HeatEntry) error
	// AddHeat upserts symbols, adding weight to existing heat.
	AddHeat(ctx context.Context, symbols []string, weight float64, now time.Time) error
	// TopHeat lists rows with heat above minHeat, hottest first.
	TopHeat(ctx context.Context, limit int, minHeat float64) ([]HeatEntry, error)

	SetCooldown(ctx context.Context, symbol, side string, until time.Time, reason string) error
	// CooldownUntil returns ErrNotFound when no cooldown was ever set.
	CooldownUntil(ctx context.Context, symbol, side string) (time.Time, error)

	RecordRiskUsage(ctx context.Context, ts time.Time, used, portfolioR float64) error
	RiskUsedSince(ctx context.Context, since time.Time) (float64, error)

	InsertPlan(ctx context.Context, rec PlanRecord) error
	RecentPlans(ctx context.Context, limit int) ([]PlanRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open connects the configured driver and ensures the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		s, err := OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
