package store

// sqliteSchema mirrors postgresSchema with SQLite types.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS cooldowns (
		symbol TEXT,
		side TEXT,
		until_utc INTEGER,
		reason TEXT,
		PRIMARY KEY (symbol, side)
	)`,
	`CREATE TABLE IF NOT EXISTS clusters (
		date TEXT,
		symbol TEXT,
		cluster_id INTEGER,
		PRIMARY KEY (date, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS risk_budget (
		ts INTEGER,
		hourly_used REAL,
		portfolio_R REAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_risk_budget_ts ON risk_budget(ts)`,
	`CREATE TABLE IF NOT EXISTS overlay_queue (
		ts INTEGER,
		symbol TEXT,
		heat REAL,
		last_touch_ts INTEGER,
		PRIMARY KEY (symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS plans (
		ts INTEGER,
		symbol TEXT,
		side TEXT,
		l1 REAL, l2 REAL, l3 REAL,
		w1 REAL, w2 REAL, w3 REAL,
		sl REAL, tp1 REAL, tp2 REAL,
		R REAL, costR REAL, room REAL,
		gates TEXT,
		mode TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_plans_ts ON plans(ts)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS cooldowns (
		symbol VARCHAR(32) NOT NULL,
		side VARCHAR(8) NOT NULL,
		until_utc BIGINT NOT NULL,
		reason TEXT,
		PRIMARY KEY (symbol, side)
	)`,
	`CREATE TABLE IF NOT EXISTS clusters (
		date VARCHAR(10) NOT NULL,
		symbol VARCHAR(32) NOT NULL,
		cluster_id INTEGER,
		PRIMARY KEY (date, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS risk_budget (
		ts BIGINT NOT NULL,
		hourly_used DOUBLE PRECISION NOT NULL,
		portfolio_r DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS idx_risk_budget_ts ON risk_budget(ts)`,
	`CREATE TABLE IF NOT EXISTS overlay_queue (
		ts BIGINT,
		symbol VARCHAR(32) PRIMARY KEY,
		heat DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_touch_ts BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS plans (
		ts BIGINT NOT NULL,
		symbol VARCHAR(32) NOT NULL,
		side VARCHAR(8) NOT NULL,
		l1 DOUBLE PRECISION, l2 DOUBLE PRECISION, l3 DOUBLE PRECISION,
		w1 DOUBLE PRECISION, w2 DOUBLE PRECISION, w3 DOUBLE PRECISION,
		sl DOUBLE PRECISION, tp1 DOUBLE PRECISION, tp2 DOUBLE PRECISION,
		r DOUBLE PRECISION, costr DOUBLE PRECISION, room DOUBLE PRECISION,
		gates TEXT,
		mode VARCHAR(8)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_plans_ts ON plans(ts)`,
	`CREATE INDEX IF NOT EXISTS idx_plans_symbol ON plans(symbol)`,
}
