package database

import (
	"context"
	"fmt"
)

// Tables in dependency order; Truncate and the maintenance tool use it
var Tables = []string{"orders", "seat_ledger", "trains", "users"}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		username      VARCHAR(20) PRIMARY KEY,
		password_hash TEXT        NOT NULL,
		name          TEXT        NOT NULL,
		mail          TEXT        NOT NULL,
		privilege     SMALLINT    NOT NULL CHECK (privilege BETWEEN 0 AND 10),
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trains (
		id             VARCHAR(20) PRIMARY KEY,
		train_type     TEXT        NOT NULL,
		stations       TEXT[]      NOT NULL,
		seat_capacity  INTEGER     NOT NULL,
		prices         BIGINT[]    NOT NULL,
		start_time     INTEGER     NOT NULL,
		arrive_offsets INTEGER[]   NOT NULL,
		depart_offsets INTEGER[]   NOT NULL,
		sale_start     DATE        NOT NULL,
		sale_end       DATE        NOT NULL,
		released       BOOLEAN     NOT NULL DEFAULT FALSE,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS seat_ledger (
		train_id  VARCHAR(20) NOT NULL REFERENCES trains(id) ON DELETE CASCADE,
		run_date  DATE        NOT NULL,
		leg       INTEGER     NOT NULL,
		remaining INTEGER     NOT NULL CHECK (remaining >= 0),
		PRIMARY KEY (train_id, run_date, leg)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id           UUID        PRIMARY KEY,
		seq          BIGINT      NOT NULL UNIQUE,
		username     VARCHAR(20) NOT NULL REFERENCES users(username),
		train_id     VARCHAR(20) NOT NULL REFERENCES trains(id),
		run_date     DATE        NOT NULL,
		from_station TEXT        NOT NULL,
		to_station   TEXT        NOT NULL,
		from_index   INTEGER     NOT NULL,
		to_index     INTEGER     NOT NULL,
		departure_at TIMESTAMPTZ NOT NULL,
		arrival_at   TIMESTAMPTZ NOT NULL,
		seats        INTEGER     NOT NULL,
		unit_price   BIGINT      NOT NULL,
		total_price  BIGINT      NOT NULL,
		status       TEXT        NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_pending ON orders (train_id, run_date, seq) WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS idx_orders_username ON orders (username, seq)`,
}

// Migrate creates the engine tables if they do not exist
func Migrate(ctx context.Context, db DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
