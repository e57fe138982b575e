// Package migrations applies the fund layer's PostgreSQL schema. Statements
// are idempotent so Apply can run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS fund_transactions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		asset      TEXT NOT NULL,
		tx_type    TEXT NOT NULL,
		amount     BIGINT NOT NULL,
		shares     BIGINT NOT NULL DEFAULT 0,
		reference  TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS fund_transactions_user_idx
		ON fund_transactions (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS fund_positions (
		user_id    TEXT NOT NULL,
		asset      TEXT NOT NULL,
		shares     BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, asset)
	)`,
	`CREATE TABLE IF NOT EXISTS fund_reservations (
		user_id    TEXT NOT NULL,
		asset      TEXT NOT NULL,
		amount     BIGINT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, asset)
	)`,
	`CREATE TABLE IF NOT EXISTS fund_adapters (
		id         TEXT PRIMARY KEY,
		weight     BIGINT NOT NULL,
		active     BOOLEAN NOT NULL,
		invested   BIGINT NOT NULL DEFAULT 0,
		added_at   TIMESTAMPTZ NOT NULL,
		removed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS rental_devices (
		id             TEXT PRIMARY KEY,
		owner          TEXT NOT NULL,
		name           TEXT NOT NULL,
		asset          TEXT NOT NULL,
		hourly_rate    BIGINT NOT NULL,
		deposit_amount BIGINT NOT NULL,
		active         BOOLEAN NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rental_rentals (
		id         TEXT PRIMARY KEY,
		device_id  TEXT NOT NULL,
		renter     TEXT NOT NULL,
		owner      TEXT NOT NULL,
		asset      TEXT NOT NULL,
		deposit    BIGINT NOT NULL,
		charge     BIGINT NOT NULL DEFAULT 0,
		status     TEXT NOT NULL,
		opened_at  TIMESTAMPTZ NOT NULL,
		closed_at  TIMESTAMPTZ,
		settled_at TIMESTAMPTZ
	)`,
}

// Apply executes every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
