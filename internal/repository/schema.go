package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the locations and tenants tables. Tenant names are unique per
// location regardless of case.
const Schema = `
	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		postcode TEXT,
		city TEXT,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		website TEXT,
		phone TEXT,
		email TEXT,
		description TEXT,
		twitter TEXT,
		facebook TEXT,
		instagram TEXT,
		linkedin TEXT,
		tiktok TEXT,
		image_url TEXT,
		parking_spaces INTEGER,
		footfall INTEGER,
		is_managed BOOLEAN NOT NULL DEFAULT FALSE,
		management TEXT,
		management_email TEXT
	);

	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL REFERENCES locations(id),
		name TEXT NOT NULL,
		category TEXT
	);

	CREATE INDEX IF NOT EXISTS tenants_location_id_idx ON tenants (location_id);
	CREATE UNIQUE INDEX IF NOT EXISTS tenants_location_name_key ON tenants (location_id, lower(name));
`

// Execer is satisfied by *pgx.Conn, *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("repository: failed to create schema: %w", err)
	}
	return nil
}
