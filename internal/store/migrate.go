package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; PRAGMA user_version records progress.
var migrations = []string{
	`CREATE TABLE resumes (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		title        TEXT NOT NULL DEFAULT '',
		description  TEXT NOT NULL DEFAULT '',
		first_name   TEXT NOT NULL DEFAULT '',
		last_name    TEXT NOT NULL DEFAULT '',
		job_title    TEXT NOT NULL DEFAULT '',
		city         TEXT NOT NULL DEFAULT '',
		country      TEXT NOT NULL DEFAULT '',
		phone        TEXT NOT NULL DEFAULT '',
		email        TEXT NOT NULL DEFAULT '',
		photo_url    TEXT,
		skills       TEXT NOT NULL DEFAULT '[]',
		summary      TEXT NOT NULL DEFAULT '',
		color_hex    TEXT NOT NULL DEFAULT '',
		border_style TEXT NOT NULL DEFAULT 'squircle',
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	);
	CREATE INDEX resumes_user_updated ON resumes (user_id, updated_at DESC);

	CREATE TABLE work_experiences (
		resume_id   TEXT NOT NULL REFERENCES resumes (id) ON DELETE CASCADE,
		ord         INTEGER NOT NULL,
		id          TEXT NOT NULL UNIQUE,
		position    TEXT NOT NULL DEFAULT '',
		company     TEXT NOT NULL DEFAULT '',
		start_date  TEXT,
		end_date    TEXT,
		description TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (resume_id, ord)
	);

	CREATE TABLE educations (
		resume_id  TEXT NOT NULL REFERENCES resumes (id) ON DELETE CASCADE,
		ord        INTEGER NOT NULL,
		id         TEXT NOT NULL UNIQUE,
		degree     TEXT NOT NULL DEFAULT '',
		school     TEXT NOT NULL DEFAULT '',
		start_date TEXT,
		end_date   TEXT,
		PRIMARY KEY (resume_id, ord)
	);`,

	`CREATE TABLE user_subscriptions (
		user_id                TEXT PRIMARY KEY,
		stripe_customer_id     TEXT NOT NULL UNIQUE,
		stripe_subscription_id TEXT NOT NULL UNIQUE,
		stripe_price_id        TEXT NOT NULL,
		current_period_end     INTEGER NOT NULL,
		cancel_at_period_end   INTEGER NOT NULL DEFAULT 0,
		created_at             INTEGER NOT NULL,
		updated_at             INTEGER NOT NULL
	);

	CREATE TABLE user_customers (
		user_id            TEXT PRIMARY KEY,
		stripe_customer_id TEXT NOT NULL UNIQUE,
		created_at         INTEGER NOT NULL
	);`,
}

// Migrate brings the schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		err := s.runTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1))
			return err
		})
		if err != nil {
			return fmt.Errorf("store: migration %d: %w", i+1, err)
		}
	}
	return nil
}

// SchemaVersion returns the applied migration count.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	return version, err
}
