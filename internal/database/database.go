package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bookcircle/pkg/eventstore"
)

// UniqueViolation is the Postgres error code raised by unique indexes.
const UniqueViolation = "23505"

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// IsUniqueViolation reports whether err came from a unique constraint,
// optionally a specific one.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != UniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	is_admin BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS circles (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS circle_members (
	circle_id UUID NOT NULL REFERENCES circles(id),
	user_id UUID NOT NULL REFERENCES users(id),
	PRIMARY KEY (circle_id, user_id)
);

CREATE TABLE IF NOT EXISTS books (
	id UUID PRIMARY KEY,
	isbn TEXT NOT NULL,
	title TEXT NOT NULL,
	subtitle TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	publication_year TEXT NOT NULL DEFAULT '',
	authors JSONB NOT NULL DEFAULT '[]',
	cover_urls JSONB NOT NULL DEFAULT '[]',
	cover_file_id TEXT NOT NULL DEFAULT '',
	cover_url TEXT NOT NULL DEFAULT '',
	raw_data JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT books_isbn_key UNIQUE (isbn)
);

ALTER TABLE books ADD COLUMN IF NOT EXISTS raw_data JSONB NOT NULL DEFAULT '{}';

CREATE TABLE IF NOT EXISTS categories (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	CONSTRAINT categories_name_key UNIQUE (name)
);

CREATE TABLE IF NOT EXISTS book_categories (
	book_id UUID NOT NULL REFERENCES books(id),
	category_id UUID NOT NULL REFERENCES categories(id),
	position INT NOT NULL,
	PRIMARY KEY (book_id, category_id)
);

CREATE TABLE IF NOT EXISTS holdings (
	id UUID PRIMARY KEY,
	book_id UUID NOT NULL REFERENCES books(id),
	owner_id UUID NOT NULL REFERENCES users(id),
	is_available BOOLEAN NOT NULL DEFAULT TRUE,
	removed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS loans (
	id UUID PRIMARY KEY,
	holding_id UUID NOT NULL REFERENCES holdings(id),
	borrower_id UUID NOT NULL REFERENCES users(id),
	status TEXT NOT NULL,
	requested_date TIMESTAMPTZ NOT NULL,
	loan_date TIMESTAMPTZ,
	return_date TIMESTAMPTZ,
	version INT NOT NULL DEFAULT 1
);

CREATE UNIQUE INDEX IF NOT EXISTS loans_one_open_per_holding
	ON loans (holding_id) WHERE status IN ('pending', 'lent_out');
CREATE INDEX IF NOT EXISTS loans_borrower_idx ON loans (borrower_id);
CREATE INDEX IF NOT EXISTS holdings_owner_idx ON holdings (owner_id);
`

// Migrate creates any missing tables and indexes.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, eventstore.Schema); err != nil {
		return fmt.Errorf("apply history schema: %w", err)
	}
	return nil
}
