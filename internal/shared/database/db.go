package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

const createAPIKeysTable = `
CREATE TABLE IF NOT EXISTS api_keys (
	id                  UUID PRIMARY KEY,
	key_hash            TEXT NOT NULL UNIQUE,
	label               TEXT NOT NULL,
	owner_email         TEXT,
	rate_limit_per_min  INTEGER NOT NULL DEFAULT 20,
	monthly_token_limit BIGINT NOT NULL DEFAULT 1000000,
	tokens_used_month   BIGINT NOT NULL DEFAULT 0,
	month_reset_at      TIMESTAMPTZ NOT NULL DEFAULT date_trunc('month', NOW()) + INTERVAL '1 month',
	is_active           BOOLEAN NOT NULL DEFAULT TRUE,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_used_at        TIMESTAMPTZ
)`

const createUsageLogsTable = `
CREATE TABLE IF NOT EXISTS usage_logs (
	id                UUID PRIMARY KEY,
	api_key_id        UUID REFERENCES api_keys(id) ON DELETE CASCADE,
	model             TEXT,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	endpoint          TEXT,
	response_time_ms  FLOAT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// InitSchema creates the gateway tables if they do not exist yet.
// Safe to call on every startup.
func (db *DB) InitSchema(ctx context.Context) error {
	for _, ddl := range []string{createAPIKeysTable, createUsageLogsTable} {
		if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("schema init failed: %w", err)
		}
	}
	return nil
}
