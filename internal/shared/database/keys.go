package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mayankbot01/localllm-gateway/internal/shared/models"
)

const keyColumns = `id, key_hash, label, owner_email, rate_limit_per_min,
	monthly_token_limit, tokens_used_month, month_reset_at, is_active,
	created_at, last_used_at`

func scanKey(row *sql.Row) (*models.APIKey, error) {
	var key models.APIKey
	err := row.Scan(
		&key.ID,
		&key.KeyHash,
		&key.Label,
		&key.OwnerEmail,
		&key.RateLimitPerMin,
		&key.MonthlyTokenLimit,
		&key.TokensUsedMonth,
		&key.MonthResetAt,
		&key.IsActive,
		&key.CreatedAt,
		&key.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// FindKeyByHash looks up an active key by its credential hash.
// Returns (nil, nil) when no active record matches.
func (db *DB) FindKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE key_hash = $1 AND is_active = true`

	key, err := scanKey(db.conn.QueryRowContext(ctx, query, hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("key lookup failed: %w", err)
	}
	return key, nil
}

// CreateKey inserts a new key record for an already-hashed credential.
func (db *DB) CreateKey(ctx context.Context, keyHash, label string, ownerEmail *string, ratePerMin int, monthlyTokens int64) (*models.APIKey, error) {
	query := `
		INSERT INTO api_keys (id, key_hash, label, owner_email, rate_limit_per_min, monthly_token_limit)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + keyColumns

	row := db.conn.QueryRowContext(ctx, query,
		uuid.NewString(), keyHash, label, ownerEmail, ratePerMin, monthlyTokens)

	key, err := scanKey(row)
	if err != nil {
		return nil, fmt.Errorf("key insert failed: %w", err)
	}
	return key, nil
}

// DeactivateKey flips a key's active flag off. Soft delete only; there
// is no re-activation path. Returns false when the id is unknown or the
// key was already revoked.
func (db *DB) DeactivateKey(ctx context.Context, keyID string) (bool, error) {
	query := `UPDATE api_keys SET is_active = false WHERE id = $1 AND is_active = true`

	res, err := db.conn.ExecContext(ctx, query, keyID)
	if err != nil {
		return false, fmt.Errorf("key deactivation failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListKeys returns summaries of all keys, newest first. Hashes and raw
// secrets are never part of the listing.
func (db *DB) ListKeys(ctx context.Context) ([]models.APIKeySummary, error) {
	query := `
		SELECT id, label, owner_email, rate_limit_per_min, monthly_token_limit,
		       tokens_used_month, is_active, created_at, last_used_at
		FROM api_keys
		ORDER BY created_at DESC
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("key listing failed: %w", err)
	}
	defer rows.Close()

	var summaries []models.APIKeySummary
	for rows.Next() {
		var s models.APIKeySummary
		if err := rows.Scan(
			&s.ID,
			&s.Label,
			&s.OwnerEmail,
			&s.RateLimitPerMin,
			&s.MonthlyTokenLimit,
			&s.TokensUsedMonth,
			&s.IsActive,
			&s.CreatedAt,
			&s.LastUsedAt,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// MarkLastUsed updates the last_used_at timestamp
func (db *DB) MarkLastUsed(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`
	_, err := db.conn.ExecContext(ctx, query, keyID)
	return err
}
