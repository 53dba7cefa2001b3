package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mayankbot01/localllm-gateway/internal/shared/models"
)

// IncrementUsage adds tokens to a key's monthly counter, handling cycle
// rollover in the same statement.
//
// Both CASE expressions see the pre-update row and Postgres serializes
// concurrent updates of the same row, so the rollover comparison and
// the counter write are one indivisible operation: no increment can be
// lost and no request can double-reset the cycle. When the stored
// reset timestamp has passed, the counter is replaced by the incoming
// amount and the anchor advances exactly one month from its previous
// value, never from now(), keeping the billing anchor stable.
func (db *DB) IncrementUsage(ctx context.Context, keyID string, tokens int64) error {
	query := `
		UPDATE api_keys SET
			tokens_used_month = CASE WHEN month_reset_at <= NOW()
				THEN $2
				ELSE tokens_used_month + $2 END,
			month_reset_at = CASE WHEN month_reset_at <= NOW()
				THEN month_reset_at + INTERVAL '1 month'
				ELSE month_reset_at END
		WHERE id = $1
	`

	if _, err := db.conn.ExecContext(ctx, query, keyID, tokens); err != nil {
		return fmt.Errorf("usage increment failed: %w", err)
	}
	return nil
}

// InsertUsageLog appends one request's usage record
func (db *DB) InsertUsageLog(ctx context.Context, log *models.UsageLog) error {
	query := `
		INSERT INTO usage_logs (
			id, api_key_id, model, prompt_tokens, completion_tokens,
			total_tokens, endpoint, response_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := db.conn.ExecContext(ctx, query,
		uuid.NewString(),
		log.APIKeyID,
		log.Model,
		log.PromptTokens,
		log.CompletionTokens,
		log.TotalTokens,
		log.Endpoint,
		log.ResponseTimeMs,
	)
	return err
}

// KeyUsage returns a key's quota state plus its 20 most recent requests.
func (db *DB) KeyUsage(ctx context.Context, keyID string) (*models.KeyUsageStats, error) {
	stats := &models.KeyUsageStats{KeyID: keyID}

	keyQuery := `
		SELECT label, monthly_token_limit, tokens_used_month, month_reset_at, last_used_at
		FROM api_keys WHERE id = $1
	`
	err := db.conn.QueryRowContext(ctx, keyQuery, keyID).Scan(
		&stats.Label,
		&stats.MonthlyTokenLimit,
		&stats.TokensUsedThisMonth,
		&stats.MonthResetsAt,
		&stats.LastUsedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("usage stats lookup failed: %w", err)
	}

	logsQuery := `
		SELECT model, endpoint, total_tokens, created_at
		FROM usage_logs
		WHERE api_key_id = $1
		ORDER BY created_at DESC
		LIMIT 20
	`
	rows, err := db.conn.QueryContext(ctx, logsQuery, keyID)
	if err != nil {
		return nil, fmt.Errorf("usage history lookup failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.RecentUsage
		if err := rows.Scan(&r.Model, &r.Endpoint, &r.TotalTokens, &r.CreatedAt); err != nil {
			return nil, err
		}
		stats.RecentRequests = append(stats.RecentRequests, r)
	}
	return stats, rows.Err()
}
