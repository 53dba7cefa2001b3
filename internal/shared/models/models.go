package models

import "time"

// APIKey represents a gateway API key record
type APIKey struct {
	ID                string
	KeyHash           string
	Label             string
	OwnerEmail        *string
	RateLimitPerMin   int
	MonthlyTokenLimit int64
	TokensUsedMonth   int64
	MonthResetAt      time.Time
	IsActive          bool
	CreatedAt         time.Time
	LastUsedAt        *time.Time
}

// APIKeySummary is the listing view of a key. It never carries the
// raw secret or the hash.
type APIKeySummary struct {
	ID                string     `json:"id"`
	Label             string     `json:"label"`
	OwnerEmail        *string    `json:"owner_email,omitempty"`
	RateLimitPerMin   int        `json:"rate_limit_per_min"`
	MonthlyTokenLimit int64      `json:"monthly_token_limit"`
	TokensUsedMonth   int64      `json:"tokens_used_month"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
}

// UsageLog represents one completed request's usage record
type UsageLog struct {
	ID               string
	APIKeyID         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Endpoint         string
	ResponseTimeMs   float64
	CreatedAt        time.Time
}

// RecentUsage is one row of a key's recent request history
type RecentUsage struct {
	Model       string    `json:"model"`
	Endpoint    string    `json:"endpoint"`
	TotalTokens int       `json:"total_tokens"`
	CreatedAt   time.Time `json:"created_at"`
}

// KeyUsageStats is the response for the per-key usage endpoint
type KeyUsageStats struct {
	KeyID               string        `json:"key_id"`
	Label               string        `json:"label"`
	MonthlyTokenLimit   int64         `json:"monthly_token_limit"`
	TokensUsedThisMonth int64         `json:"tokens_used_this_month"`
	MonthResetsAt       time.Time     `json:"month_resets_at"`
	LastUsedAt          *time.Time    `json:"last_used_at,omitempty"`
	RecentRequests      []RecentUsage `json:"recent_requests"`
}
