package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mayankbot01/localllm-gateway/internal/auth/ratelimit"
	"github.com/mayankbot01/localllm-gateway/internal/shared/models"
)

// KeyStore is the slice of the durable store the admission path needs.
// A nil record with a nil error means no active key matches the hash.
type KeyStore interface {
	FindKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)
}

// Admitter decides whether a request may proceed. It owns no durable
// state: the only mutation on the hot path is the limiter's window
// append, and usage accounting happens later, off the response path.
type Admitter struct {
	store   KeyStore
	limiter *ratelimit.Limiter
	logger  *logrus.Logger
}

func NewAdmitter(store KeyStore, limiter *ratelimit.Limiter, logger *logrus.Logger) *Admitter {
	return &Admitter{
		store:   store,
		limiter: limiter,
		logger:  logger,
	}
}

// ExtractCredential pulls the raw API key from either supported header:
//
//	X-API-Key: llm_xxxxxxxx
//	Authorization: Bearer llm_xxxxxxxx
//
// Returns "" when neither yields a value.
func ExtractCredential(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-API-Key")); v != "" {
		return v
	}
	parts := strings.SplitN(strings.TrimSpace(r.Header.Get("Authorization")), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Admit validates a raw credential and returns the matching key record.
//
// Checks run cheapest-first: header value, hash lookup, monthly quota,
// then the sliding window. Quota is deliberately checked before the
// window so an over-budget caller is told so without burning a
// rate-limit slot, and so the more actionable rejection is never masked
// by a coincidental burst.
func (a *Admitter) Admit(ctx context.Context, raw string) (*models.APIKey, error) {
	if raw == "" {
		return nil, ErrUnauthenticated
	}

	key, err := a.store.FindKeyByHash(ctx, HashKey(raw))
	if err != nil {
		a.logger.WithError(err).Error("API key lookup failed")
		return nil, ErrStoreUnavailable
	}
	if key == nil || !key.IsActive {
		return nil, ErrUnauthenticated
	}

	if key.TokensUsedMonth >= key.MonthlyTokenLimit {
		return nil, ErrQuotaExceeded
	}

	if !a.limiter.Allow(key.ID, key.RateLimitPerMin) {
		return nil, ErrRateLimited
	}

	return key, nil
}
