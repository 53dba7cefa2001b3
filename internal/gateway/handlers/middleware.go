package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/mayankbot01/localllm-gateway/internal/auth"
	"github.com/mayankbot01/localllm-gateway/internal/shared/metrics"
	"github.com/mayankbot01/localllm-gateway/internal/shared/models"
)

type contextKey string

const apiKeyContextKey contextKey = "api_key"

// KeyFromContext returns the admitted key record, or nil outside the
// auth middleware.
func KeyFromContext(ctx context.Context) *models.APIKey {
	key, _ := ctx.Value(apiKeyContextKey).(*models.APIKey)
	return key
}

type Middleware struct {
	admitter    *auth.Admitter
	adminSecret string
	logger      *logrus.Logger
}

func NewMiddleware(admitter *auth.Admitter, adminSecret string, logger *logrus.Logger) *Middleware {
	return &Middleware{
		admitter:    admitter,
		adminSecret: adminSecret,
		logger:      logger,
	}
}

// AuthMiddleware gates protected routes behind key admission
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := auth.ExtractCredential(r)

		key, err := m.admitter.Admit(r.Context(), raw)
		if err != nil {
			m.rejectAdmission(w, err)
			return
		}

		metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(key.RateLimitPerMin))

		ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) rejectAdmission(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		metrics.AdmissionsTotal.WithLabelValues("unauthenticated").Inc()
		writeError(w, http.StatusUnauthorized,
			"API key required. Send it as X-API-Key: <key> or Authorization: Bearer <key>")
	case errors.Is(err, auth.ErrQuotaExceeded):
		metrics.AdmissionsTotal.WithLabelValues("quota_exceeded").Inc()
		writeError(w, http.StatusTooManyRequests,
			"Monthly token limit reached. Resets next month.")
	case errors.Is(err, auth.ErrRateLimited):
		metrics.AdmissionsTotal.WithLabelValues("rate_limited").Inc()
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests,
			"Rate limit exceeded. Try again later.")
	case errors.Is(err, auth.ErrStoreUnavailable):
		metrics.AdmissionsTotal.WithLabelValues("store_error").Inc()
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		// Unexpected internal fault: generic outcome, no detail leaks.
		metrics.AdmissionsTotal.WithLabelValues("internal").Inc()
		m.logger.WithError(err).Error("unexpected admission failure")
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	}
}

// AdminMiddleware gates the key-management surface behind the shared
// admin secret header.
func (m *Middleware) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(m.adminSecret)) != 1 {
			writeError(w, http.StatusForbidden, "invalid admin secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware handles CORS
func (m *Middleware) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Admin-Secret")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
