package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mayankbot01/localllm-gateway/internal/shared/models"
)

// UsageStatsStore is the slice of the store the usage endpoint needs.
type UsageStatsStore interface {
	KeyUsage(ctx context.Context, keyID string) (*models.KeyUsageStats, error)
}

type UsageHandler struct {
	store  UsageStatsStore
	logger *logrus.Logger
}

func NewUsageHandler(store UsageStatsStore, logger *logrus.Logger) *UsageHandler {
	return &UsageHandler{store: store, logger: logger}
}

// HandleKeyUsage handles GET /v1/usage for the authenticated key
func (h *UsageHandler) HandleKeyUsage(w http.ResponseWriter, r *http.Request) {
	key := KeyFromContext(r.Context())
	if key == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.store.KeyUsage(r.Context(), key.ID)
	if err != nil {
		h.logger.WithError(err).WithField("key_id", key.ID).Error("usage stats lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to load usage stats")
		return
	}
	if stats.RecentRequests == nil {
		stats.RecentRequests = []models.RecentUsage{}
	}

	writeJSON(w, http.StatusOK, stats)
}
