package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/mayankbot01/localllm-gateway/internal/auth"
	"github.com/mayankbot01/localllm-gateway/internal/shared/models"
)

// KeyAdminStore is the slice of the store the admin surface needs.
type KeyAdminStore interface {
	CreateKey(ctx context.Context, keyHash, label string, ownerEmail *string, ratePerMin int, monthlyTokens int64) (*models.APIKey, error)
	DeactivateKey(ctx context.Context, keyID string) (bool, error)
	ListKeys(ctx context.Context) ([]models.APIKeySummary, error)
}

type AdminHandler struct {
	store          KeyAdminStore
	logger         *logrus.Logger
	keyPrefix      string
	defaultRate    int
	defaultMonthly int64
}

func NewAdminHandler(store KeyAdminStore, logger *logrus.Logger, keyPrefix string, defaultRate int, defaultMonthly int64) *AdminHandler {
	return &AdminHandler{
		store:          store,
		logger:         logger,
		keyPrefix:      keyPrefix,
		defaultRate:    defaultRate,
		defaultMonthly: defaultMonthly,
	}
}

type createKeyRequest struct {
	Label             string  `json:"label"`
	OwnerEmail        *string `json:"owner_email,omitempty"`
	RateLimitPerMin   int     `json:"rate_limit_per_min"`
	MonthlyTokenLimit int64   `json:"monthly_token_limit"`
}

type createKeyResponse struct {
	ID                string    `json:"id"`
	Key               string    `json:"key"` // shown ONCE
	Label             string    `json:"label"`
	OwnerEmail        *string   `json:"owner_email,omitempty"`
	RateLimitPerMin   int       `json:"rate_limit_per_min"`
	MonthlyTokenLimit int64     `json:"monthly_token_limit"`
	CreatedAt         time.Time `json:"created_at"`
}

// HandleCreateKey handles POST /admin/api-keys
func (h *AdminHandler) HandleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, "label is required")
		return
	}
	if req.RateLimitPerMin <= 0 {
		req.RateLimitPerMin = h.defaultRate
	}
	if req.MonthlyTokenLimit <= 0 {
		req.MonthlyTokenLimit = h.defaultMonthly
	}

	rawKey, err := auth.GenerateKey(h.keyPrefix)
	if err != nil {
		h.logger.WithError(err).Error("key generation failed")
		writeError(w, http.StatusInternalServerError, "failed to create API key")
		return
	}

	key, err := h.store.CreateKey(r.Context(), auth.HashKey(rawKey), req.Label,
		req.OwnerEmail, req.RateLimitPerMin, req.MonthlyTokenLimit)
	if err != nil {
		h.logger.WithError(err).Error("key insert failed")
		writeError(w, http.StatusInternalServerError, "failed to create API key")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"key_id": key.ID,
		"label":  key.Label,
	}).Info("created API key")

	writeJSON(w, http.StatusCreated, createKeyResponse{
		ID:                key.ID,
		Key:               rawKey,
		Label:             key.Label,
		OwnerEmail:        key.OwnerEmail,
		RateLimitPerMin:   key.RateLimitPerMin,
		MonthlyTokenLimit: key.MonthlyTokenLimit,
		CreatedAt:         key.CreatedAt,
	})
}

// HandleRevokeKey handles DELETE /admin/api-keys/{id}
func (h *AdminHandler) HandleRevokeKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "id")

	revoked, err := h.store.DeactivateKey(r.Context(), keyID)
	if err != nil {
		h.logger.WithError(err).WithField("key_id", keyID).Error("key revocation failed")
		writeError(w, http.StatusInternalServerError, "failed to revoke API key")
		return
	}
	if !revoked {
		writeError(w, http.StatusNotFound, "key not found")
		return
	}

	h.logger.WithField("key_id", keyID).Info("revoked API key")
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("API key %s revoked", keyID),
	})
}

// HandleListKeys handles GET /admin/api-keys
func (h *AdminHandler) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.ListKeys(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("key listing failed")
		writeError(w, http.StatusInternalServerError, "failed to list API keys")
		return
	}
	if summaries == nil {
		summaries = []models.APIKeySummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}
