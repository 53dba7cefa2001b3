package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mayankbot01/localllm-gateway/internal/gateway/backend"
)

type ModelsHandler struct {
	backend *backend.Client
	logger  *logrus.Logger
}

func NewModelsHandler(be *backend.Client, logger *logrus.Logger) *ModelsHandler {
	return &ModelsHandler{backend: be, logger: logger}
}

// HandleListModels handles GET /v1/models
func (h *ModelsHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.backend.ListModels(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("model listing failed")
		writeError(w, http.StatusBadGateway, "inference backend error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   models,
	})
}

// HandlePullModel handles POST /v1/models/pull
func (h *ModelsHandler) HandlePullModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	result, err := h.backend.PullModel(r.Context(), req.Model)
	if err != nil {
		h.logger.WithError(err).WithField("model", req.Model).Error("model pull failed")
		writeError(w, http.StatusBadGateway, "inference backend error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
