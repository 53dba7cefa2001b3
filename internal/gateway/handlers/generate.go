package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mayankbot01/localllm-gateway/internal/gateway/backend"
	"github.com/mayankbot01/localllm-gateway/internal/shared/metrics"
	"github.com/mayankbot01/localllm-gateway/internal/usage"
)

type GenerateHandler struct {
	backend      *backend.Client
	recorder     *usage.Recorder
	logger       *logrus.Logger
	defaultModel string
}

func NewGenerateHandler(be *backend.Client, recorder *usage.Recorder, logger *logrus.Logger, defaultModel string) *GenerateHandler {
	return &GenerateHandler{
		backend:      be,
		recorder:     recorder,
		logger:       logger,
		defaultModel: defaultModel,
	}
}

// HandleGenerate handles POST /v1/generate (raw prompt, no chat template)
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	key := KeyFromContext(ctx)
	if key == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req backend.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Model == "" {
		req.Model = h.defaultModel
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt must not be empty")
		return
	}

	resp, err := h.backend.Generate(ctx, req)
	if err != nil {
		h.logger.WithError(err).Error("backend generate request failed")
		writeError(w, http.StatusBadGateway, "inference backend error")
		return
	}

	totalLatency := time.Since(startTime)
	resp.LatencyMs = int(totalLatency.Milliseconds())
	metrics.BackendLatency.WithLabelValues("/v1/generate").Observe(float64(resp.LatencyMs))

	h.recorder.Record(usage.Entry{
		KeyID:            key.ID,
		Model:            req.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Endpoint:         "/v1/generate",
		LatencyMs:        float64(totalLatency.Milliseconds()),
	})

	writeJSON(w, http.StatusOK, resp)
}
