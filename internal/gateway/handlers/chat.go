package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mayankbot01/localllm-gateway/internal/gateway/backend"
	"github.com/mayankbot01/localllm-gateway/internal/shared/metrics"
	"github.com/mayankbot01/localllm-gateway/internal/usage"
)

// ResponseCache is the slice of the cache the chat handler needs. A hit
// bypasses the backend; the request is still admitted and recorded with
// the cached usage counts.
type ResponseCache interface {
	Get(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error)
	Set(ctx context.Context, req backend.ChatRequest, resp *backend.ChatResponse, ttl time.Duration) error
}

type ChatHandler struct {
	backend      *backend.Client
	cache        ResponseCache // nil when caching is disabled
	recorder     *usage.Recorder
	logger       *logrus.Logger
	defaultModel string
	cacheTTL     time.Duration
}

func NewChatHandler(be *backend.Client, cache ResponseCache, recorder *usage.Recorder, logger *logrus.Logger, defaultModel string, cacheTTL time.Duration) *ChatHandler {
	return &ChatHandler{
		backend:      be,
		cache:        cache,
		recorder:     recorder,
		logger:       logger,
		defaultModel: defaultModel,
		cacheTTL:     cacheTTL,
	}
}

// HandleChatCompletion handles POST /v1/chat/completions
func (h *ChatHandler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	key := KeyFromContext(ctx)
	if key == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req backend.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Model == "" {
		req.Model = h.defaultModel
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	if req.Stream {
		h.handleStreamingChat(w, r, req)
		return
	}

	// Check cache if enabled
	var cacheHit bool
	var resp *backend.ChatResponse
	if h.cache != nil {
		if cachedResp, err := h.cache.Get(ctx, req); err == nil {
			resp = cachedResp
			cacheHit = true
		}
	}

	if !cacheHit {
		var err error
		resp, err = h.backend.ChatCompletion(ctx, req)
		if err != nil {
			h.logger.WithError(err).Error("backend chat request failed")
			writeError(w, http.StatusBadGateway, "inference backend error")
			return
		}
		metrics.BackendLatency.WithLabelValues("/v1/chat/completions").Observe(float64(resp.LatencyMs))

		if h.cache != nil {
			if err := h.cache.Set(ctx, req, resp, h.cacheTTL); err != nil {
				h.logger.WithError(err).Warn("failed to cache response")
			}
		}
	}

	totalLatency := time.Since(startTime)
	resp.LatencyMs = int(totalLatency.Milliseconds())

	w.Header().Set("X-Cache-Hit", fmt.Sprintf("%v", cacheHit))
	w.Header().Set("X-Latency-Ms", fmt.Sprintf("%d", resp.LatencyMs))

	h.recorder.Record(usage.Entry{
		KeyID:            key.ID,
		Model:            req.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Endpoint:         "/v1/chat/completions",
		LatencyMs:        float64(totalLatency.Milliseconds()),
	})

	writeJSON(w, http.StatusOK, resp)
}

// handleStreamingChat streams chunks as server-sent events
func (h *ChatHandler) handleStreamingChat(w http.ResponseWriter, r *http.Request, req backend.ChatRequest) {
	ctx := r.Context()
	startTime := time.Now()
	key := KeyFromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	stream, err := h.backend.ChatCompletionStream(ctx, req)
	if err != nil {
		h.logger.WithError(err).Error("backend stream request failed")
		writeError(w, http.StatusBadGateway, "inference backend error")
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Client may already be gone; whatever was generated before
			// the failure still gets accounted below.
			h.logger.WithError(err).Warn("stream interrupted")
			fmt.Fprintf(w, "data: {\"error\": \"stream interrupted\"}\n\n")
			flusher.Flush()
			break
		}

		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", string(data))
		flusher.Flush()
	}

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()

	totalLatency := time.Since(startTime)
	metrics.BackendLatency.WithLabelValues("/v1/chat/completions").Observe(float64(totalLatency.Milliseconds()))

	streamUsage := backend.BuildUsage(backend.PromptText(req.Messages), stream.Content())
	h.recorder.Record(usage.Entry{
		KeyID:            key.ID,
		Model:            req.Model,
		PromptTokens:     streamUsage.PromptTokens,
		CompletionTokens: streamUsage.CompletionTokens,
		TotalTokens:      streamUsage.TotalTokens,
		Endpoint:         "/v1/chat/completions",
		LatencyMs:        float64(totalLatency.Milliseconds()),
	})
}
