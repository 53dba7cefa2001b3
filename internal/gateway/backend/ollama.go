package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Client talks to an Ollama server's native REST API.
// Reference: https://github.com/ollama/ollama/blob/main/docs/api.md
type Client struct {
	baseURL    string
	httpClient *http.Client
	pullClient *http.Client
	logger     *logrus.Logger
}

// ollamaMessage is a message in Ollama's chat format
type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatRequest represents a request to Ollama's /api/chat
type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// ollamaChatResponse represents a (non-streaming or chunk) chat reply
type ollamaChatResponse struct {
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason"`
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaTagsResponse struct {
	Models []map[string]interface{} `json:"models"`
}

// NewClient creates an Ollama backend client
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		// Pulling a model can take minutes
		pullClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		logger: logger,
	}
}

// EstimateTokens gives a rough token count (~4 chars/token). The
// gateway meters estimated tokens, not tokenizer-exact counts.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// BuildUsage estimates usage for a prompt/completion pair
func BuildUsage(prompt, completion string) openai.Usage {
	pt := EstimateTokens(prompt)
	ct := EstimateTokens(completion)
	return openai.Usage{
		PromptTokens:     pt,
		CompletionTokens: ct,
		TotalTokens:      pt + ct,
	}
}

// PromptText flattens chat messages into one string for estimation
func PromptText(messages []openai.ChatCompletionMessage) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, " ")
}

func (c *Client) convertChatRequest(req ChatRequest, stream bool) ollamaChatRequest {
	messages := make([]ollamaMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	options := map[string]interface{}{}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		options["num_predict"] = *req.MaxTokens
	}

	return ollamaChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   stream,
		Options:  options,
	}
}

func (c *Client) post(ctx context.Context, client *http.Client, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Ollama request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("Ollama error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

// ChatCompletion makes a non-streaming chat request
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	startTime := time.Now()

	resp, err := c.post(ctx, c.httpClient, "/api/chat", c.convertChatRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	content := chatResp.Message.Content
	finishReason := chatResp.DoneReason
	if finishReason == "" {
		finishReason = "stop"
	}

	return &ChatResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []openai.ChatCompletionChoice{
			{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: content,
				},
				FinishReason: openai.FinishReason(finishReason),
			},
		},
		Usage:     BuildUsage(PromptText(req.Messages), content),
		LatencyMs: int(time.Since(startTime).Milliseconds()),
	}, nil
}

// ChatCompletionStream opens a streaming chat request. The caller must
// Close the returned reader.
func (c *Client) ChatCompletionStream(ctx context.Context, req ChatRequest) (*StreamReader, error) {
	resp, err := c.post(ctx, c.httpClient, "/api/chat", c.convertChatRequest(req, true))
	if err != nil {
		return nil, err
	}

	return &StreamReader{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
		model:   req.Model,
		id:      "chatcmpl-" + uuid.NewString(),
	}, nil
}

// Generate makes a raw text-generation request (no chat template)
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	startTime := time.Now()

	options := map[string]interface{}{}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		options["num_predict"] = *req.MaxTokens
	}

	resp, err := c.post(ctx, c.httpClient, "/api/generate", ollamaGenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &GenerateResponse{
		Model:     req.Model,
		Response:  genResp.Response,
		Usage:     BuildUsage(req.Prompt, genResp.Response),
		LatencyMs: int(time.Since(startTime).Milliseconds()),
	}, nil
}

// ListModels returns all models available on the Ollama server
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Ollama error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	models := make([]ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		id, _ := m["name"].(string)
		if id == "" {
			id, _ = m["model"].(string)
		}
		if id == "" {
			id = "unknown"
		}
		models = append(models, ModelInfo{ID: id, Details: m})
	}
	return models, nil
}

// PullModel downloads a model onto the Ollama server
func (c *Client) PullModel(ctx context.Context, model string) (map[string]interface{}, error) {
	resp, err := c.post(ctx, c.pullClient, "/api/pull", map[string]interface{}{
		"model":  model,
		"stream": false,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return result, nil
}
