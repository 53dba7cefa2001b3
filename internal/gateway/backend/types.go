package backend

import "github.com/sashabaranov/go-openai"

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model       string                         `json:"model"`
	Messages    []openai.ChatCompletionMessage `json:"messages"`
	Temperature *float32                       `json:"temperature,omitempty"`
	MaxTokens   *int                           `json:"max_tokens,omitempty"`
	Stream      bool                           `json:"stream,omitempty"`
}

// ChatResponse represents an OpenAI-compatible chat completion response
type ChatResponse struct {
	ID        string                        `json:"id"`
	Object    string                        `json:"object"`
	Created   int64                         `json:"created"`
	Model     string                        `json:"model"`
	Choices   []openai.ChatCompletionChoice `json:"choices"`
	Usage     openai.Usage                  `json:"usage"`
	LatencyMs int                           `json:"latency_ms,omitempty"`
}

// GenerateRequest represents a raw text-generation request (no chat template)
type GenerateRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// GenerateResponse represents a raw text-generation response
type GenerateResponse struct {
	Model     string       `json:"model"`
	Response  string       `json:"response"`
	Usage     openai.Usage `json:"usage"`
	LatencyMs int          `json:"latency_ms,omitempty"`
}

// ModelInfo describes one model available on the backend
type ModelInfo struct {
	ID      string                 `json:"id"`
	Details map[string]interface{} `json:"details,omitempty"`
}
