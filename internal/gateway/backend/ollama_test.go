package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("hi"))
	assert.Equal(t, 3, EstimateTokens("twelve chars"))
}

func TestBuildUsage(t *testing.T) {
	u := BuildUsage("a prompt of text", "a completion")
	assert.Equal(t, u.PromptTokens+u.CompletionTokens, u.TotalTokens)
	assert.Equal(t, 4, u.PromptTokens)
	assert.Equal(t, 3, u.CompletionTokens)
}

func TestChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen2.5:7b", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:    ollamaMessage{Role: "assistant", Content: "hello back"},
			Done:       true,
			DoneReason: "stop",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second, testLogger())
	resp, err := c.ChatCompletion(context.Background(), ChatRequest{
		Model: "qwen2.5:7b",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "hello"},
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hello back", resp.Choices[0].Message.Content)
	assert.Equal(t, openai.FinishReason("stop"), resp.Choices[0].FinishReason)
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Greater(t, resp.Usage.TotalTokens, 0)
}

func TestChatCompletion_BackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second, testLogger())
	_, err := c.ChatCompletion(context.Background(), ChatRequest{Model: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestChatCompletionStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		chunks := []ollamaChatResponse{
			{Message: ollamaMessage{Content: "Hel"}},
			{Message: ollamaMessage{Content: "lo"}},
			{Message: ollamaMessage{Content: "!"}, Done: true, DoneReason: "stop"},
		}
		for _, chunk := range chunks {
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "%s\n", data)
			flusher.Flush()
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second, testLogger())
	stream, err := c.ChatCompletionStream(context.Background(), ChatRequest{
		Model:    "qwen2.5:7b",
		Messages: []openai.ChatCompletionMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	defer stream.Close()

	var deltas []string
	var finish openai.FinishReason
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Len(t, chunk.Choices, 1)
		deltas = append(deltas, chunk.Choices[0].Delta.Content)
		finish = chunk.Choices[0].FinishReason
	}

	assert.Equal(t, []string{"Hel", "lo", "!"}, deltas)
	assert.Equal(t, openai.FinishReason("stop"), finish)
	assert.Equal(t, "Hello!", stream.Content())
}

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "generated text", Done: true})
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second, testLogger())
	resp, err := c.Generate(context.Background(), GenerateRequest{Model: "qwen2.5:7b", Prompt: "write"})
	require.NoError(t, err)
	assert.Equal(t, "generated text", resp.Response)
	assert.Greater(t, resp.Usage.TotalTokens, 0)
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"models": []map[string]interface{}{
				{"name": "qwen2.5:7b", "size": 4_600_000_000},
				{"model": "llama3:8b"},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second, testLogger())
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "qwen2.5:7b", models[0].ID)
	assert.Equal(t, "llama3:8b", models[1].ID)
}
