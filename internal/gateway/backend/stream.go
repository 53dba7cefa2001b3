package backend

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// StreamReader converts Ollama's line-delimited JSON chat stream into
// OpenAI-style chunk responses. It accumulates the generated content so
// the caller can estimate usage after the stream ends, including when
// the client disconnects mid-stream.
type StreamReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	model   string
	id      string
	content strings.Builder
	done    bool
}

// Recv returns the next chunk, or io.EOF when the stream is complete.
func (r *StreamReader) Recv() (openai.ChatCompletionStreamResponse, error) {
	if r.done {
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}

	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}

		delta := chunk.Message.Content
		r.content.WriteString(delta)

		streamResp := openai.ChatCompletionStreamResponse{
			ID:      r.id,
			Object:  "chat.completion.chunk",
			Created: time.Now().Unix(),
			Model:   r.model,
			Choices: []openai.ChatCompletionStreamChoice{
				{
					Index: 0,
					Delta: openai.ChatCompletionStreamChoiceDelta{
						Role:    openai.ChatMessageRoleAssistant,
						Content: delta,
					},
				},
			},
		}
		if chunk.Done {
			r.done = true
			finish := chunk.DoneReason
			if finish == "" {
				finish = "stop"
			}
			streamResp.Choices[0].FinishReason = openai.FinishReason(finish)
		}
		return streamResp, nil
	}

	r.done = true
	if err := r.scanner.Err(); err != nil {
		return openai.ChatCompletionStreamResponse{}, err
	}
	return openai.ChatCompletionStreamResponse{}, io.EOF
}

// Content returns everything generated so far.
func (r *StreamReader) Content() string {
	return r.content.String()
}

// Close releases the underlying response body.
func (r *StreamReader) Close() error {
	return r.body.Close()
}
