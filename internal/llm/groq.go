package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GroqClient calls Groq's OpenAI-compatible chat completions API.
type GroqClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewGroqClient builds a client; timeout bounds the whole request.
func NewGroqClient(endpoint, apiKey string, timeout time.Duration) *GroqClient {
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	return &GroqClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    "llama-3.3-70b-versatile",
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type groqRequest struct {
	Model    string        `json:"model"`
	Messages []groqMessage `json:"messages"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	Choices []struct {
		Message groqMessage `json:"message"`
	} `json:"choices"`
}

// Generate requests an itinerary from Groq.
func (c *GroqClient) Generate(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(groqRequest{
		Model: c.model,
		Messages: []groqMessage{
			{Role: "system", Content: "You are an expert travel planner."},
			{Role: "user", Content: BuildPrompt(req)},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal groq request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build groq request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("call groq: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return Result{}, fmt.Errorf("read groq response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Result{}, fmt.Errorf("groq: status %d: %s", resp.StatusCode, truncate(raw, 256))
	}

	var parsed groqResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode groq response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return Result{}, errors.New("groq: empty completion")
	}
	return Result{Content: parsed.Choices[0].Message.Content, ModelUsed: ModelGroq}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
