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

// GeminiClient calls Google's Gemini generateContent API.
type GeminiClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewGeminiClient builds a client; timeout bounds the whole request.
func NewGeminiClient(endpoint, apiKey string, timeout time.Duration) *GeminiClient {
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	return &GeminiClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate requests an itinerary from Gemini.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: BuildPrompt(req)}}},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal gemini request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return Result{}, fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Result{}, fmt.Errorf("gemini: status %d: %s", resp.StatusCode, truncate(raw, 256))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return Result{}, errors.New("gemini: empty completion")
	}
	text := parsed.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return Result{}, errors.New("gemini: empty completion")
	}
	return Result{Content: text, ModelUsed: ModelGemini}, nil
}
