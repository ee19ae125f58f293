package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Fallback tries each generator in order and returns the first success. Used
// to prefer Groq and fall back to Gemini when the primary provider is down.
type Fallback struct {
	generators []Generator
	logger     *zap.Logger
}

// NewFallback chains generators in preference order.
func NewFallback(logger *zap.Logger, generators ...Generator) *Fallback {
	return &Fallback{generators: generators, logger: logger}
}

// Generate returns the first successful result, or the last provider error if
// every generator fails.
func (f *Fallback) Generate(ctx context.Context, req Request) (Result, error) {
	var lastErr error
	for i, g := range f.generators {
		res, err := g.Generate(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		f.logger.Warn("content provider failed, trying next",
			zap.Int("provider_index", i),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
	}
	if lastErr == nil {
		return Result{}, fmt.Errorf("no content generators configured")
	}
	return Result{}, lastErr
}
