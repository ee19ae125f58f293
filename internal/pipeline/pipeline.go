package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tripflow/internal/llm"
	"tripflow/internal/models"
	"tripflow/internal/pdf"
	"tripflow/internal/telemetry"
)

// Store is the slice of itinerary persistence the pipeline needs.
type Store interface {
	Get(ctx context.Context, id string) (models.Itinerary, error)
	ClaimProcessing(ctx context.Context, id string) (bool, error)
	SetStatus(ctx context.Context, id, status string, completedAt *time.Time) error
	SetFailed(ctx context.Context, id, lastError string) error
	SetContent(ctx context.Context, id, content, modelUsed, pdfFilename, pdfPath string) error
	SetProgress(ctx context.Context, id string, progress int) error
}

// Pipeline is the single code path that turns a pending itinerary into
// completed or failed. Both the queue worker and the stuck-job monitor call
// Process; the claim makes concurrent invocations for one id safe.
type Pipeline struct {
	store     Store
	generator llm.Generator
	renderer  pdf.Renderer
	logger    *zap.Logger
}

func New(store Store, generator llm.Generator, renderer pdf.Renderer, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		generator: generator,
		renderer:  renderer,
		logger:    logger,
	}
}

// Process drives one itinerary through generation, rendering, and persistence.
// A record that is no longer pending is skipped without error; that is how
// at-least-once delivery and the monitor's direct dispatch stay idempotent.
// Step failures mark the record failed (best effort) and are returned to the
// caller, which owns retry policy.
func (p *Pipeline) Process(ctx context.Context, itineraryID string) error {
	claimed, err := p.store.ClaimProcessing(ctx, itineraryID)
	if err != nil {
		return &StoreError{Op: "claim", Err: err}
	}
	if !claimed {
		p.logger.Debug("itinerary already claimed, skipping",
			zap.String("itinerary_id", itineraryID))
		return nil
	}

	it, err := p.store.Get(ctx, itineraryID)
	if err != nil {
		p.markFailed(ctx, itineraryID, err.Error())
		return &StoreError{Op: "get", Err: err}
	}

	genStart := time.Now()
	result, err := p.generator.Generate(ctx, llm.Request{
		Destination: it.Destination,
		StartDate:   it.StartDate,
		EndDate:     it.EndDate,
		Days:        it.Days(),
		Budget:      derefOr(it.Budget, ""),
		Interests:   it.Interests,
	})
	telemetry.StepDuration.WithLabelValues("generate").Observe(time.Since(genStart).Seconds())
	if err != nil {
		p.markFailed(ctx, itineraryID, err.Error())
		return &GenerationError{Err: err}
	}
	p.logger.Info("content generated",
		zap.String("itinerary_id", itineraryID),
		zap.String("model", result.ModelUsed),
		zap.Duration("duration", time.Since(genStart)))

	renderStart := time.Now()
	out, err := p.renderer.Render(ctx, it, result.Content)
	telemetry.StepDuration.WithLabelValues("render").Observe(time.Since(renderStart).Seconds())
	if err != nil {
		p.markFailed(ctx, itineraryID, err.Error())
		return &RenderError{Err: err}
	}
	p.logger.Info("pdf rendered",
		zap.String("itinerary_id", itineraryID),
		zap.String("pdf", out.Filename),
		zap.Duration("duration", time.Since(renderStart)))

	if err := p.store.SetContent(ctx, itineraryID, result.Content, result.ModelUsed, out.Filename, out.Path); err != nil {
		p.markFailed(ctx, itineraryID, err.Error())
		return &StoreError{Op: "set content", Err: err}
	}

	// Observability only; completion does not depend on it.
	_ = p.store.SetProgress(ctx, itineraryID, 100)

	now := time.Now().UTC()
	if err := p.store.SetStatus(ctx, itineraryID, models.StatusCompleted, &now); err != nil {
		p.markFailed(ctx, itineraryID, err.Error())
		return &StoreError{Op: "set status", Err: err}
	}

	p.logger.Info("itinerary completed",
		zap.String("itinerary_id", itineraryID),
		zap.String("model", result.ModelUsed),
		zap.Duration("total", time.Since(genStart)))
	return nil
}

// markFailed best-effort transitions the record to failed. The pipeline does
// not retry this write; a failure here is logged and the original error still
// goes back to the caller.
func (p *Pipeline) markFailed(ctx context.Context, itineraryID, cause string) {
	if err := p.store.SetFailed(ctx, itineraryID, cause); err != nil {
		p.logger.Error("could not mark itinerary failed",
			zap.String("itinerary_id", itineraryID),
			zap.String("cause", cause),
			zap.Error(err))
	}
}

func derefOr(s *string, def string) string {
	if s != nil {
		return *s
	}
	return def
}
