package worker

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"tripflow/internal/config"
	"tripflow/internal/models"
	"tripflow/internal/queue"
	"tripflow/internal/telemetry"
)

// Pipeline is the processing entry point shared with the stuck-job monitor.
type Pipeline interface {
	Process(ctx context.Context, itineraryID string) error
}

// Processor drives a fixed-size pool of workers over the itinerary queue.
// Each worker slot runs one job end-to-end before taking the next; a separate
// housekeeping loop promotes scheduled retries and reclaims expired leases.
type Processor struct {
	cfg    config.Config
	queue  *queue.Queue
	pipe   Pipeline
	logger *zap.Logger
}

func New(cfg config.Config, q *queue.Queue, pipe Pipeline, logger *zap.Logger) *Processor {
	return &Processor{
		cfg:    cfg,
		queue:  q,
		pipe:   pipe,
		logger: logger,
	}
}

// Run blocks until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	concurrency := p.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.housekeeping(ctx)
	}()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			p.workLoop(ctx, slot)
		}(i)
	}

	wg.Wait()
	return ctx.Err()
}

func (p *Processor) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now()
		if n, err := p.queue.PromoteScheduled(ctx, now, 100); err == nil && n > 0 {
			p.logger.Debug("promoted scheduled retries", zap.Int("count", n))
		}
		if reclaimed, err := p.queue.RequeueExpired(ctx, now, 100); err == nil && len(reclaimed) > 0 {
			p.logger.Warn("reclaimed expired leases", zap.Strings("itinerary_ids", reclaimed))
		}
		if depth, err := p.queue.WaitingCount(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}
	}
}

func (p *Processor) workLoop(ctx context.Context, slot int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, ok, err := p.queue.DequeueWithLease(ctx)
		if err != nil || !ok {
			if err != nil {
				p.logger.Error("dequeue failed", zap.Int("slot", slot), zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollInterval()):
			}
			continue
		}

		p.handle(ctx, slot, job)
	}
}

func (p *Processor) handle(ctx context.Context, slot int, job models.ItineraryJob) {
	start := time.Now()
	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	p.logger.Info("processing itinerary",
		zap.Int("slot", slot),
		zap.String("itinerary_id", job.ItineraryID),
		zap.Int("attempt", job.Attempt))

	err := p.pipe.Process(ctx, job.ItineraryID)
	if err == nil {
		if ackErr := p.queue.Ack(ctx, job.ItineraryID); ackErr != nil {
			p.logger.Error("ack failed", zap.String("itinerary_id", job.ItineraryID), zap.Error(ackErr))
		}
		telemetry.Completed.Inc()
		p.logger.Info("itinerary processed",
			zap.String("itinerary_id", job.ItineraryID),
			zap.Duration("elapsed", time.Since(start)))
		return
	}

	telemetry.Failed.Inc()
	p.logger.Error("itinerary processing failed",
		zap.String("itinerary_id", job.ItineraryID),
		zap.Int("attempt", job.Attempt),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))

	maxAttempts := p.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if job.Attempt >= maxAttempts {
		// The record is already marked failed; retrying past the budget
		// only burns provider quota.
		if ackErr := p.queue.Ack(ctx, job.ItineraryID); ackErr != nil {
			p.logger.Error("ack failed", zap.String("itinerary_id", job.ItineraryID), zap.Error(ackErr))
		}
		p.logger.Warn("itinerary exhausted retry budget",
			zap.String("itinerary_id", job.ItineraryID),
			zap.Int("attempts", job.Attempt))
		return
	}

	backoff := backoffWithJitter(p.cfg.BackoffInitial, p.cfg.BackoffMax, job.Attempt)
	if err := p.queue.ScheduleRetry(ctx, job.ItineraryID, time.Now().Add(backoff)); err != nil {
		p.logger.Error("schedule retry failed", zap.String("itinerary_id", job.ItineraryID), zap.Error(err))
		return
	}
	p.logger.Info("retry scheduled",
		zap.String("itinerary_id", job.ItineraryID),
		zap.Duration("backoff", backoff),
		zap.Int("next_attempt", job.Attempt+1))
}

func (p *Processor) pollInterval() time.Duration {
	if p.cfg.WorkerPollInterval > 0 {
		return p.cfg.WorkerPollInterval
	}
	return time.Second
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = time.Minute
	}
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}
