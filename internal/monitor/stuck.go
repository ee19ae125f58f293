package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tripflow/internal/models"
	"tripflow/internal/telemetry"
)

// PendingLister is the store slice the monitor reads.
type PendingLister interface {
	ListPending(ctx context.Context, limit int) ([]models.Itinerary, error)
}

// QueueStats reports queue activity so the monitor can tell a draining queue
// from a stalled one.
type QueueStats interface {
	WaitingCount(ctx context.Context) (int64, error)
}

// Pipeline is the same processing entry point the worker uses.
type Pipeline interface {
	Process(ctx context.Context, itineraryID string) error
}

// StuckMonitor is a correctness backstop for itineraries that were enqueued
// but never delivered. On a fixed interval it scans for pending records older
// than a threshold and dispatches them through the pipeline directly,
// bypassing the queue. The pipeline's claim keeps this safe against a worker
// racing for the same record.
type StuckMonitor struct {
	store     PendingLister
	queue     QueueStats
	pipe      Pipeline
	interval  time.Duration
	threshold time.Duration
	scanLimit int
	logger    *zap.Logger

	mu         sync.Mutex
	running    bool
	stop       chan struct{}
	loopDone   sync.WaitGroup
	dispatches sync.WaitGroup
}

func New(store PendingLister, queue QueueStats, pipe Pipeline, interval, threshold time.Duration, scanLimit int, logger *zap.Logger) *StuckMonitor {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	if threshold <= 0 {
		threshold = 3 * time.Minute
	}
	if scanLimit <= 0 {
		scanLimit = 10
	}
	return &StuckMonitor{
		store:     store,
		queue:     queue,
		pipe:      pipe,
		interval:  interval,
		threshold: threshold,
		scanLimit: scanLimit,
		logger:    logger,
	}
}

// Start launches the scan loop. Starting an already-running monitor logs a
// warning and is a no-op.
func (m *StuckMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.logger.Warn("stuck-job monitor already running")
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.loopDone.Add(1)
	go m.loop(ctx, m.stop)
	m.logger.Info("stuck-job monitor started",
		zap.Duration("interval", m.interval),
		zap.Duration("threshold", m.threshold))
}

// Stop halts the loop and waits for in-flight dispatches. Safe to call when
// not running.
func (m *StuckMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	m.mu.Unlock()

	m.loopDone.Wait()
	m.dispatches.Wait()
	m.logger.Info("stuck-job monitor stopped")
}

func (m *StuckMonitor) loop(ctx context.Context, stop <-chan struct{}) {
	defer m.loopDone.Done()

	m.scan(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scan(ctx)
		}
	}
}

// scan runs one rescue cycle. Failures are isolated per itinerary; one bad
// record never blocks the rest of the batch or the next cycle.
func (m *StuckMonitor) scan(ctx context.Context) {
	waiting, err := m.queue.WaitingCount(ctx)
	if err != nil {
		m.logger.Error("stuck scan: cannot read queue depth", zap.Error(err))
		return
	}
	if waiting == 0 {
		return
	}

	pending, err := m.store.ListPending(ctx, m.scanLimit)
	if err != nil {
		m.logger.Error("stuck scan: cannot list pending itineraries", zap.Error(err))
		return
	}

	cutoff := time.Now().Add(-m.threshold)
	for _, rec := range pending {
		if !rec.CreatedAt.Before(cutoff) {
			continue
		}
		id, dest := rec.ID, rec.Destination
		age := time.Since(rec.CreatedAt)

		m.dispatches.Add(1)
		go func() {
			defer m.dispatches.Done()
			m.logger.Info("rescuing stuck itinerary",
				zap.String("itinerary_id", id),
				zap.String("destination", dest),
				zap.Duration("age", age))
			if err := m.pipe.Process(ctx, id); err != nil {
				m.logger.Error("stuck itinerary rescue failed",
					zap.String("itinerary_id", id),
					zap.String("destination", dest),
					zap.Error(err))
				return
			}
			telemetry.StuckRescued.Inc()
			m.logger.Info("stuck itinerary rescued",
				zap.String("itinerary_id", id),
				zap.String("destination", dest))
		}()
	}
}
