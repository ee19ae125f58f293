package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EnqueueCounter   = prometheus.NewCounter(prometheus.CounterOpts{Name: "itineraries_enqueued_total", Help: "Itinerary jobs enqueued"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "itineraries_rate_limit_rejects_total", Help: "Requests rejected by the rate limiter"})
	Completed        = prometheus.NewCounter(prometheus.CounterOpts{Name: "itineraries_completed_total", Help: "Itineraries processed to completion"})
	Failed           = prometheus.NewCounter(prometheus.CounterOpts{Name: "itineraries_failed_total", Help: "Itinerary processing attempts that failed"})
	StuckRescued     = prometheus.NewCounter(prometheus.CounterOpts{Name: "itineraries_stuck_rescued_total", Help: "Stuck itineraries dispatched by the monitor"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "itineraries_queue_depth", Help: "Jobs waiting for delivery"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "itineraries_inflight", Help: "Jobs currently being processed"})

	StepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "itinerary_step_duration_seconds",
		Help:    "Duration of pipeline steps",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"step"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			EnqueueCounter,
			RateLimitRejects,
			Completed,
			Failed,
			StuckRescued,
			QueueDepthGauge,
			InFlightGauge,
			StepDuration,
		)
	})
	return promhttp.Handler()
}
