// Package metrics registers the Prometheus collectors exposed at
// GET /v1/metrics: Request Queue counters, Response Cache hit/miss, Circuit
// Breaker state, and per-endpoint request counters/latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector toolsentry exposes.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	EvaluationsTotal *prometheus.CounterVec

	QueueEnqueuedTotal  prometheus.Counter
	QueueProcessedTotal prometheus.Counter
	QueueDroppedTotal   prometheus.Counter
	QueueTimeoutsTotal  prometheus.Counter
	QueueErrorsTotal    prometheus.Counter
	QueueDepth          prometheus.Gauge

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	CircuitBreakerState prometheus.Gauge
}

// New creates and registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolsentry",
				Name:      "requests_total",
				Help:      "Total number of gateway requests processed, by endpoint and status.",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "toolsentry",
				Name:      "request_duration_seconds",
				Help:      "Request handling duration in seconds, by endpoint.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		EvaluationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolsentry",
				Name:      "evaluations_total",
				Help:      "Total Policy Engine evaluations, by resulting action.",
			},
			[]string{"action"},
		),
		QueueEnqueuedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "toolsentry", Subsystem: "queue", Name: "enqueued_total",
			Help: "Total inference requests admitted to the Request Queue.",
		}),
		QueueProcessedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "toolsentry", Subsystem: "queue", Name: "processed_total",
			Help: "Total inference requests the Request Queue finished processing.",
		}),
		QueueDroppedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "toolsentry", Subsystem: "queue", Name: "dropped_total",
			Help: "Total inference requests rejected because the Request Queue was full.",
		}),
		QueueTimeoutsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "toolsentry", Subsystem: "queue", Name: "timeouts_total",
			Help: "Total inference requests that timed out waiting for admission.",
		}),
		QueueErrorsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "toolsentry", Subsystem: "queue", Name: "errors_total",
			Help: "Total inference requests that failed once running.",
		}),
		QueueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "toolsentry", Subsystem: "queue", Name: "depth",
			Help: "Current Request Queue depth.",
		}),
		CacheHitsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "toolsentry", Subsystem: "cache", Name: "hits_total",
			Help: "Total Response Cache hits.",
		}),
		CacheMissesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "toolsentry", Subsystem: "cache", Name: "misses_total",
			Help: "Total Response Cache misses.",
		}),
		CircuitBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "toolsentry", Subsystem: "circuit_breaker", Name: "state",
			Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open.",
		}),
	}
}

// BreakerStateValue maps a gobreaker state string to the gauge encoding
// documented on CircuitBreakerState.
func BreakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half-open":
		return 1
	default:
		return 0
	}
}
