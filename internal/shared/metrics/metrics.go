package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Private registry so tests can spin up gateways without fighting over
// the global default registry.
var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// AdmissionsTotal counts admission decisions by outcome:
	// admitted, unauthenticated, quota_exceeded, rate_limited, store_error.
	AdmissionsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_admissions_total",
			Help: "Admission decisions by outcome",
		},
		[]string{"outcome"},
	)

	// UsageTokensRecorded counts tokens committed to the quota store.
	UsageTokensRecorded = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_usage_tokens_recorded_total",
			Help: "Total tokens recorded against key quotas",
		},
	)

	// UsageQueueDropped counts usage entries dropped because the
	// recorder queue was full.
	UsageQueueDropped = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_usage_queue_dropped_total",
			Help: "Usage records dropped due to a full recorder queue",
		},
	)

	// BackendLatency observes inference backend round-trip time.
	BackendLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_backend_latency_ms",
			Help:    "Inference backend latency in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"endpoint"},
	)

	// LimiterLiveKeys tracks how many keys hold live rate-limit windows.
	LimiterLiveKeys = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_limiter_live_keys",
			Help: "Keys with a live sliding-window queue",
		},
	)
)

// Handler serves the private registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
