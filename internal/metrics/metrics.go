package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Orchestrated requests by family and terminal outcome.
	GenerationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediagen",
			Name:      "generation_requests_total",
			Help:      "Generation requests by model family and outcome",
		},
		[]string{"family", "outcome"},
	)

	// Single provider dispatch latency.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mediagen",
			Name:      "dispatch_duration_seconds",
			Help:      "Provider dispatch duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 240, 480},
		},
		[]string{"family", "kind"},
	)

	FallbackAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediagen",
			Name:      "fallback_attempts_total",
			Help:      "Fallback candidates tried after a fallback-eligible failure",
		},
		[]string{"from", "to", "outcome"},
	)

	// Best-effort record writes that failed.
	RecordWriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediagen",
			Name:      "record_write_failures_total",
			Help:      "Generation record writes that failed",
		},
		[]string{"op"},
	)
)

// RecordRequest counts one finished generation request.
func RecordRequest(family, outcome string) {
	GenerationRequestsTotal.WithLabelValues(family, outcome).Inc()
}

// RecordDispatch observes one provider dispatch. kind is "ok" on success.
func RecordDispatch(family, kind string, elapsed time.Duration) {
	DispatchDuration.WithLabelValues(family, kind).Observe(elapsed.Seconds())
}

// RecordFallback counts one fallback candidate attempt.
func RecordFallback(from, to, outcome string) {
	FallbackAttemptsTotal.WithLabelValues(from, to, outcome).Inc()
}

// RecordWriteFailure counts a failed record write for op.
func RecordWriteFailure(op string) {
	RecordWriteFailuresTotal.WithLabelValues(op).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
