// Package metrics wraps the Prometheus counters and histograms exposed by
// the server on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the server registers. Callers record
// against it from the router's request wrapper.
type Metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	inFlight     prometheus.Gauge
}

// New registers and returns a fresh Metrics instance against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer for production use.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hashshelf",
			Name:      "requests_total",
			Help:      "Total HTTP requests handled, by method and status code.",
		}, []string{"method", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hashshelf",
			Name:      "request_duration_seconds",
			Help:      "Request handling latency in seconds, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "hashshelf",
			Name:      "streams_in_flight",
			Help:      "Number of object store/fetch streams currently open.",
		}),
	}
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(method, status string, elapsed time.Duration) {
	m.requests.WithLabelValues(method, status).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// StreamStarted increments the in-flight gauge; the caller must call the
// returned function exactly once when the stream ends.
func (m *Metrics) StreamStarted() func() {
	m.inFlight.Inc()
	return m.inFlight.Dec
}
