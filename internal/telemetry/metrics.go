// Package telemetry holds the Prometheus collectors, the metrics HTTP server
// and the OpenTelemetry tracer used by classpane.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "classpane"

// Metrics holds the engine and completion collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	writesIssued      prometheus.Counter
	writeFailures     prometheus.Counter
	echoesSuppressed  prometheus.Counter
	invalidations     prometheus.Counter
	flushes           prometheus.Counter
	pendingWrites     prometheus.Gauge
	completionFetches *prometheus.CounterVec
	fetchDuration     prometheus.Histogram
}

// NewMetrics registers the collectors with reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		writesIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "writes_issued_total",
			Help:      "Class attribute writes issued to the document",
		}),
		writeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "write_failures_total",
			Help:      "Class attribute writes that settled with an error",
		}),
		echoesSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "echoes_suppressed_total",
			Help:      "Mutation notifications ignored because they echo our own writes",
		}),
		invalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "invalidations_total",
			Help:      "Class sets dropped after an external mutation",
		}),
		flushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "flushes_total",
			Help:      "Flush passes over the pending write buffer",
		}),
		pendingWrites: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "pending_writes",
			Help:      "Elements with a buffered class value",
		}),
		completionFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "completion",
			Name:      "fetches_total",
			Help:      "Class name fetches by outcome",
		}, []string{"status"}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "completion",
			Name:      "fetch_duration_seconds",
			Help:      "Time spent gathering class names for a frame",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) WriteIssued() {
	if m != nil {
		m.writesIssued.Inc()
	}
}

func (m *Metrics) WriteFailed() {
	if m != nil {
		m.writeFailures.Inc()
	}
}

func (m *Metrics) EchoSuppressed() {
	if m != nil {
		m.echoesSuppressed.Inc()
	}
}

func (m *Metrics) Invalidated() {
	if m != nil {
		m.invalidations.Inc()
	}
}

func (m *Metrics) Flushed() {
	if m != nil {
		m.flushes.Inc()
	}
}

func (m *Metrics) SetPending(n int) {
	if m != nil {
		m.pendingWrites.Set(float64(n))
	}
}

// FetchDone records one completion fetch. status is "ok" or "partial".
func (m *Metrics) FetchDone(status string, seconds float64) {
	if m == nil {
		return
	}
	m.completionFetches.WithLabelValues(status).Inc()
	m.fetchDuration.Observe(seconds)
}
