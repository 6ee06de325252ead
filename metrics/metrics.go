// Package metrics exposes Prometheus instrumentation for the engine.
// Every method is nil-safe, so a nil *Metrics disables instrumentation
// without call-site checks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's counters and gauges.
type Metrics struct {
	completed prometheus.Counter
	failed    prometheus.Counter
	retried   prometheus.Counter
	inFlight  prometheus.Gauge
	waiting   prometheus.Gauge
}

// New registers the engine metrics with the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the engine metrics with reg. Tests pass an isolated
// prometheus.NewRegistry().
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		completed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "octopus",
			Name:      "requests_completed_total",
			Help:      "Requests downloaded and processed successfully.",
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "octopus",
			Name:      "requests_failed_total",
			Help:      "Requests that ended in a download or processing error.",
		}),
		retried: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "octopus",
			Name:      "requests_retried_total",
			Help:      "Failed requests moved back to the queue for another attempt.",
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "octopus",
			Name:      "workers_in_flight",
			Help:      "Requests currently being downloaded or processed.",
		}),
		waiting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "octopus",
			Name:      "queue_depth",
			Help:      "Waiting requests reported by the store at the last stats tick.",
		}),
	}
}

// RequestCompleted counts a successfully processed request.
func (m *Metrics) RequestCompleted() {
	if m == nil {
		return
	}
	m.completed.Inc()
}

// RequestFailed counts a failed request.
func (m *Metrics) RequestFailed() {
	if m == nil {
		return
	}
	m.failed.Inc()
}

// RequestsRetried counts failed requests moved back for another attempt.
func (m *Metrics) RequestsRetried(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.retried.Add(float64(n))
}

// WorkerStarted marks a request entering a worker.
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// WorkerDone marks a request leaving a worker.
func (m *Metrics) WorkerDone() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// SetQueueDepth records the store's waiting count.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.waiting.Set(float64(n))
}
