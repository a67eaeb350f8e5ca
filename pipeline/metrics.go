package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus metrics for workflow execution, namespaced
// with "notifier_":
//
//   - runs_total (counter): completed runs. Labels: trigger, status.
//   - entity_outcomes_total (counter): per-entity results. Labels: status.
//   - step_latency_ms (histogram): step attempt duration. Labels: step, status.
//   - step_retries_total (counter): retry attempts. Labels: step.
//   - step_memoized_total (counter): cached-result replays. Labels: step.
//
// Step labels use the un-namespaced step name (entity IDs would explode
// label cardinality).
//
// A nil *Metrics is valid and records nothing, so wiring metrics stays
// optional.
type Metrics struct {
	runs           *prometheus.CounterVec
	entityOutcomes *prometheus.CounterVec
	stepLatency    *prometheus.HistogramVec
	retries        *prometheus.CounterVec
	memoized       *prometheus.CounterVec
}

// NewMetrics creates and registers all workflow metrics with the provided
// registry (prometheus.DefaultRegisterer when nil).
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := pipeline.NewMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notifier",
			Name:      "runs_total",
			Help:      "Completed workflow runs by trigger kind and terminal status.",
		}, []string{"trigger", "status"}),

		entityOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notifier",
			Name:      "entity_outcomes_total",
			Help:      "Per-entity pipeline results by status.",
		}, []string{"status"}),

		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notifier",
			Name:      "step_latency_ms",
			Help:      "Step attempt duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"step", "status"}),

		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notifier",
			Name:      "step_retries_total",
			Help:      "Step retry attempts.",
		}, []string{"step"}),

		memoized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notifier",
			Name:      "step_memoized_total",
			Help:      "Steps replayed from a succeeded checkpoint without re-execution.",
		}, []string{"step"}),
	}
}

// RunFinished records a completed run.
func (m *Metrics) RunFinished(trigger, status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(trigger, status).Inc()
}

// EntityOutcome records one entity's terminal status.
func (m *Metrics) EntityOutcome(status string) {
	if m == nil {
		return
	}
	m.entityOutcomes.WithLabelValues(status).Inc()
}

// ObserveStep records one step attempt's duration.
func (m *Metrics) ObserveStep(step, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stepLatency.WithLabelValues(step, status).Observe(float64(elapsed.Milliseconds()))
}

// Retry records a retry of the given step.
func (m *Metrics) Retry(step string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(step).Inc()
}

// MemoizedHit records a replay served from the checkpoint store.
func (m *Metrics) MemoizedHit(step string) {
	if m == nil {
		return
	}
	m.memoized.WithLabelValues(step).Inc()
}
