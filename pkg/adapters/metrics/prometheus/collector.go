// Package prometheus implements the engine's metrics collector on the
// Prometheus client library. Metrics register on the default registry and are
// served by the HTTP API's /metrics endpoint.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus.
type Collector struct {
	runsSubmitted *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	stepsExecuted *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	runDuration   prometheus.Histogram
	stepDuration  prometheus.Histogram
	activeRuns    prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector.
func NewCollector() *Collector {
	return &Collector{
		runsSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "updultra_runs_submitted_total",
				Help: "Total number of runs submitted",
			},
			[]string{"status"},
		),
		runsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "updultra_runs_completed_total",
				Help: "Total number of runs completed",
			},
			[]string{"status"},
		),
		stepsExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "updultra_steps_executed_total",
				Help: "Total number of update steps executed",
			},
			[]string{"status"},
		),
		cacheLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "updultra_cache_lookups_total",
				Help: "Total number of step cache lookups",
			},
			[]string{"result"},
		),
		runDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "updultra_run_duration_seconds",
				Help:    "Run execution duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		stepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "updultra_step_duration_seconds",
				Help:    "Step execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
		activeRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "updultra_active_runs",
				Help: "Number of currently active runs",
			},
		),
	}
}

// RecordRunSubmitted records a run submission.
func (c *Collector) RecordRunSubmitted(status string) {
	c.runsSubmitted.WithLabelValues(status).Inc()
}

// RecordRunCompleted records a run completion with its duration.
func (c *Collector) RecordRunCompleted(status string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(status).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// RecordStepExecuted records a step execution with its duration.
func (c *Collector) RecordStepExecuted(status string, duration time.Duration) {
	c.stepsExecuted.WithLabelValues(status).Inc()
	c.stepDuration.Observe(duration.Seconds())
}

// RecordCacheLookup records a cache hit or miss.
func (c *Collector) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// SetActiveRuns sets the number of currently active runs.
func (c *Collector) SetActiveRuns(count int) {
	c.activeRuns.Set(float64(count))
}
