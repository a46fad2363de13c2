// Package jobs provides metrics for the engine's background sweeps.
package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names, shared with the dashboards and alert rules.
const (
	MetricBackgroundJobsTotal      = "background_jobs_total"
	MetricBackgroundJobsDuration   = "background_jobs_duration_seconds"
	MetricBackgroundJobErrorsTotal = "background_job_errors_total"
)

// Job type label values. grade_recompute refreshes per-market grade
// thresholds, market_reclassify re-derives tenant market sizes, and
// score_refresh re-aggregates stale listing scores.
const (
	JobTypeGradeRecompute   = "grade_recompute"
	JobTypeMarketReclassify = "market_reclassify"
	JobTypeScoreRefresh     = "score_refresh"
)

// Completion status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Reporter is what background jobs report execution metrics through.
// Jobs treat a nil Reporter as "metrics disabled".
type Reporter interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// Metrics implements Reporter on Prometheus collectors. Safe for
// concurrent use.
type Metrics struct {
	jobsTotal    *prometheus.CounterVec
	jobsDuration *prometheus.HistogramVec
	jobErrors    *prometheus.CounterVec
}

// NewMetrics creates the collectors without registering them; call
// Register with the server's registry.
func NewMetrics() *Metrics {
	return &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBackgroundJobsTotal,
				Help: "Background job executions by type and status",
			},
			[]string{"job_type", "status"},
		),
		jobsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: MetricBackgroundJobsDuration,
				Help: "Background job duration in seconds by job type",
				// A threshold recompute finishes in seconds; a full
				// reclassify over every tenant can run minutes.
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0},
			},
			[]string{"job_type"},
		),
		jobErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBackgroundJobErrorsTotal,
				Help: "Background job errors by type and error type",
			},
			[]string{"job_type", "error_type"},
		),
	}
}

// Register registers every collector with reg, stopping at the first error.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncJobsTotal records one completed run of jobType with the given status.
func (m *Metrics) IncJobsTotal(jobType, status string) {
	m.jobsTotal.WithLabelValues(jobType, status).Inc()
}

// ObserveJobDuration records how long a run of jobType took.
func (m *Metrics) ObserveJobDuration(jobType string, seconds float64) {
	m.jobsDuration.WithLabelValues(jobType).Observe(seconds)
}

// IncJobErrors records one error, bucketed by a coarse errorType such as
// "timeout" or "database_error".
func (m *Metrics) IncJobErrors(jobType, errorType string) {
	m.jobErrors.WithLabelValues(jobType, errorType).Inc()
}

// Collectors returns every collector, in registration order.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.jobsTotal,
		m.jobsDuration,
		m.jobErrors,
	}
}
