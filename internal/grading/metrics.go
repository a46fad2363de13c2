package grading

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricGradeRecomputeTotal       = "grading_recompute_total"
	MetricGradeRecomputeErrors      = "grading_recompute_errors_total"
	MetricGradeRecomputeDuration    = "grading_recompute_duration_seconds"
	MetricGradeBucketPopulation     = "grading_bucket_population"
	MetricGradeLastRecomputeStamp   = "grading_last_recompute_timestamp"
	MetricGradeThresholdCacheHits   = "grading_threshold_cache_hits_total"
	MetricGradeThresholdCacheMisses = "grading_threshold_cache_misses_total"
)

// Metrics contains Prometheus metrics for grade recomputation.
// All operations are thread-safe.
type Metrics struct {
	recomputeTotal       *prometheus.CounterVec
	recomputeErrors      *prometheus.CounterVec
	recomputeDuration    prometheus.Histogram
	bucketPopulation     *prometheus.GaugeVec
	lastRecomputeStamp   prometheus.Gauge
	thresholdCacheHits   prometheus.Counter
	thresholdCacheMisses prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		recomputeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricGradeRecomputeTotal,
			Help: "Total number of market grade recomputation runs",
		}, []string{"market_size"}),
		recomputeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricGradeRecomputeErrors,
			Help: "Total number of market grade recomputation errors",
		}, []string{"market_size"}),
		recomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricGradeRecomputeDuration,
			Help:    "Histogram of market grade recomputation duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		}),
		bucketPopulation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricGradeBucketPopulation,
			Help: "Active listing population of each market bucket at last recompute",
		}, []string{"market_size"}),
		lastRecomputeStamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricGradeLastRecomputeStamp,
			Help: "Unix timestamp of the last grade recomputation",
		}),
		thresholdCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricGradeThresholdCacheHits,
			Help: "Total number of threshold cache hits",
		}),
		thresholdCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricGradeThresholdCacheMisses,
			Help: "Total number of threshold cache misses",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRecomputeTotal increments the recompute counter for a bucket.
func (m *Metrics) IncRecomputeTotal(size string) {
	m.recomputeTotal.WithLabelValues(size).Inc()
}

// IncRecomputeErrors increments the recompute error counter for a bucket.
func (m *Metrics) IncRecomputeErrors(size string) {
	m.recomputeErrors.WithLabelValues(size).Inc()
}

// ObserveRecomputeDuration records a recompute duration sample.
func (m *Metrics) ObserveRecomputeDuration(seconds float64) {
	m.recomputeDuration.Observe(seconds)
}

// SetBucketPopulation sets the population gauge for a bucket.
func (m *Metrics) SetBucketPopulation(size string, count float64) {
	m.bucketPopulation.WithLabelValues(size).Set(count)
}

// SetLastRecomputeTimestamp sets the last recompute timestamp gauge.
func (m *Metrics) SetLastRecomputeTimestamp(timestamp float64) {
	m.lastRecomputeStamp.Set(timestamp)
}

// IncThresholdCacheHits increments the threshold cache hit counter.
func (m *Metrics) IncThresholdCacheHits() {
	m.thresholdCacheHits.Inc()
}

// IncThresholdCacheMisses increments the threshold cache miss counter.
func (m *Metrics) IncThresholdCacheMisses() {
	m.thresholdCacheMisses.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.recomputeTotal,
		m.recomputeErrors,
		m.recomputeDuration,
		m.bucketPopulation,
		m.lastRecomputeStamp,
		m.thresholdCacheHits,
		m.thresholdCacheMisses,
	}
}
