package jobs

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func histogramSnapshot(t *testing.T, vec *prometheus.HistogramVec, jobType string) (uint64, float64) {
	t.Helper()

	metric, err := vec.GetMetricWithLabelValues(jobType)
	if err != nil {
		t.Fatalf("histogram for %s: %v", jobType, err)
	}
	var m dto.Metric
	if err := metric.(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}

func TestMetrics_RegisterExposesAllFamilies(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	m.IncJobsTotal(JobTypeGradeRecompute, StatusSuccess)
	m.ObserveJobDuration(JobTypeGradeRecompute, 1.0)
	m.IncJobErrors(JobTypeGradeRecompute, "timeout")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	seen := make(map[string]bool, len(families))
	for _, mf := range families {
		seen[mf.GetName()] = true
	}
	for _, name := range []string{
		MetricBackgroundJobsTotal,
		MetricBackgroundJobsDuration,
		MetricBackgroundJobErrorsTotal,
	} {
		if !seen[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func TestMetrics_DoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := NewMetrics().Register(reg); err != nil {
		t.Fatalf("first Register() failed: %v", err)
	}
	if err := NewMetrics().Register(reg); err == nil {
		t.Error("second Register() succeeded, want duplicate error")
	}
}

func TestMetrics_CountsPerJobAndStatus(t *testing.T) {
	m := NewMetrics()

	// A night of sweeps: recomputes mostly succeed, one reclassify trips.
	for i := 0; i < 12; i++ {
		m.IncJobsTotal(JobTypeGradeRecompute, StatusSuccess)
	}
	m.IncJobsTotal(JobTypeGradeRecompute, StatusFailure)
	m.IncJobsTotal(JobTypeMarketReclassify, StatusFailure)
	m.IncJobErrors(JobTypeMarketReclassify, "database_error")

	tests := []struct {
		jobType string
		status  string
		want    float64
	}{
		{JobTypeGradeRecompute, StatusSuccess, 12},
		{JobTypeGradeRecompute, StatusFailure, 1},
		{JobTypeMarketReclassify, StatusFailure, 1},
		{JobTypeScoreRefresh, StatusSuccess, 0},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.jobsTotal.WithLabelValues(tt.jobType, tt.status))
		if got != tt.want {
			t.Errorf("jobsTotal[%s,%s] = %v, want %v", tt.jobType, tt.status, got, tt.want)
		}
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues(JobTypeMarketReclassify, "database_error")); got != 1 {
		t.Errorf("jobErrors = %v, want 1", got)
	}
}

func TestMetrics_DurationPerJobType(t *testing.T) {
	m := NewMetrics()

	// Recomputes are quick; a full reclassify walks every tenant.
	recompute := []float64{0.5, 1.2, 0.8}
	for _, d := range recompute {
		m.ObserveJobDuration(JobTypeGradeRecompute, d)
	}
	m.ObserveJobDuration(JobTypeMarketReclassify, 45.2)

	count, sum := histogramSnapshot(t, m.jobsDuration, JobTypeGradeRecompute)
	if count != uint64(len(recompute)) {
		t.Errorf("recompute sample count = %d, want %d", count, len(recompute))
	}
	if sum < 2.49 || sum > 2.51 {
		t.Errorf("recompute sample sum = %v, want ~2.5", sum)
	}

	count, sum = histogramSnapshot(t, m.jobsDuration, JobTypeMarketReclassify)
	if count != 1 || sum != 45.2 {
		t.Errorf("reclassify snapshot = (%d, %v), want (1, 45.2)", count, sum)
	}
}

func TestMetrics_JobTypeConstantsDistinct(t *testing.T) {
	seen := make(map[string]bool)
	for _, jt := range []string{JobTypeGradeRecompute, JobTypeMarketReclassify, JobTypeScoreRefresh} {
		if jt == "" || seen[jt] {
			t.Errorf("job type %q empty or duplicated", jt)
		}
		seen[jt] = true
	}
	if StatusSuccess == StatusFailure {
		t.Error("status constants collide")
	}
}

func TestMetrics_ImplementsReporter(t *testing.T) {
	var _ Reporter = NewMetrics()
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	m := NewMetrics()
	const goroutines, iterations = 10, 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				m.IncJobsTotal(JobTypeGradeRecompute, StatusSuccess)
				m.ObserveJobDuration(JobTypeGradeRecompute, 1.5)
				m.IncJobErrors(JobTypeGradeRecompute, "timeout")
			}
		}()
	}
	wg.Wait()

	want := float64(goroutines * iterations)
	if got := testutil.ToFloat64(m.jobsTotal.WithLabelValues(JobTypeGradeRecompute, StatusSuccess)); got != want {
		t.Errorf("jobsTotal = %v, want %v", got, want)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues(JobTypeGradeRecompute, "timeout")); got != want {
		t.Errorf("jobErrors = %v, want %v", got, want)
	}
	count, _ := histogramSnapshot(t, m.jobsDuration, JobTypeGradeRecompute)
	if count != uint64(goroutines*iterations) {
		t.Errorf("duration samples = %d, want %d", count, goroutines*iterations)
	}
}
