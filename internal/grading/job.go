package grading

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/unilist/unilist/internal/jobs"
	"github.com/unilist/unilist/internal/market"
)

// Reclassifier recomputes market-size buckets for all tenants. Satisfied
// by market.Classifier.
type Reclassifier interface {
	ReclassifyAll(ctx context.Context) (*market.ReclassifyReport, error)
}

// DefaultRecomputeInterval is the default interval between grade
// recompute cycles.
const DefaultRecomputeInterval = 5 * time.Minute

// DefaultRecomputeTimeout is the default timeout for a single cycle.
const DefaultRecomputeTimeout = 2 * time.Minute

// RecomputeJobConfig configures the periodic grade recompute job.
type RecomputeJobConfig struct {
	// Interval is the duration between recompute cycles.
	Interval time.Duration
	// Timeout for each recompute cycle.
	Timeout time.Duration
	// Logger for job activity.
	Logger *slog.Logger
	// JobMetrics for centralized background job tracking.
	JobMetrics jobs.Reporter
	// Reclassify, when non-nil, runs a market reclassification before
	// each grade recompute so bucket membership is fresh.
	Reclassify Reclassifier
}

// RecomputeJob periodically recomputes grades for every market bucket,
// optionally refreshing market classifications first.
type RecomputeJob struct {
	config RecomputeJobConfig
	engine *Engine

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRecomputeJob creates a new grade recompute job.
func NewRecomputeJob(config RecomputeJobConfig, engine *Engine) *RecomputeJob {
	if config.Interval == 0 {
		config.Interval = DefaultRecomputeInterval
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultRecomputeTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &RecomputeJob{
		config: config,
		engine: engine,
	}
}

// Start begins the periodic recompute job.
// Returns immediately; the job runs in a background goroutine.
func (j *RecomputeJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the recompute job to stop and waits for it to finish.
func (j *RecomputeJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *RecomputeJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// run is the main loop for the recompute job.
func (j *RecomputeJob) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("grade recompute job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("grade recompute job stopping due to stop signal")
			return
		case <-ticker.C:
			j.recomputeAll(ctx)
		}
	}
}

// recomputeAll runs one full cycle: optional market reclassification,
// then grade recompute across every bucket.
func (j *RecomputeJob) recomputeAll(parentCtx context.Context) {
	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	if j.config.Reclassify != nil {
		start := time.Now()
		report, err := j.config.Reclassify.ReclassifyAll(ctx)
		duration := time.Since(start).Seconds()

		if err != nil {
			j.config.Logger.Error("market reclassification failed",
				"error", err)
			if j.config.JobMetrics != nil {
				j.config.JobMetrics.IncJobsTotal(jobs.JobTypeMarketReclassify, jobs.StatusFailure)
				j.config.JobMetrics.IncJobErrors(jobs.JobTypeMarketReclassify, "reclassify_error")
				j.config.JobMetrics.ObserveJobDuration(jobs.JobTypeMarketReclassify, duration)
			}
		} else {
			j.config.Logger.Info("market reclassification completed",
				"total", report.Total,
				"updated", report.Updated,
				"failed", report.Failed)
			if j.config.JobMetrics != nil {
				j.config.JobMetrics.IncJobsTotal(jobs.JobTypeMarketReclassify, jobs.StatusSuccess)
				j.config.JobMetrics.ObserveJobDuration(jobs.JobTypeMarketReclassify, duration)
			}
		}
	}

	start := time.Now()
	report := j.engine.RecomputeAll(ctx)
	duration := time.Since(start).Seconds()

	status := jobs.StatusSuccess
	if len(report.Failed) > 0 {
		status = jobs.StatusFailure
	}

	if j.config.JobMetrics != nil {
		j.config.JobMetrics.IncJobsTotal(jobs.JobTypeGradeRecompute, status)
		j.config.JobMetrics.ObserveJobDuration(jobs.JobTypeGradeRecompute, duration)
		for range report.Failed {
			j.config.JobMetrics.IncJobErrors(jobs.JobTypeGradeRecompute, "bucket_error")
		}
	}

	var population, updated int
	for _, bucketReport := range report.Buckets {
		population += bucketReport.Population
		updated += bucketReport.Updated
	}

	j.config.Logger.Info("grade recompute completed",
		"duration_seconds", duration,
		"population", population,
		"updated", updated,
		"failed_buckets", len(report.Failed))
}

// RecomputeNow immediately runs one recompute cycle without waiting for
// the ticker. Useful for testing or forcing immediate updates.
func (j *RecomputeJob) RecomputeNow(ctx context.Context) {
	j.recomputeAll(ctx)
}
