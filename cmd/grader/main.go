// Package main is the entry point for the batch grader: market
// reclassification plus market-wide grade recomputes, either once (for
// external schedulers) or on a ticker.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/unilist/unilist/internal/config"
	"github.com/unilist/unilist/internal/db"
	"github.com/unilist/unilist/internal/grading"
	"github.com/unilist/unilist/internal/jobs"
	"github.com/unilist/unilist/internal/listing"
	"github.com/unilist/unilist/internal/market"
	"github.com/unilist/unilist/internal/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	once := flag.Bool("once", false, "run one reclassify + recompute cycle and exit")
	flag.Parse()

	cfg, errs := config.Load(*configPath)
	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("configuration error", "error", err)
		}
		os.Exit(1)
	}

	ctx := context.Background()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("failed to close redis client", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	gradingMetrics := grading.NewMetrics()
	if err := gradingMetrics.Register(registry); err != nil {
		logger.Error("failed to register grading metrics", "error", err)
		os.Exit(1)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	classifier := market.NewClassifier(
		market.NewPostgresStore(database),
		market.NewRedisClassificationCache(redisClient),
		time.Duration(cfg.ClassificationTTLMinutes)*time.Minute,
		logger,
	)

	grader := grading.NewEngine(
		listing.NewPostgresRepository(database, logger),
		grading.NewRedisThresholdCache(redisClient),
		time.Duration(cfg.ThresholdTTLMinutes)*time.Minute,
		logger,
		gradingMetrics,
	)

	if *once {
		os.Exit(runOnce(ctx, cfg, logger, classifier, grader))
	}

	job := grading.NewRecomputeJob(grading.RecomputeJobConfig{
		Interval:   time.Duration(cfg.GradeRecomputeIntervalMinutes) * time.Minute,
		Timeout:    time.Duration(cfg.GradeRecomputeTimeoutSeconds) * time.Second,
		Logger:     logger,
		JobMetrics: jobMetrics,
		Reclassify: classifier,
	}, grader)
	if err := job.Start(ctx); err != nil {
		logger.Error("failed to start grade recompute job", "error", err)
		os.Exit(1)
	}

	logger.Info("grader started",
		"interval_minutes", cfg.GradeRecomputeIntervalMinutes,
		"timeout_seconds", cfg.GradeRecomputeTimeoutSeconds)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down grader...")
	job.Stop()
	logger.Info("grader stopped")
}

// runOnce executes a single reclassify + recompute cycle. Returns the
// process exit code.
func runOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger, classifier *market.Classifier, grader *grading.Engine) int {
	timeout := time.Duration(cfg.GradeRecomputeTimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = grading.DefaultRecomputeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report, err := classifier.ReclassifyAll(ctx)
	if err != nil {
		logger.Error("market reclassification failed", "error", err)
		return 1
	}
	logger.Info("market reclassification completed",
		"total", report.Total,
		"updated", report.Updated,
		"failed", report.Failed)

	gradeReport := grader.RecomputeAll(ctx)
	for size, bucket := range gradeReport.Buckets {
		logger.Info("bucket graded",
			"market_size", string(size),
			"population", bucket.Population,
			"updated", bucket.Updated)
	}
	if len(gradeReport.Failed) > 0 {
		logger.Error("some buckets failed to recompute",
			"failed", fmt.Sprintf("%v", gradeReport.Failed))
		return 1
	}
	return 0
}
