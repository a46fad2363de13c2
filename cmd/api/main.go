// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/unilist/unilist/internal/api"
	"github.com/unilist/unilist/internal/config"
	"github.com/unilist/unilist/internal/db"
	"github.com/unilist/unilist/internal/engine"
	"github.com/unilist/unilist/internal/grading"
	"github.com/unilist/unilist/internal/health"
	"github.com/unilist/unilist/internal/idempotency"
	"github.com/unilist/unilist/internal/jobs"
	"github.com/unilist/unilist/internal/listing"
	"github.com/unilist/unilist/internal/market"
	"github.com/unilist/unilist/internal/middleware"
	"github.com/unilist/unilist/internal/scoring"
	"github.com/unilist/unilist/internal/tracing"
	"github.com/unilist/unilist/internal/weights"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Unilist API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("configuration error", "error", err)
		}
		os.Exit(1)
	}

	for key, value := range cfg.LogSummary() {
		logger.Info("config", "key", key, "value", value)
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
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Caches fall back to store reads, so a missing Redis degrades
		// rather than blocks startup.
		logger.Warn("redis unavailable at startup", "error", err, "addr", cfg.RedisAddr)
	}

	// Tracing is optional; without an OTLP endpoint the global tracer
	// stays a no-op.
	tracingProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "unilist-api",
		Enabled:      cfg.OTLPEndpoint != "",
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: 1.0,
		InsecureMode: cfg.Env == "development",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Scoring weight tables, optionally overridden by a calibration file.
	tables := weights.DefaultTables()
	if cfg.CalibrationPath != "" {
		loaded, err := weights.LoadCalibration(cfg.CalibrationPath)
		if err != nil {
			logger.Warn("failed to load calibration file, using defaults",
				"path", cfg.CalibrationPath, "error", err)
		} else {
			tables = loaded
			logger.Info("loaded calibration file", "path", cfg.CalibrationPath)
		}
	}

	registry := prometheus.NewRegistry()

	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register HTTP metrics", "error", err)
		os.Exit(1)
	}
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

	marketStore := market.NewPostgresStore(database)
	classifier := market.NewClassifier(
		marketStore,
		market.NewRedisClassificationCache(redisClient),
		time.Duration(cfg.ClassificationTTLMinutes)*time.Minute,
		logger,
	)

	listingRepo := listing.NewPostgresRepository(database, logger)

	grader := grading.NewEngine(
		listingRepo,
		grading.NewRedisThresholdCache(redisClient),
		time.Duration(cfg.ThresholdTTLMinutes)*time.Minute,
		logger,
		gradingMetrics,
	)

	svc := engine.NewService(listingRepo, classifier, scoring.NewAggregator(tables), grader, logger)

	recomputeJob := grading.NewRecomputeJob(grading.RecomputeJobConfig{
		Interval:   time.Duration(cfg.GradeRecomputeIntervalMinutes) * time.Minute,
		Timeout:    time.Duration(cfg.GradeRecomputeTimeoutSeconds) * time.Second,
		Logger:     logger,
		JobMetrics: jobMetrics,
		Reclassify: classifier,
	}, grader)
	if err := recomputeJob.Start(ctx); err != nil {
		logger.Error("failed to start grade recompute job", "error", err)
		os.Exit(1)
	}

	idempotencyRepo := idempotency.NewPostgresRepository(database)
	cleanupStop := make(chan struct{})
	go idempotency.RunPeriodicCleanup(idempotencyRepo, time.Hour, idempotency.DefaultExpiry, cleanupStop)

	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:      health.NewDBChecker(database),
		RedisChecker:   health.NewRedisChecker(redisClient),
		MetricsEnabled: true,
	})

	handler := newRouter(routerConfig{
		Service:          svc,
		Health:           healthHandlers,
		IdempotencyRepo:  idempotencyRepo,
		RateLimits:       middleware.NewRedisRateLimitStore(redisClient).AsStore(),
		HTTPMetrics:      httpMetrics,
		Registry:         registry,
		Logger:           logger,
		CORSOrigins:      cfg.CORSAllowedOrigins,
		Env:              cfg.Env,
		ProfilingEnabled: cfg.Env == "development",
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	recomputeJob.Stop()
	close(cleanupStop)

	if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracing provider", "error", err)
	}

	logger.Info("server stopped")
}
