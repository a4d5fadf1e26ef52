// Package main is the entry point for the fiscalsync daemon: the control
// API, the synchronization engine, the stall monitor and the scheduler
// run in one process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fiscalsync/internal/artifact"
	"fiscalsync/internal/config"
	"fiscalsync/internal/controller"
	"fiscalsync/internal/engine"
	"fiscalsync/internal/logger"
	"fiscalsync/internal/monitor"
	"fiscalsync/internal/observability"
	"fiscalsync/internal/scheduler"
	"fiscalsync/internal/source"
	"fiscalsync/internal/store/postgres"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New(cfg.Debug)

	ctx := context.Background()
	pgStore, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pgStore.Close()

	if *migrateFlag {
		slogger.Info("running database migrations")
		if err := postgres.Migrate(pgStore.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		slogger.Info("migrations completed")
	}

	// Tracing
	if cfg.OTELEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, "fiscalsyncd", cfg.OTELEndpoint)
		if err != nil {
			log.Fatalf("Failed to init tracing: %v", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				slogger.Warn("failed to shut down tracer", "error", err)
			}
		}()
	}

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slogger.Warn("failed to shut down metrics", "error", err)
		}
	}()

	// Observable gauges query the DB only when scraped.
	meter := otel.Meter("fiscalsyncd")
	_, err = meter.Int64ObservableGauge("fiscalsync.jobs.active",
		metric.WithDescription("Number of active synchronization runs"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := pgStore.CountActiveJobs(ctx)
			if err != nil {
				return err
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		log.Fatalf("Failed to register jobs gauge: %v", err)
	}
	_, err = meter.Int64ObservableGauge("fiscalsync.watermark.lag",
		metric.WithDescription("Total NSU lag behind the remote source"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			lag, err := pgStore.TotalLag(ctx)
			if err != nil {
				return err
			}
			obs.Observe(lag)
			return nil
		}),
	)
	if err != nil {
		log.Fatalf("Failed to register lag gauge: %v", err)
	}

	src := source.NewClient(source.Config{
		BaseURL:         cfg.SourceBaseURL,
		RequestTimeout:  cfg.SourceTimeout,
		PerCertInterval: cfg.SourceCertInterval,
	})

	var renderer engine.ArtifactRenderer
	if cfg.RenderServiceURL != "" {
		renderer = artifact.New(cfg.RenderServiceURL)
	}

	eng := engine.New(pgStore, src, renderer, slogger, engine.Config{
		MaxConcurrentRuns: cfg.MaxConcurrentRuns,
		BatchRetries:      cfg.BatchRetries,
		RetryBackoff:      cfg.RetryBackoff,
		PurgeGraceWait:    cfg.PurgeGraceWait,
	})

	mon := monitor.New(pgStore, eng, slogger, monitor.Config{
		Interval:      cfg.StallInterval,
		StallTimeout:  cfg.StallTimeout,
		MaxAttempts:   cfg.MaxAttempts,
		InfiniteRetry: cfg.InfiniteRetry,
		RetryDelay:    cfg.StallDelay,
	})

	sched := scheduler.New(pgStore, eng, slogger, cfg.ScheduleInterval)

	srv := controller.New(fmt.Sprintf(":%d", cfg.HTTPPort), pgStore, eng, metricsHandler)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := mon.Run(runCtx); err != nil && runCtx.Err() == nil {
			slogger.Error("stall monitor stopped", "error", err)
		}
	}()
	go func() {
		if err := sched.Run(runCtx); err != nil && runCtx.Err() == nil {
			slogger.Error("scheduler stopped", "error", err)
		}
	}()

	slogger.Info("fiscalsyncd listening", "port", cfg.HTTPPort)
	if err := srv.Run(runCtx); err != nil && runCtx.Err() == nil {
		slogger.Error("server stopped", "error", err)
	}

	// Let in-flight runs drain before the process exits.
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := eng.Shutdown(drainCtx); err != nil {
		slogger.Warn("engine did not drain cleanly", "error", err)
	}
}
