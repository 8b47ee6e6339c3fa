// Package app wires every component into a running process: config,
// logging, persistence, the domain stores, the pipeline executor, the
// scheduler, and the HTTP server, then runs until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harvestpipe/engine/internal/config"
	"github.com/harvestpipe/engine/internal/httpserver"
	"github.com/harvestpipe/engine/internal/platform"
	"github.com/harvestpipe/engine/internal/telemetry"
	"github.com/harvestpipe/engine/pkg/artifact"
	"github.com/harvestpipe/engine/pkg/gateway"
	"github.com/harvestpipe/engine/pkg/job"
	"github.com/harvestpipe/engine/pkg/lifecycle"
	"github.com/harvestpipe/engine/pkg/pipeline"
	"github.com/harvestpipe/engine/pkg/scheduler"
	"github.com/harvestpipe/engine/pkg/session"
	"github.com/harvestpipe/engine/pkg/tenant"
	"github.com/harvestpipe/engine/pkg/upstream"
)

// Run is the main application entry point: it reads config, connects to
// infrastructure, wires every component, and serves until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	if cfg.Mode != "api" {
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting harvest pipeline engine",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}()
		logger.Info("redis connected: lifecycle pub/sub and cross-replica tick de-duplication enabled")
	} else {
		logger.Info("redis disabled (REDIS_URL not set), running lifecycle events and tick de-duplication single-process only")
	}

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	artifacts := artifact.NewStore(cfg.StorageRoot)
	tenants := tenant.NewStore(db)
	jobs := job.NewStore(db, artifacts.JobFolder)

	upstreamClient := upstream.NewClient(cfg.UpstreamBaseURL, time.Duration(cfg.UpstreamTimeoutSeconds)*time.Second)

	sessions := session.NewManager(upstreamClient, jobs, tenants, session.Config{
		MaxRetries: cfg.SessionAcquireMaxRetries,
		RetryDelay: time.Duration(cfg.SessionAcquireRetryMinutes) * time.Minute,
	})

	executor := pipeline.NewExecutor(upstreamClient, sessions, artifacts, jobs, pipeline.Config{
		CheckpointEvery: cfg.Stage4CheckpointEvery,
	})
	if rdb != nil {
		executor.WithPublisher(lifecycle.NewRedisPublisher(rdb, logger))
	}

	gw := gateway.NewGateway(jobs, executor, logger)
	sched := scheduler.New(jobs, executor, logger)
	if rdb != nil {
		sched.WithTickLock(lifecycle.NewRedisTickLock(rdb))
	}

	// Seed the scheduler registry with every tenant whose schedule is
	// already enabled, so a restart resumes ticking without an explicit
	// resume call (spec.md §4.6).
	enabled, err := tenants.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("listing enabled tenants at startup: %w", err)
	}
	now := time.Now()
	for _, t := range enabled {
		sched.Register(t, now)
	}
	logger.Info("scheduler seeded", "enabled_tenants", len(enabled))

	go sched.Run(ctx, 60*time.Second)

	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AdminSecret:        cfg.AdminSecret,
	}, logger, ctx, db, rdb, metricsReg, tenants, jobs, artifacts, gw, sched)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // zip/spreadsheet downloads can be large
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
