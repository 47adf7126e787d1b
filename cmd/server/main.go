package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dandantas/cronlease/internal/clock"
	"github.com/dandantas/cronlease/internal/cluster"
	"github.com/dandantas/cronlease/internal/config"
	"github.com/dandantas/cronlease/internal/database"
	"github.com/dandantas/cronlease/internal/handler"
	"github.com/dandantas/cronlease/internal/lock"
	"github.com/dandantas/cronlease/internal/metrics"
	"github.com/dandantas/cronlease/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	config.InitLogger(cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting scheduler service",
		"version", version,
		"clustered", cfg.Clustered,
		"checkin_interval_ms", cfg.CheckinInterval.Milliseconds(),
		"lease_ms", cfg.Lease().Milliseconds(),
	)

	if err := run(cfg); err != nil {
		slog.Error("Scheduler service failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Scheduler service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.InstanceID, cfg.MongoTimeout)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Disconnect(context.Background()); err != nil {
			slog.Error("Failed to disconnect from MongoDB", "error", err)
		}
	}()

	if err := database.CreateIndexes(ctx, db); err != nil {
		return err
	}

	clk := clock.System{}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Repositories
	schedulerRepo := database.NewSchedulerRepository(db, clk, cfg.SchedulerName, cfg.InstanceID, cfg.Lease())
	lockRepo := database.NewLockRepository(db, clk, cfg.InstanceID)
	triggerRepo := database.NewTriggerRepository(db)

	expiry := cluster.NewExpiryCalculator(schedulerRepo, clk, cfg.JobLockTimeout, cfg.TriggerLockTimeout)
	lockManager := lock.NewManager(lockRepo, expiry, m)

	// Cluster management
	var clusterService *cluster.Service
	if cfg.Clustered {
		checkin := cluster.NewCheckinTask(schedulerRepo, cluster.NewRetryPolicy(cfg.CheckinAttempts, cfg.CheckinInterval), m)
		cleanup := cluster.NewCleanupTask(schedulerRepo, lockRepo, triggerRepo, expiry, m)
		clusterService = cluster.NewService(checkin, cleanup, cfg.CheckinInterval, cfg.InstanceID)
		clusterService.Start(ctx)
	} else {
		// A fixed instance id may still own locks from a previous run
		if _, err := lockRepo.RemoveOwnLocks(ctx); err != nil {
			return err
		}
	}

	// Trigger firing
	sched := scheduler.NewScheduler(cfg, clk, triggerRepo, lockManager, m)
	registerJobs(sched, cfg, clk)
	sched.Start(ctx)

	// HTTP API
	router := handler.NewRouter(
		handler.NewHealthHandler(db, cfg.SchedulerName, cfg.InstanceID, version),
		handler.NewClusterHandler(schedulerRepo, lockRepo, expiry),
		handler.NewTriggerHandler(triggerRepo, clk),
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Stop firing before leaving the cluster so our trigger locks are released
		sched.Stop(shutdownCtx)

		if clusterService != nil {
			clusterService.Shutdown()
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}
