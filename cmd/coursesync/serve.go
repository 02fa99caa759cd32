package main

import (
	"context"
	"coursesync/internal/api"
	"coursesync/internal/config"
	"coursesync/internal/health"
	"coursesync/internal/scheduler"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// jobShutdownWait bounds how long shutdown waits for running jobs.
const jobShutdownWait = 2 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, metrics endpoint and scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	apiKey, err := config.ReadSecretFile(cfg.APIKeyFile)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	healthChecker := health.NewChecker(map[string]health.ReadinessChecker{
		"database": a.db,
	})

	sched, err := scheduler.New(a.runner, scheduler.DefaultEntries(a.service, cfg.Schedule.MembershipAudit))
	if err != nil {
		return err
	}
	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go sched.Start(schedCtx)

	router := api.NewRouter(api.RouterConfig{
		Jobs:           a.runner,
		Reconciler:     a.service,
		Metrics:        a.metrics,
		HealthChecker:  healthChecker,
		APIKey:         apiKey,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	if apiKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no api_key_file configured")
	}

	apiServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", a.metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.Server.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		slog.Info("Starting API server", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		stopScheduler()
		shutdown(5 * time.Second)
		a.close(context.Background())
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()
	stopScheduler()

	if cfg.Server.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", cfg.Server.ShutdownDrainWait)
		time.Sleep(cfg.Server.ShutdownDrainWait)
	}

	// Phase 2: stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: let submitted jobs finish writing their logs
	slog.Info("Waiting for running jobs")
	jobsCtx, cancel := context.WithTimeout(context.Background(), jobShutdownWait)
	defer cancel()
	a.close(jobsCtx)

	slog.Info("Shutdown complete")
	return nil
}
