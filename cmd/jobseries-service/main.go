// jobseries-service is the HTTP API server for managing job series.
package main

import (
	"context"
	"errors"
	"flag"
	"jobseries/internal/api"
	"jobseries/internal/config"
	"jobseries/internal/health"
	"jobseries/internal/job"
	"jobseries/internal/notify"
	"jobseries/internal/observability"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	migrate := flag.Bool("migrate", false, "create the SQL schema before serving")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(*migrate); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run(migrate bool) error {
	ctx := context.Background()

	// Load configuration
	svcCfg, err := config.LoadServiceConfig()
	if err != nil {
		return err
	}
	setLogLevel(svcCfg.LogLevel)

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Open the metadata store
	store, err := openStore(ctx, svcCfg.Metadata, migrate || svcCfg.Metadata.Migrate)
	if err != nil {
		return err
	}
	defer store.Close()

	slog.Info("Metadata store ready", "backend", svcCfg.Metadata.Backend)

	// Provider clients, cached per caller credentials
	clients, closeClients, err := newClients(svcCfg)
	if err != nil {
		return err
	}
	defer closeClients()

	// Status notifications
	var notifier job.Notifier
	if svcCfg.Notify.URL != "" {
		notifier = notify.New(notify.Config{
			URL:         svcCfg.Notify.URL,
			SigningKey:  svcCfg.Notify.SigningKey,
			Timeout:     svcCfg.Notify.Timeout.Std(),
			MaxAttempts: svcCfg.Notify.MaxAttempts,
		}, metrics)
		slog.Info("Status notifications enabled", "signed", svcCfg.Notify.SigningKey != "")
	}

	// Create job service
	jobService := job.NewService(job.Config{
		Store:    store,
		Clients:  clients,
		Bucket:   svcCfg.Storage.Bucket,
		Metrics:  metrics,
		Notifier: notifier,
	})

	// Create health checker
	healthChecker := health.NewChecker(
		health.Dependency{Name: "metadata", Checker: health.CheckFunc(store.Ping)},
		health.Dependency{Name: "compute", Checker: computeReadiness(clients)},
	)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		JobService:     jobService,
		Metrics:        metrics,
		HealthChecker:  healthChecker,
		IdentityHeader: svcCfg.IdentityHeader,
		APIKey:         svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// Create API server. No write timeout: archive downloads stream for as
	// long as the object store keeps up.
	apiServer := &http.Server{
		Addr:              ":" + svcCfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// One slot per server so neither goroutine blocks
	serverErr := make(chan error, 2)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
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

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if drain := svcCfg.ShutdownDrainWait.Std(); drain > 0 {
		slog.Info("Waiting for traffic to drain", "duration", drain)
		time.Sleep(drain)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	slog.Info("Shutdown complete")
	return nil
}

func setLogLevel(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		slog.Warn("Unknown log level, using info", "level", level)
		return
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l})))
}
