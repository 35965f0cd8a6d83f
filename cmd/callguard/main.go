// Package main is the entry point for the callguard daemon. It loads
// configuration, builds a circuit breaker per configured provider, starts the
// HTTP server exposing admin, health, and metrics endpoints, and handles
// graceful shutdown on SIGINT/SIGTERM.
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

	"github.com/m-check1B/callguard/internal/admin"
	"github.com/m-check1B/callguard/internal/circuitbreaker"
	"github.com/m-check1B/callguard/internal/config"
	"github.com/m-check1B/callguard/internal/health"
	"github.com/m-check1B/callguard/internal/logging"
	"github.com/m-check1B/callguard/internal/metrics"
	"github.com/m-check1B/callguard/internal/ratelimit"
)

func main() {
	configPath := flag.String("config", "configs/callguard.yaml", "path to configuration file")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		bootLogger.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	slog.SetDefault(logger)

	for _, w := range cfg.Warnings {
		logger.Warn("config warning", "message", w)
	}

	logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"providers", len(cfg.Providers),
		"admin_enabled", cfg.Admin.Enabled,
		"metrics_enabled", cfg.Metrics.IsEnabled(),
		"metrics_path", cfg.Metrics.Path,
	)

	if cfg.Metrics.IsEnabled() {
		metrics.Init()
	}

	// One breaker per provider, all reporting through the Prometheus sink.
	registry := circuitbreaker.NewRegistry()
	if err := registerProviders(registry, cfg, logger); err != nil {
		logger.Error("failed to build circuit breakers", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.LivenessHandler())
	mux.HandleFunc("GET /ready", health.ReadinessHandler(registry))

	if cfg.Metrics.IsEnabled() {
		mux.Handle("GET "+cfg.Metrics.Path, metrics.Handler())
		logger.Info("metrics endpoint registered", "path", cfg.Metrics.Path)
	}

	reloader := config.NewReloader(*configPath, cfg, logger)
	reloader.Start()
	defer reloader.Stop()

	// A reload can add providers; breakers for them are created on the fly.
	// Changed tunables on existing breakers require a restart and are logged
	// by the reloader.
	reloader.OnReload(func(newCfg *config.Config) {
		if err := registerProviders(registry, newCfg, logger); err != nil {
			logger.Error("failed to add breakers for new providers", "error", err)
		}
	})

	if cfg.Admin.Enabled {
		limiter := ratelimit.New(cfg.Admin.RequestsPerSecond, cfg.Admin.BurstSize)
		defer limiter.Stop()

		adminHandler := admin.New(registry, reloader, limiter, cfg.Admin.IPAllowlist, logger)
		adminHandler.RegisterRoutes(mux)
		logger.Info("admin API registered", "allowlist", cfg.Admin.IPAllowlist)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting callguard", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("draining in-flight requests", "timeout", cfg.Server.ShutdownTimeout)
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("callguard stopped gracefully")
}

// registerProviders creates and registers a breaker for every configured
// provider not already present. Safe to call again after a config reload.
func registerProviders(registry *circuitbreaker.Registry, cfg *config.Config, logger *slog.Logger) error {
	for _, p := range cfg.Providers {
		if _, exists := registry.Get(p.Name); exists {
			continue
		}

		cb, err := circuitbreaker.New(cfg.BreakerConfig(p), p.ResourceLabel(),
			circuitbreaker.WithSink(metrics.Sink{}),
			circuitbreaker.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("provider %s: %w", p.Name, err)
		}
		if err := registry.Register(cb); err != nil {
			return fmt.Errorf("provider %s: %w", p.Name, err)
		}

		logger.Info("circuit breaker registered",
			"circuit", p.Name,
			"resource", p.ResourceLabel(),
			"failure_threshold", cb.Config().FailureThreshold,
			"success_threshold", cb.Config().SuccessThreshold,
			"timeout", cb.Config().Timeout,
			"half_open_max_calls", cb.Config().HalfOpenMaxCalls,
		)
	}
	return nil
}
