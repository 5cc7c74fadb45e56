package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/botlode/brain/internal/api/router"
	"github.com/botlode/brain/internal/app/bootstrap"
	appconfig "github.com/botlode/brain/internal/config"
	"github.com/botlode/brain/internal/conversation"
	httpmiddleware "github.com/botlode/brain/internal/http/middleware"
	"github.com/botlode/brain/internal/observability/metrics"
	"github.com/botlode/brain/internal/worker/background"
	"github.com/botlode/brain/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := appconfig.Load()
	if err != nil {
		logging.Default().Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	logger.Info("starting botlode brain API server", "env", cfg.Env, "port", cfg.Port)

	metricsHandler, convMetrics := setupMetrics()

	awsCfg, err := bootstrap.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}
	stores, err := bootstrap.BuildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	oracles, err := bootstrap.BuildOracles(ctx, cfg, awsCfg, convMetrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := oracles.Close(); err != nil {
			logger.Warn("failed to close oracle clients", "error", err)
		}
	}()

	runner := background.NewRunner(logger,
		background.WithWorkers(cfg.BackgroundWorkers),
		background.WithQueueSize(cfg.BackgroundQueueSize),
		background.WithMetrics(convMetrics),
	)
	runner.Start()

	service, err := bootstrap.BuildConversationService(cfg, bootstrap.ServiceDeps{
		Stores:   stores,
		Oracles:  oracles,
		Notifier: bootstrap.BuildNotifier(cfg, awsCfg, logger),
		Tasks:    runner,
		Metrics:  convMetrics,
	}, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(&router.Config{
			Logger:             logger,
			ChatHandler:        conversation.NewHandler(service, logger),
			MetricsHandler:     metricsHandler,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			RateLimiter:        httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
			HealthChecks:       stores.HealthChecks(),
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.OracleTimeout*time.Duration(cfg.OracleMaxRetries+1) + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	// Drain post-response work after the last request has been answered.
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("background tasks did not drain", "error", err)
	}
	return nil
}

func setupMetrics() (http.Handler, *metrics.ConversationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewConversationMetrics(reg)
}
