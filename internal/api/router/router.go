package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/botlode/brain/internal/conversation"
	httpmiddleware "github.com/botlode/brain/internal/http/middleware"
	"github.com/botlode/brain/pkg/logging"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one dependency, e.g. the Postgres pool or Redis.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *conversation.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter
	HealthChecks       map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", healthHandler(cfg.HealthChecks, logger))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.ChatHandler != nil {
		r.Route("/chat", func(chat chi.Router) {
			chat.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			chat.Post("/", cfg.ChatHandler.Chat)
			chat.Options("/", cfg.ChatHandler.Preflight)
		})
	}

	return r
}

func healthHandler(checks map[string]HealthCheck, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		resp := map[string]string{"status": "ok"}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", "check", name, "error", err)
				resp[name] = "unavailable"
				resp["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
