package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/support-flow/internal/middleware"
	"github.com/capitalize-ai/support-flow/internal/service"
	"github.com/capitalize-ai/support-flow/pkg/logger"
)

// RouterConfig carries what the API router needs.
type RouterConfig struct {
	Conversations *service.ConversationService
	Flows         *service.FlowSource
	Checks        map[string]Pinger
	Logger        *logger.Logger

	JWTSecret                string
	CORSOrigins              []string
	RateLimitRequests        int
	RateLimitWindow          time.Duration
	ConversationRateRequests int
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	healthHandler := NewHealthHandler(cfg.Checks)
	conversationHandler := NewConversationHandler(cfg.Conversations, cfg.Logger)
	flowHandler := NewFlowHandler(cfg.Flows, cfg.Logger)

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/conversations/{id}", func(r chi.Router) {
			if cfg.ConversationRateRequests > 0 {
				r.Use(middleware.ConversationRateLimit(cfg.ConversationRateRequests, cfg.RateLimitWindow))
			}
			r.Post("/start", conversationHandler.Start)
			r.Get("/messages", conversationHandler.List)
			r.Post("/messages", conversationHandler.Send)
			r.Get("/variables", conversationHandler.Variables)
		})

		r.With(middleware.RequireScope(middleware.ScopeFlowsAdmin)).
			Post("/flows/reload", flowHandler.Reload)
	})

	return r
}
