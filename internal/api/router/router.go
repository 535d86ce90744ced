// Package router wires the operator HTTP API.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/realty-ai-agent/internal/agent"
	httpmiddleware "github.com/wolfman30/realty-ai-agent/internal/http/middleware"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

// ConversationService is the slice of agent.Service the API exposes.
type ConversationService interface {
	ProcessMessage(ctx context.Context, req agent.MessageRequest) *agent.Response
	ConversationState(ctx context.Context, leadID string) (map[string]any, bool)
	ResetConversation(ctx context.Context, leadID string)
}

// JobPublisher enqueues work for the background worker.
type JobPublisher interface {
	PublishMessage(ctx context.Context, req agent.MessageRequest) (string, error)
	PublishNewLead(ctx context.Context, req agent.NewLeadRequest) (string, error)
}

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Conversations  ConversationService
	Publisher      JobPublisher
	MetricsHandler http.Handler

	// ReadinessChecks run on GET /ready; any error fails the probe.
	ReadinessChecks map[string]func(context.Context) error

	// Operator auth. Without a secret the /v1 routes are only mounted when
	// AllowUnauthenticated is set.
	OperatorSecret       string
	OperatorAudience     string
	AllowUnauthenticated bool

	CORSAllowedOrigins []string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", health)
	r.Get("/ready", readiness(cfg.ReadinessChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.OperatorSecret == "" && !cfg.AllowUnauthenticated {
		logger.Warn("operator secret not set; /v1 routes disabled")
		return r
	}

	h := &handler{conversations: cfg.Conversations, publisher: cfg.Publisher, logger: logger.WithComponent("api")}
	r.Route("/v1", func(v1 chi.Router) {
		if cfg.OperatorSecret != "" {
			v1.Use(httpmiddleware.OperatorJWT(cfg.OperatorSecret, cfg.OperatorAudience))
		}
		if cfg.RateLimitPerSecond > 0 {
			v1.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
		}
		v1.Use(middleware.Timeout(30 * time.Second))

		if cfg.Conversations != nil {
			v1.Get("/conversations/{leadID}", h.getConversation)
			v1.Delete("/conversations/{leadID}", h.resetConversation)
			v1.Post("/messages:process", h.processMessage)
		}
		if cfg.Publisher != nil {
			v1.Post("/messages", h.enqueueMessage)
			v1.Post("/leads", h.enqueueNewLead)
		}
	})
	return r
}
