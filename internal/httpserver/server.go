package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tidybook/subsync/internal/access"
	"github.com/tidybook/subsync/internal/billing"
	"github.com/tidybook/subsync/internal/config"
	"github.com/tidybook/subsync/internal/idempotency"
	"github.com/tidybook/subsync/internal/logger"
	"github.com/tidybook/subsync/internal/metrics"
	"github.com/tidybook/subsync/internal/ratelimit"
	syncsvc "github.com/tidybook/subsync/internal/sync"
	"github.com/tidybook/subsync/internal/tenant"
	"github.com/tidybook/subsync/internal/versioning"
)

var (
	serverStartTime = time.Now()
)

// WebhookParser validates a raw webhook payload and normalizes it.
type WebhookParser interface {
	Parse(payload []byte, signature string) (billing.WebhookEvent, error)
}

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg       *config.Config
	access    *access.Service
	scheduler *syncsvc.Scheduler
	ingest    *syncsvc.Ingestor
	webhooks  WebhookParser
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// New builds the HTTP server with configured router.
func New(cfg *config.Config, accessSvc *access.Service, scheduler *syncsvc.Scheduler, ingestor *syncsvc.Ingestor, webhookParser WebhookParser, idemStore idempotency.Store, metricsCollector *metrics.Metrics, appLogger zerolog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: handlers{
			cfg:       cfg,
			access:    accessSvc,
			scheduler: scheduler,
			ingest:    ingestor,
			webhooks:  webhookParser,
			metrics:   metricsCollector,
			logger:    appLogger,
		},
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	ConfigureRouter(router, cfg, accessSvc, scheduler, ingestor, webhookParser, idemStore, metricsCollector, appLogger)

	return s
}

// ConfigureRouter attaches subsync routes to an existing router. Embedding
// hosts can call this directly to mount the engine inside their own mux.
func ConfigureRouter(router chi.Router, cfg *config.Config, accessSvc *access.Service, scheduler *syncsvc.Scheduler, ingestor *syncsvc.Ingestor, webhookParser WebhookParser, idemStore idempotency.Store, metricsCollector *metrics.Metrics, appLogger zerolog.Logger) {
	if router == nil {
		return
	}

	handler := handlers{
		cfg:       cfg,
		access:    accessSvc,
		scheduler: scheduler,
		ingest:    ingestor,
		webhooks:  webhookParser,
		metrics:   metricsCollector,
		logger:    appLogger,
	}

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"Location"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	// Security headers middleware (applied first for all responses)
	router.Use(securityHeadersMiddleware)

	// Structured logging middleware (BEFORE RequestID for context propagation)
	router.Use(logger.Middleware(appLogger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	// API version negotiation (X-API-Version header, Accept media type)
	router.Use(versioning.Negotiation)

	// Tenant extraction (X-Tenant-ID header, subdomain, default)
	router.Use(tenant.Extraction)

	// Rate limiting middleware (applied globally)
	rateLimitCfg := ratelimit.Config{
		GlobalEnabled:    cfg.RateLimit.GlobalEnabled,
		GlobalLimit:      cfg.RateLimit.GlobalLimit,
		GlobalWindow:     cfg.RateLimit.GlobalWindow.Duration,
		PerTenantEnabled: cfg.RateLimit.PerTenantEnabled,
		PerTenantLimit:   cfg.RateLimit.PerTenantLimit,
		PerTenantWindow:  cfg.RateLimit.PerTenantWindow.Duration,
		PerIPEnabled:     cfg.RateLimit.PerIPEnabled,
		PerIPLimit:       cfg.RateLimit.PerIPLimit,
		PerIPWindow:      cfg.RateLimit.PerIPWindow.Duration,
		Metrics:          metricsCollector,
	}
	router.Use(ratelimit.GlobalLimiter(rateLimitCfg))
	router.Use(ratelimit.TenantLimiter(rateLimitCfg))
	router.Use(ratelimit.IPLimiter(rateLimitCfg))

	// NOTE: Timeout middleware is applied selectively per route group below
	// to avoid imposing the sync timeout on lightweight health endpoints.

	prefix := cfg.Server.RoutePrefix

	// Replay protection for state-changing endpoints. Without a store the
	// Idempotency-Key header is ignored.
	idem := func(next http.Handler) http.Handler { return next }
	if idemStore != nil {
		idem = idempotency.Middleware(idemStore, idempotency.DefaultTTL)
	}

	// Lightweight endpoints with 5s timeout (liveness, metrics)
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/subsync-health", handler.health)
		// Prometheus metrics endpoint, protected by the optional admin key
		r.With(adminAuth(cfg.Server.AdminAPIKey)).Handle(prefix+"/metrics", promhttp.Handler())
	})

	// API endpoints with 60s timeout (may block on a provider round trip)
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Billing webhook (kept at root for webhook URL stability; the
		// provider needs a stable, unversioned URL)
		r.Post(prefix+"/webhook/billing", handler.billingWebhook)

		// API v1 - status surface
		r.Get(prefix+"/subsync/v1/status", handler.getStatus)
		r.Post(prefix+"/subsync/v1/refresh", handler.refreshStatus)
		r.Post(prefix+"/subsync/v1/login", handler.notifyLogin)

		// API v1 - lifecycle
		r.With(idem).Post(prefix+"/subsync/v1/trial", handler.startTrial)
		r.With(idem).Post(prefix+"/subsync/v1/cancel", handler.cancelSubscription)

		// API v1 - operations
		r.Get(prefix+"/subsync/v1/analytics", handler.getAnalytics)
		r.Get(prefix+"/subsync/v1/health", handler.getHealthReport)
		r.With(adminAuth(cfg.Server.AdminAPIKey)).Post(prefix+"/subsync/v1/sync/run", handler.runSync)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
