// Package subsync wires the subscription sync engine for reuse or
// standalone serving. Hosts can embed the engine in an existing chi router
// or run it as its own HTTP server via cmd/subsyncd.
package subsync

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/tidybook/subsync/internal/access"
	"github.com/tidybook/subsync/internal/billing"
	"github.com/tidybook/subsync/internal/cache"
	"github.com/tidybook/subsync/internal/circuitbreaker"
	"github.com/tidybook/subsync/internal/config"
	"github.com/tidybook/subsync/internal/dbpool"
	"github.com/tidybook/subsync/internal/httpserver"
	"github.com/tidybook/subsync/internal/idempotency"
	"github.com/tidybook/subsync/internal/lifecycle"
	"github.com/tidybook/subsync/internal/logger"
	"github.com/tidybook/subsync/internal/metrics"
	"github.com/tidybook/subsync/internal/notify"
	"github.com/tidybook/subsync/internal/observability"
	"github.com/tidybook/subsync/internal/store"
	syncsvc "github.com/tidybook/subsync/internal/sync"
)

// App wires the subscription engine components.
type App struct {
	Config     *config.Config
	Store      store.Repository
	Cache      cache.Cache
	Billing    billing.Client
	Hooks      *observability.Registry
	Reconciler *syncsvc.Reconciler
	Scheduler  *syncsvc.Scheduler
	Logins     *syncsvc.LoginQueue
	Ingestor   *syncsvc.Ingestor
	Access     *access.Service

	router           chi.Router
	resourceManager  *lifecycle.Manager
	metricsCollector *metrics.Metrics
}

// Option configures App construction.
type Option func(*options)

type options struct {
	store   store.Repository
	cache   cache.Cache
	billing billing.Client
	router  chi.Router
}

// WithStore sets a custom subscription record store.
func WithStore(repo store.Repository) Option {
	return func(o *options) {
		o.store = repo
	}
}

// WithCache sets a custom status cache.
func WithCache(c cache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithBillingClient injects a custom billing provider client.
func WithBillingClient(client billing.Client) Option {
	return func(o *options) {
		o.billing = client
	}
}

// WithRouter allows callers to provide an existing chi.Router to register routes onto.
func WithRouter(router chi.Router) Option {
	return func(o *options) {
		o.router = router
	}
}

// NewApp assembles the subscription engine for embedding.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("subsync: config required")
	}

	optState := options{}
	for _, opt := range opts {
		opt(&optState)
	}

	app := &App{
		Config:          cfg,
		resourceManager: lifecycle.NewManager(),
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "subsync",
		Environment: cfg.Logging.Environment,
	})

	metricsCollector := metrics.New(prometheus.DefaultRegisterer)
	app.metricsCollector = metricsCollector

	if optState.store != nil {
		app.Store = optState.store
	} else {
		storeCfg := store.Config{
			Backend:     cfg.Store.Backend,
			PostgresURL: cfg.Store.PostgresURL,
			MongoURL:    cfg.Store.MongoDBURL,
			MongoDB:     cfg.Store.MongoDBDatabase,
			TableName:   cfg.Store.TableName,
		}

		// Postgres goes through a shared pool so the host can hand the same
		// *sql.DB to its own repositories later.
		if cfg.Store.Backend == "postgres" && cfg.Store.PostgresURL != "" {
			pool, err := dbpool.NewSharedPool(cfg.Store.PostgresURL, cfg.Store.PostgresPool)
			if err != nil {
				return nil, err
			}
			app.resourceManager.Register("db-pool", pool)
			storeCfg.PostgresDB = pool.DB()
		}

		repo, err := store.New(storeCfg)
		if err != nil {
			return nil, err
		}
		app.Store = repo
		app.resourceManager.Register("store", repo)
		if cfg.Store.Backend == "" || cfg.Store.Backend == "memory" {
			log.Warn().
				Msg("subsync: defaulting to in-memory store - records do not survive restarts")
		}
	}

	if optState.cache != nil {
		app.Cache = optState.cache
	} else {
		statusCache, err := cache.New(cache.Config{
			Backend:   cfg.Cache.Backend,
			TTL:       cfg.Cache.TTL.Duration,
			RedisAddr: cfg.Cache.RedisAddr,
			RedisPass: cfg.Cache.RedisPassword,
			RedisDB:   cfg.Cache.RedisDB,
			Prefix:    cfg.Cache.Prefix,
		})
		if err != nil {
			return nil, err
		}
		app.Cache = statusCache
		app.resourceManager.Register("cache", statusCache)
	}

	if optState.billing != nil {
		app.Billing = optState.billing
	} else if cfg.Billing.SecretKey != "" {
		var breakers *circuitbreaker.Manager
		if cfg.CircuitBreaker.Enabled {
			breakers = circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)
		}
		app.Billing = billing.NewStripeClient(cfg.Billing, breakers)
	} else {
		log.Warn().
			Msg("subsync: no billing secret configured - provider sync disabled, trials and decay still work")
	}

	// Hook registry: metrics and logging observers ride along on every
	// sync and lifecycle event.
	app.Hooks = observability.NewRegistry(appLogger)
	promHook := observability.NewPrometheusHook(metricsCollector)
	app.Hooks.RegisterSyncHook(promHook)
	app.Hooks.RegisterLifecycleHook(promHook)
	logHook := observability.NewLoggingHook(appLogger)
	app.Hooks.RegisterSyncHook(logHook)
	app.Hooks.RegisterLifecycleHook(logHook)
	if cfg.Notify.URL != "" {
		notifier := notify.NewClient(cfg.Notify,
			notify.WithLogger(appLogger),
			notify.WithMetrics(metricsCollector),
		)
		app.Hooks.RegisterLifecycleHook(notify.NewHook(notifier))
	}

	app.Reconciler = syncsvc.NewReconciler(syncsvc.ReconcilerOptions{
		Store:       app.Store,
		Billing:     app.Billing,
		Cache:       app.Cache,
		Hooks:       app.Hooks,
		Metrics:     metricsCollector,
		Logger:      appLogger,
		RenewalLead: cfg.Sync.RenewalLead.Duration,
	})

	app.Scheduler = syncsvc.NewScheduler(syncsvc.SchedulerOptions{
		Store:          app.Store,
		Reconciler:     app.Reconciler,
		Hooks:          app.Hooks,
		Metrics:        metricsCollector,
		Logger:         appLogger,
		Interval:       cfg.Sync.Interval.Duration,
		StaleAfter:     cfg.Sync.StaleAfter.Duration,
		BatchLimit:     cfg.Sync.BatchLimit,
		InterCallDelay: cfg.Sync.InterCallDelay.Duration,
	})

	app.Logins = syncsvc.NewLoginQueue(app.Reconciler, cfg.Sync.LoginDelay.Duration, appLogger)
	app.resourceManager.RegisterFunc("login-queue", func() error {
		app.Logins.Stop()
		return nil
	})

	app.Ingestor = syncsvc.NewIngestor(syncsvc.IngestorOptions{
		Store:      app.Store,
		Reconciler: app.Reconciler,
		Logger:     appLogger,
	})

	app.Access = access.NewService(access.Options{
		Store:      app.Store,
		Cache:      app.Cache,
		Billing:    app.Billing,
		Reconciler: app.Reconciler,
		Logins:     app.Logins,
		Hooks:      app.Hooks,
		Metrics:    metricsCollector,
		Logger:     appLogger,
		TrialDays:  cfg.Billing.TrialDays,
		PriceID:    cfg.Billing.PriceID,
	})

	if optState.router != nil {
		app.router = optState.router
	} else {
		app.router = chi.NewRouter()
	}

	webhookParser := billing.NewWebhookParser(cfg.Billing.WebhookSecret)

	idemStore := idempotency.NewMemoryStore()
	app.resourceManager.RegisterFunc("idempotency-store", func() error {
		idemStore.Stop()
		return nil
	})

	httpserver.ConfigureRouter(app.router, cfg, app.Access, app.Scheduler, app.Ingestor, webhookParser, idemStore, metricsCollector, appLogger)

	return app, nil
}

// Start launches the background sync scheduler.
func (a *App) Start(ctx context.Context) {
	a.Scheduler.Start(ctx)
}

// Router returns the chi router with subsync routes registered.
func (a *App) Router() chi.Router {
	return a.router
}

// Handler exposes the router as an http.Handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Close stops background work and releases resources owned by the app.
func (a *App) Close() error {
	a.Scheduler.Stop()
	return a.resourceManager.Close()
}

// NewHandler is a convenience that constructs an App and returns its handler.
func NewHandler(cfg *config.Config, opts ...Option) (http.Handler, func(context.Context) error, error) {
	app, err := NewApp(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	shutdown := func(context.Context) error {
		return app.Close()
	}
	return app.Handler(), shutdown, nil
}

// Config is an exported alias of the internal configuration struct for embedding use.
type Config = config.Config

// LoadConfig wraps the internal loader for consumers embedding the engine.
func LoadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}
