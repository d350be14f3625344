package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/peeap/identity-service/internal/authcode"
	"github.com/peeap/identity-service/internal/cache"
	"github.com/peeap/identity-service/internal/clients"
	"github.com/peeap/identity-service/internal/config"
	"github.com/peeap/identity-service/internal/consent"
	"github.com/peeap/identity-service/internal/database"
	"github.com/peeap/identity-service/internal/events"
	"github.com/peeap/identity-service/internal/httpapi"
	"github.com/peeap/identity-service/internal/httpapi/handlers"
	httpmiddleware "github.com/peeap/identity-service/internal/httpapi/middleware"
	"github.com/peeap/identity-service/internal/metrics"
	"github.com/peeap/identity-service/internal/reaper"
	"github.com/peeap/identity-service/internal/secrets"
	"github.com/peeap/identity-service/internal/sso"
	"github.com/peeap/identity-service/internal/storage"
	"github.com/peeap/identity-service/internal/storage/memory"
	storagepg "github.com/peeap/identity-service/internal/storage/postgres"
	"github.com/peeap/identity-service/internal/tokens"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App wires core dependencies and exposes server lifecycle controls.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	dispatcher *events.Dispatcher
	reaper     *reaper.Reaper
	httpServer *http.Server

	cancelWorkers context.CancelFunc
}

// New constructs the application. Without a database URL the service runs
// on the in-memory store, which is only suitable for local development.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	var (
		store storage.Store
		pool  *pgxpool.Pool
		err   error
	)
	if cfg.Database.URL != "" {
		pool, err = database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.RunMigrations {
			if err := database.RunMigrations(ctx, pool); err != nil {
				return nil, err
			}
		}
		store = storagepg.New(pool, cfg.Database.QueryTimeout)
	} else {
		logger.Warn("no database configured, using in-memory store")
		store = memory.New()
	}

	redisClient, err := cache.New(cfg.Redis)
	if err != nil {
		if cfg.App.Environment != "development" && cfg.App.Environment != "local" {
			return nil, err
		}
		logger.Warn("redis unavailable, caching and rate limits disabled", zap.Error(err))
		redisClient = nil
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	dispatcher := events.NewDispatcher(store, cfg.Webhook, logger, m)
	recorder := events.NewLogger(store, dispatcher, logger)

	hasher := secrets.NewHasher(cfg.Security)
	clientRegistry := clients.NewRegistry(store, redisClient, cfg.Redis.Namespace, hasher, logger)
	consentSvc := consent.New(store, recorder)
	codeSvc := authcode.New(authcode.Dependencies{
		Registry: clientRegistry,
		Store:    store,
		Recorder: recorder,
		Metrics:  m,
		CodeTTL:  cfg.Token.CodeTTL,
		Logger:   logger,
	})
	tokenSvc := tokens.New(store, recorder, m, cfg.Token, logger)
	ssoSvc := sso.New(store, cfg.SSO.AllowedApps, cfg.SSO.TokenTTL, recorder, m, logger)
	expiryReaper := reaper.New(store, cfg.Reaper, m, logger)

	authMiddleware := httpmiddleware.NewAuth(tokenSvc)
	serviceAuth := httpmiddleware.NewServiceAuth(cfg.SSO.ServiceSecret, cfg.SSO.AllowedApps)
	rateLimiter := httpmiddleware.NewRateLimiter(redisClient, cfg.Redis.Namespace)

	router := httpapi.NewRouter(httpapi.RouterDeps{
		Authorize:      handlers.NewAuthorizeHandler(clientRegistry, consentSvc, codeSvc, logger),
		Token:          handlers.NewTokenHandler(clientRegistry, codeSvc, tokenSvc, logger),
		SSO:            handlers.NewSSOHandler(ssoSvc, logger),
		Admin:          handlers.NewAdminHandler(clientRegistry, consentSvc, store, recorder, logger),
		RequireService: serviceAuth.RequireService,
		RequireAdmin:   authMiddleware.RequireScope("admin"),
		RateLimitToken: rateLimiter.Limit("token", 120, time.Minute, httpapi.ClientIP),
		RateLimitSSO:   rateLimiter.Limit("sso", 300, time.Minute, httpapi.ClientIP),
		MetricsHandler: promhttp.Handler(),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		redis:      redisClient,
		dispatcher: dispatcher,
		reaper:     expiryReaper,
		httpServer: server,
	}, nil
}

// Run starts the background workers and the HTTP server.
func (a *App) Run() error {
	workerCtx, cancel := context.WithCancel(context.Background())
	a.cancelWorkers = cancel

	a.dispatcher.Start(workerCtx)
	go a.reaper.Run(workerCtx)

	a.logger.Info("starting HTTP server", zap.String("addr", a.httpServer.Addr))
	return a.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server, drains the webhook queue, and
// closes resources.
func (a *App) Shutdown(ctx context.Context) error {
	shutdownErr := a.httpServer.Shutdown(ctx)

	if a.cancelWorkers != nil {
		a.cancelWorkers()
	}
	a.dispatcher.Close()

	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", zap.Error(err))
			if shutdownErr == nil {
				shutdownErr = err
			}
		}
	}
	return shutdownErr
}
