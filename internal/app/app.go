package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vadim/tutor-support/internal/config"
	httpcontroller "github.com/vadim/tutor-support/internal/controller/http"
	"github.com/vadim/tutor-support/internal/database"
	"github.com/vadim/tutor-support/internal/domain/support/dao"
	"github.com/vadim/tutor-support/internal/domain/support/policy"
	"github.com/vadim/tutor-support/internal/domain/support/service"
	"github.com/vadim/tutor-support/internal/events"
	authmw "github.com/vadim/tutor-support/internal/httpx/middleware"
	"github.com/vadim/tutor-support/internal/httpx/ratelimit"
	"github.com/vadim/tutor-support/internal/metrics"
	"github.com/vadim/tutor-support/internal/storage"
)

// eventPublisher is a service.EventPublisher that owns a connection
type eventPublisher interface {
	service.EventPublisher
	Close() error
}

// App is the main application container
type App struct {
	cfg        config.Config
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	// Infrastructure
	pool      *pgxpool.Pool
	redis     *redis.Client
	publisher eventPublisher
	archive   *storage.TranscriptArchive
	metrics   *metrics.Recorder

	// Domain policies (interfaces for HTTP handlers)
	supportPolicy *policy.Policy
}

// NewApp creates and initializes the application
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Initialize router with middleware
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Timeout(30 * time.Second))

	app := &App{
		cfg:    cfg,
		router: r,
		logger: logger,
	}

	// Initialize infrastructure
	if err := app.initInfrastructure(ctx); err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("initializing infrastructure: %w", err)
	}

	// Initialize domain layers
	app.initDomains()

	// Register routes
	app.registerRoutes()

	// Initialize HTTP server
	app.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// initInfrastructure connects to Postgres and the optional Redis, Kafka and S3 backends
func (a *App) initInfrastructure(ctx context.Context) error {
	pool, err := database.NewPostgresPool(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	a.pool = pool

	if a.cfg.Redis.Addr != "" {
		rdb, err := ratelimit.NewClient(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		a.redis = rdb
	} else {
		a.logger.Warn("REDIS_ADDR is empty, send rate limiting disabled")
	}

	if a.cfg.Kafka.Brokers != "" {
		a.publisher = events.NewKafkaPublisher(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
	} else {
		a.publisher = events.Nop{}
	}

	if a.cfg.S3.Enabled {
		a.archive = storage.NewTranscriptArchive(storage.S3Config{
			Endpoint:        a.cfg.S3.Endpoint,
			AccessKeyID:     a.cfg.S3.AccessKeyID,
			SecretAccessKey: a.cfg.S3.SecretAccessKey,
			Bucket:          a.cfg.S3.Bucket,
			Region:          a.cfg.S3.Region,
			PublicURL:       a.cfg.S3.PublicURL,
			Prefix:          a.cfg.S3.Prefix,
		})
	}

	a.metrics = metrics.New()
	return nil
}

// initDomains initializes domain layers (DAO, Service, Policy)
func (a *App) initDomains() {
	opts := []service.Option{
		service.WithPublisher(a.publisher),
		service.WithRecorder(a.metrics),
	}
	if a.archive != nil {
		opts = append(opts, service.WithTranscriptStore(a.archive))
	}

	supportService := service.New(
		dao.NewUserPostgres(a.pool),
		dao.NewConversationPostgres(a.pool),
		dao.NewMessagePostgres(a.pool),
		a.logger,
		opts...,
	)

	var limiter policy.RateLimiter
	if a.redis != nil {
		limiter = ratelimit.New(a.redis, a.cfg.RateLimit.SendLimit, a.cfg.RateLimit.SendWindow)
	}

	a.supportPolicy = policy.New(supportService, limiter, a.logger)
}

// registerRoutes registers all HTTP routes
func (a *App) registerRoutes() {
	// Health check
	a.router.Get("/healthz", a.healthHandler)
	a.router.Get("/readyz", a.readyHandler)
	a.router.Handle("/metrics", a.metrics.Handler())

	// Swagger UI documentation
	swaggerHandler := httpcontroller.NewSwaggerHandler("Tutor Support Messaging API", OpenAPISpec)
	swaggerHandler.RegisterRoutes(a.router)

	// API v1
	a.router.Route("/api/v1", func(r chi.Router) {
		supportHandler := httpcontroller.NewSupportHandler(a.supportPolicy, authmw.Auth([]byte(a.cfg.Auth.JWTSecret)))
		supportHandler.RegisterRoutes(r)
	})
}

// healthHandler handles health check requests
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// readyHandler reports ready once Postgres answers a ping
func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.pool.Ping(ctx); err != nil {
		a.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// Run starts the application and blocks until shutdown signal
func (a *App) Run(ctx context.Context) error {
	// Channel to receive errors from server
	errCh := make(chan error, 1)

	// Start HTTP server in goroutine
	go func() {
		a.logger.Info("starting HTTP server", "addr", a.cfg.Server.Address())
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.closeInfrastructure()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("context cancelled")
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}

	a.closeInfrastructure()

	a.logger.Info("shutdown complete")
	return nil
}

// closeInfrastructure flushes pending events and closes connections
func (a *App) closeInfrastructure() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("failed to close event publisher", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("failed to close redis client", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
