package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mps-dashboard/internal/authcall"
	"mps-dashboard/internal/backend"
	"mps-dashboard/internal/config"
	"mps-dashboard/internal/cookie"
	"mps-dashboard/internal/database"
	"mps-dashboard/internal/event"
	"mps-dashboard/internal/guard"
	"mps-dashboard/internal/handler"
	"mps-dashboard/internal/metrics"
	"mps-dashboard/internal/repository"
	"mps-dashboard/internal/router"
	"mps-dashboard/internal/service"
	"mps-dashboard/internal/session"
	"mps-dashboard/internal/token"
)

const memoryEventCapacity = 5000

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	var cleanups []func()
	fail := func(err error) (*App, error) {
		runCleanups(cleanups)
		return nil, err
	}

	codec, err := session.NewCodec(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session codec: %w", err)
	}

	store := cookie.NewStore(cookie.Options{
		Secure:     cfg.CookieSecure,
		SessionTTL: cfg.SessionTTL,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})

	bus := event.NewBus()
	m := metrics.New()
	checks := map[string]handler.HealthChecker{}

	var events service.EventStore = repository.NewMemoryAuthEventRepository(memoryEventCapacity)
	if cfg.DatabaseURL != "" {
		slog.Info("connecting to PostgreSQL")
		db, err := database.New(context.Background(), database.Options{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to connect to database: %w", err))
		}
		cleanups = append(cleanups, db.Close)

		if err := db.EnsureSchema(context.Background()); err != nil {
			return fail(fmt.Errorf("failed to ensure database schema: %w", err))
		}

		events = repository.NewAuthEventRepository(db.Pool)
		checks["database"] = db
		slog.Info("database ready")
	} else {
		slog.Warn("DATABASE_URL not set; auth events kept in memory only")
	}

	var rotations token.RotationCache
	if cfg.RedisURL != "" {
		cache, err := token.NewRedisRotationCacheFromURL(context.Background(), cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to redis: %w", err))
		}
		cleanups = append(cleanups, func() { _ = cache.Close() })

		rotations = cache
		checks["redis"] = cache
		slog.Info("refresh reuse window enabled", "window", cfg.RefreshReuseWindow)
	}

	auditService := service.NewAuditService(events, logger)
	auditService.Start(bus)
	cleanups = append([]func(){auditService.Stop}, cleanups...)

	client := backend.New(cfg.APIBaseURL, cfg.BackendTimeout)

	refresher := token.NewRefresher(cfg.APIBaseURL, token.Options{
		Client:      client.HTTPClient(),
		Timeout:     cfg.RefreshTimeout,
		AccessTTL:   cfg.AccessTokenTTL,
		RefreshTTL:  cfg.RefreshTokenTTL,
		Coalesce:    cfg.RefreshCoalesce,
		Cache:       rotations,
		ReuseWindow: cfg.RefreshReuseWindow,
		Observer:    m,
		Bus:         bus,
		Identify:    codec.UserID,
		Logger:      logger,
	})

	caller := authcall.NewCaller(refresher,
		authcall.WithObserver(m),
		authcall.WithBus(bus),
		authcall.WithIdentify(codec.UserID),
		authcall.WithLogger(logger),
	)
	guarantor := guard.New(refresher, store, codec, logger)

	authHandler := handler.NewAuthHandler(handler.AuthHandlerDeps{
		Client:    client,
		Caller:    caller,
		Refresher: refresher,
		Store:     store,
		Codec:     codec,
		Bus:       bus,
		Logger:    logger,
	})
	pageHandler, err := handler.NewPageHandler(authHandler, client, caller, codec, logger)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize pages: %w", err))
	}

	appRouter := router.New(cfg, guarantor, codec, router.Handlers{
		Auth:    authHandler,
		Audit:   handler.NewAuditHandler(auditService),
		Proxy:   handler.NewProxyHandler(client, caller, store),
		Pages:   pageHandler,
		Health:  handler.NewHealthHandler(checks),
		Metrics: m.Handler(),
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{server: server, cleanupFuncs: cleanups}, nil
}

func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)

	// Drain the audit subscriber before closing the stores it writes to.
	runCleanups(a.cleanupFuncs)

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}

// Close releases resources without serving; used by tests.
func (a *App) Close() {
	runCleanups(a.cleanupFuncs)
	a.cleanupFuncs = nil
}

func runCleanups(cleanups []func()) {
	for _, cleanup := range cleanups {
		cleanup()
	}
}
