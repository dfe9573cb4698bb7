package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storefront/internal/commerce"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/httpserver"
	"storefront/internal/session"
	"storefront/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := cfg.Logger("storefront")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, ready, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open session store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	secret := cfg.SessionSecret
	if secret == "" {
		if cfg.Production() {
			logger.Fatal("SESSION_SECRET is required in production")
		}
		secret = "development-only-session-secret"
		logger.Warn("SESSION_SECRET not set, using a development secret")
	}
	issuer, err := httpserver.NewSessionIssuer(secret, cfg.SessionTTL)
	if err != nil {
		logger.Fatal("session issuer", zap.Error(err))
	}

	client := commerce.NewHTTPClient(cfg.BackendURL, cfg.BackendTimeout, logger.Named("commerce"))
	registry := session.NewRegistry(stores, client, cfg.BackendTimeout, logger.Named("session"))

	router, err := httpserver.BuildGatewayRouter(logger, httpserver.GatewayDeps{
		Sessions:    registry,
		Products:    client,
		Reviews:     client,
		Issuer:      issuer,
		CORSOrigins: cfg.CORSOrigins,
		Ready:       ready,
	})
	if err != nil {
		logger.Fatal("init router", zap.Error(err))
	}
	srv := httpserver.New(cfg.HTTPAddr, router, logger)

	go registry.RunSweeper(ctx, sweepInterval(cfg.SessionIdle), cfg.SessionIdle)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped", zap.Int("open_sessions", registry.Len()))
}

// sweepInterval checks for idle sessions a few times per idle window.
func sweepInterval(idle time.Duration) time.Duration {
	interval := idle / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	return interval
}

// openStore returns the per-session store factory for the configured driver.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Factory, []httpserver.ReadyCheck, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DBConnString, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		checks := []httpserver.ReadyCheck{{Name: "postgres", Check: db.Ping(pool)}}
		return storage.PostgresFactory(pool, logger.Named("store")), checks, pool.Close, nil
	case config.StoreRedis:
		client, err := storage.ConnectRedis(ctx, cfg.RedisURL, cfg.RedisAddr)
		if err != nil {
			return nil, nil, nil, err
		}
		checks := []httpserver.ReadyCheck{{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}}}
		return storage.RedisFactory(client, cfg.SessionTTL), checks, func() { _ = client.Close() }, nil
	default:
		logger.Warn("using in-memory session store; carts are lost on restart")
		return storage.NewMemoryBackend().Namespace, nil, func() {}, nil
	}
}
