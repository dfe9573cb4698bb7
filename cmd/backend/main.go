package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/httpserver"
	"storefront/internal/migrate"
	cartrepo "storefront/internal/repository/cart"
	customerrepo "storefront/internal/repository/customer"
	productrepo "storefront/internal/repository/product"
	reviewrepo "storefront/internal/repository/review"
	tokenrepo "storefront/internal/repository/token"
	cartsvc "storefront/internal/service/cart"
	customersvc "storefront/internal/service/customer"
	productsvc "storefront/internal/service/product"
	reviewsvc "storefront/internal/service/review"
)

func main() {
	migrateFirst := flag.Bool("migrate", false, "apply schema migrations before serving")
	purgeEvery := flag.Duration("purge-interval", time.Hour, "how often expired access tokens are deleted")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := cfg.Logger("backend")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := db.Connect(ctx, cfg.DBConnString, logger)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer dbpool.Close()

	if *migrateFirst {
		if err := migrate.Apply(ctx, dbpool, logger); err != nil {
			logger.Fatal("apply migrations", zap.Error(err))
		}
	}

	productRepo := productrepo.NewPostgres(dbpool, logger.Named("products"))
	customerService := customersvc.New(
		customerrepo.NewPostgres(dbpool, logger.Named("customers")),
		tokenrepo.NewPostgres(dbpool),
		customersvc.Options{AccessTTL: cfg.AccessTokenTTL, SignupRequiresLogin: cfg.SignupRequiresLogin},
		logger.Named("customers"),
	)
	router := httpserver.BuildBackendRouter(logger, httpserver.BackendDeps{
		CustomerSvc: customerService,
		ProductSvc:  productsvc.New(productRepo),
		CartSvc:     cartsvc.New(cartrepo.NewPostgres(dbpool), productRepo, cfg.CheckoutBaseURL, logger.Named("carts")),
		ReviewSvc:   reviewsvc.New(reviewrepo.NewPostgres(dbpool, logger.Named("reviews")), productRepo, logger.Named("reviews")),
		Ready:       []httpserver.ReadyCheck{{Name: "postgres", Check: db.Ping(dbpool)}},
	})
	srv := httpserver.New(cfg.BackendHTTPAddr, router, logger)

	go purgeTokens(ctx, customerService, *purgeEvery, logger)

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
	logger.Info("server stopped")
}

func purgeTokens(ctx context.Context, svc *customersvc.Service, every time.Duration, logger *zap.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeExpiredTokens(ctx)
			if err != nil {
				logger.Warn("purge expired tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("purged expired tokens", zap.Int64("count", n))
			}
		}
	}
}
