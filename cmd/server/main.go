package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/application"
	"github.com/tripnest/service-booking/internal/bootstrap"
	"github.com/tripnest/service-booking/internal/common/health"
	"github.com/tripnest/service-booking/internal/common/logger"
	"github.com/tripnest/service-booking/internal/common/middleware"
	"github.com/tripnest/service-booking/internal/config"
	"github.com/tripnest/service-booking/internal/handler"
	"github.com/tripnest/service-booking/internal/search"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, "service-booking")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting service-booking",
		zap.String("port", cfg.Port),
		zap.String("storage", cfg.Storage),
	)

	// Open storage and run migrations
	stores, err := bootstrap.OpenStores(cfg, "migrations", log)
	if err != nil {
		log.Fatal("failed to open storage", zap.Error(err))
	}
	defer func() { _ = stores.Close() }()

	checks := map[string]health.Check{}
	if check := stores.Check(); check != nil {
		checks["postgres"] = check
	}

	// Initialize inventory providers
	registry, err := bootstrap.Providers(cfg, log)
	if err != nil {
		log.Fatal("failed to configure inventory providers", zap.Error(err))
	}

	// Initialize payment authorizer
	payments, err := bootstrap.Payments(cfg)
	if err != nil {
		log.Fatal("failed to configure payments", zap.Error(err))
	}

	// Initialize quote cache
	quotes, redisClient := bootstrap.QuoteCache(cfg, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	// Initialize Kafka producer
	producer := bootstrap.Publisher(cfg, log)
	defer func() { _ = producer.Close() }()
	publisher := bootstrap.EventPublisher(producer)

	// Initialize application services
	aggregator := search.NewAggregator(registry.All(), log)
	searchService := application.NewSearchService(
		aggregator,
		quotes,
		stores.Sessions,
		cfg.Search.Deadline,
		cfg.Session.IdleTimeout,
		log,
	)
	sessionService := application.NewSessionService(
		stores.Sessions,
		quotes,
		application.NewDetailsValidator(),
		publisher,
		cfg.Session.IdleTimeout,
		log,
	)
	coordinator := application.NewCommitCoordinator(
		stores.Sessions,
		stores.Attempts,
		stores.Ledger,
		registry,
		payments,
		publisher,
		log,
	)
	ledgerService := application.NewLedgerService(stores.Ledger, log)

	// Initialize HTTP handlers
	searchHandler := handler.NewSearchHandler(searchService)
	sessionHandler := handler.NewSessionHandler(sessionService, coordinator)
	bookingHandler := handler.NewBookingHandler(ledgerService)
	adminBookingHandler := handler.NewAdminBookingHandler(ledgerService, cfg.AdminIDs)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.IdentityMiddleware())

	// Register health check routes
	healthHandler := health.NewHandler("service-booking", checks)
	healthHandler.RegisterRoutes(router)

	// Register routes
	searchHandler.RegisterRoutes(&router.RouterGroup)
	sessionHandler.RegisterRoutes(&router.RouterGroup)
	bookingHandler.RegisterRoutes(&router.RouterGroup)
	adminBookingHandler.RegisterRoutes(&router.RouterGroup)

	// Create HTTP server. The write timeout leaves room for a commit that
	// holds, authorizes and confirms against slow providers.
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3*cfg.Search.CommitTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down service-booking...")

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	log.Info("service-booking stopped")
}
