package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/vlockster/funding/internal/config"
	"github.com/vlockster/funding/internal/database"
	"github.com/vlockster/funding/internal/handler"
	"github.com/vlockster/funding/internal/notify"
	"github.com/vlockster/funding/internal/paypal"
	"github.com/vlockster/funding/internal/repository"
	"github.com/vlockster/funding/internal/service"
)

func main() {
	ctx := context.Background()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting funding service", zap.String("environment", cfg.App.Environment))

	// Initialize database connections
	db, err := database.NewDB(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing database connections", zap.Error(err))
		}
	}()

	// Repositories over the shared pool
	campaignRepo := repository.NewCampaignRepository(db.Postgres)
	backingRepo := repository.NewBackingRepository(db.Postgres)
	rewardRepo := repository.NewRewardRepository(db.Postgres)

	// Gateway client and webhook verifier share the injected PayPal config
	gateway := paypal.NewClient(cfg.PayPal, logger)
	verifier := paypal.NewWebhookVerifier(cfg.PayPal)

	notifier := notify.NewLogNotifier(logger)

	orderService := service.NewOrderService(campaignRepo, backingRepo, rewardRepo, gateway, logger)
	campaignService := service.NewCampaignService(campaignRepo, backingRepo, rewardRepo)
	settlementService := service.NewSettlementService(campaignRepo, backingRepo, rewardRepo, notifier, logger)

	h := handler.NewHandler(orderService, campaignService, settlementService, verifier, logger)
	router := handler.NewRouter(h, db)

	// Create server with configuration optimized for high concurrency
	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second, // Keep connections alive longer
		MaxHeaderBytes: 1 << 20,           // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(router, &http2.Server{
			MaxConcurrentStreams: 1000,
		}),
	}

	// Start server in goroutine
	go func() {
		logger.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.App.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.App.Debug {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zapCfg.Build()
}
