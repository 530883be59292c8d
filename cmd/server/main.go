package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/billing-engine/internal/config"
	"github.com/wekeepgrowing/billing-engine/internal/infrastructure/database"
	grpcServer "github.com/wekeepgrowing/billing-engine/internal/infrastructure/grpc"
	httpServer "github.com/wekeepgrowing/billing-engine/internal/infrastructure/http"
	"github.com/wekeepgrowing/billing-engine/internal/infrastructure/notification"
	stripeProvider "github.com/wekeepgrowing/billing-engine/internal/infrastructure/provider/stripe"
	"github.com/wekeepgrowing/billing-engine/internal/infrastructure/sessionstore"
	"github.com/wekeepgrowing/billing-engine/internal/usecase"
	"github.com/wekeepgrowing/billing-engine/pkg/logger"
	"github.com/wekeepgrowing/billing-engine/pkg/messaging"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewZapLogger(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		FilePath:    cfg.Log.FilePath,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, zapLogger); err != nil {
			zapLogger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	// Run database migrations
	if err := database.Migrate(db, zapLogger); err != nil {
		zapLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	repos := database.NewRepositories(db, zapLogger)

	// Payment processor
	processor := stripeProvider.NewStripeProvider(cfg.Service.Stripe.SecretKey, zapLogger)

	// Redis-backed session token store and event publisher
	tokens, err := sessionstore.NewRedisTokenStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to session store", zap.Error(err))
	}

	redisClient, err := messaging.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	notifier := notification.NewRedisNotifier(redisClient, zapLogger)

	// Fee calculation
	feeCalc := usecase.NewFeeCalculator()
	var taxPolicy usecase.TaxPolicy = usecase.NoTax{}
	if len(cfg.Service.Tax.RatesBasisPoints) > 0 {
		taxPolicy = usecase.FlatRateTaxPolicy{RatesBasisPoints: cfg.Service.Tax.RatesBasisPoints}
	}

	// Usecase services
	subscriptionService := usecase.NewSubscriptionService(repos.Subscription, repos.BillingPeriod, zapLogger)
	periodService := usecase.NewBillingPeriodService(repos.BillingPeriod, repos.BillingRun, repos.Purchase, zapLogger)
	checkoutService := usecase.NewCheckoutService(
		repos.Checkout, repos.Purchase, repos.Catalog,
		processor, feeCalc, taxPolicy, tokens, zapLogger,
	)
	reconcilerService := usecase.NewReconcilerService(
		repos.Payment, repos.Purchase, repos.Subscription, repos.BillingRun,
		repos.BillingPeriod, repos.Checkout, repos.Catalog,
		periodService, notifier, zapLogger,
	)

	services := &httpServer.Services{
		Checkout:     checkoutService,
		Subscription: subscriptionService,
		Period:       periodService,
		Reconciler:   reconcilerService,
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize servers
	grpcSrv := grpcServer.NewServer(cfg, zapLogger)
	httpSrv := httpServer.NewServer(cfg, zapLogger, repos, services)

	// Start servers
	go func() {
		if err := grpcSrv.Start(); err != nil {
			zapLogger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Shutting down servers...")

	// Shutdown servers
	if err := grpcSrv.Shutdown(ctx); err != nil {
		zapLogger.Error("Failed to shutdown gRPC server", zap.Error(err))
	}

	if err := httpSrv.Shutdown(ctx); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	zapLogger.Info("Servers shut down successfully")
}
