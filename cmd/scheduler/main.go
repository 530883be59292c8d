package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/billing-engine/internal/config"
	"github.com/wekeepgrowing/billing-engine/internal/infrastructure/database"
	stripeProvider "github.com/wekeepgrowing/billing-engine/internal/infrastructure/provider/stripe"
	"github.com/wekeepgrowing/billing-engine/internal/infrastructure/scheduler"
	"github.com/wekeepgrowing/billing-engine/internal/usecase"
	"github.com/wekeepgrowing/billing-engine/pkg/logger"
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

	// Initialize repositories
	repos := database.NewRepositories(db, zapLogger)

	// Payment processor
	processor := stripeProvider.NewStripeProvider(cfg.Service.Stripe.SecretKey, zapLogger)

	// Fee calculation
	feeCalc := usecase.NewFeeCalculator()
	var taxPolicy usecase.TaxPolicy = usecase.NoTax{}
	if len(cfg.Service.Tax.RatesBasisPoints) > 0 {
		taxPolicy = usecase.FlatRateTaxPolicy{RatesBasisPoints: cfg.Service.Tax.RatesBasisPoints}
	}

	// Usecase services
	subscriptionService := usecase.NewSubscriptionService(repos.Subscription, repos.BillingPeriod, zapLogger)
	periodService := usecase.NewBillingPeriodService(repos.BillingPeriod, repos.BillingRun, repos.Purchase, zapLogger)
	runService := usecase.NewBillingRunService(
		repos.BillingRun, repos.BillingPeriod, repos.Subscription,
		repos.Payment, repos.Purchase, repos.Catalog,
		processor, feeCalc, taxPolicy, periodService, zapLogger,
	)
	sweepService := usecase.NewSweepService(
		repos.BillingRun, repos.Subscription, repos.Checkout,
		runService, subscriptionService, zapLogger,
	)

	// Start the cron scheduler
	sched := scheduler.NewScheduler(sweepService, &cfg.Scheduler, zapLogger)
	if err := sched.Start(); err != nil {
		zapLogger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Shutting down scheduler...")
	sched.Stop()
	zapLogger.Info("Scheduler shut down successfully")
}
