package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	logger.Info("Creating PostgreSQL extensions...")
	if err := createExtensions(db); err != nil {
		logger.Error("Failed to create extensions", zap.Error(err))
		return err
	}

	logger.Info("Creating custom PostgreSQL types...")
	if err := createCustomTypes(db); err != nil {
		logger.Error("Failed to create custom types", zap.Error(err))
		return err
	}

	logger.Info("Running GORM auto-migrations...")
	err := db.AutoMigrate(
		&model.Organization{},
		&model.Customer{},
		&model.Product{},
		&model.Variant{},
		&model.Discount{},
		&model.DiscountRedemption{},
		&model.Purchase{},
		&model.PurchaseSession{},
		&model.FeeCalculation{},
		&model.Subscription{},
		&model.BillingPeriod{},
		&model.BillingPeriodItem{},
		&model.BillingRun{},
		&model.Payment{},
		&model.Invoice{},
		&model.StripeWebhookEvent{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	logger.Info("Creating custom indexes...")
	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createExtensions creates required PostgreSQL extensions
func createExtensions(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error; err != nil {
		return err
	}
	return nil
}

// createCustomTypes creates the enum types the models map onto
func createCustomTypes(db *gorm.DB) error {
	types := []struct {
		name   string
		values string
	}{
		{"price_type", `'subscription', 'single_payment'`},
		{"subscription_status", `'incomplete', 'incomplete_expired', 'trialing', 'active', 'past_due', 'unpaid', 'cancellation_scheduled', 'canceled'`},
		{"billing_period_status", `'upcoming', 'active', 'completed', 'canceled', 'scheduled_to_cancel', 'past_due'`},
		{"billing_run_status", `'scheduled', 'submitted', 'succeeded', 'failed', 'abandoned'`},
		{"purchase_status", `'pending', 'paid', 'refunded', 'failed'`},
		{"purchase_session_status", `'open', 'succeeded', 'expired', 'abandoned'`},
		{"payment_status", `'processing', 'succeeded', 'failed', 'canceled', 'refunded'`},
		{"invoice_status", `'draft', 'open', 'paid', 'void'`},
		{"discount_amount_type", `'fixed', 'percent'`},
		{"discount_duration", `'once', 'forever', 'number_of_payments'`},
		{"webhook_status", `'pending', 'processing', 'completed', 'failed'`},
	}

	for _, t := range types {
		sql := `DO $$ BEGIN
			CREATE TYPE ` + t.name + ` AS ENUM (` + t.values + `);
		EXCEPTION WHEN duplicate_object THEN null;
		END $$`
		if err := db.Exec(sql).Error; err != nil {
			return err
		}
	}
	return nil
}

// createCustomIndexes creates partial indexes GORM does not handle
func createCustomIndexes(db *gorm.DB) error {
	// A subscription has at most one active period at any time.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS unique_active_period_per_subscription ON billing_periods (subscription_id) WHERE status = 'active'`).Error; err != nil {
		return err
	}

	// One scheduled run per period keeps retries serialized.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS unique_scheduled_run_per_period ON billing_runs (billing_period_id) WHERE status IN ('scheduled', 'submitted')`).Error; err != nil {
		return err
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_webhook_events_unprocessed ON stripe_webhook_events (created_at) WHERE status IN ('pending', 'failed')`).Error; err != nil {
		return err
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_subscriptions_cancel_scheduled ON subscriptions (cancel_scheduled_at) WHERE status = 'cancellation_scheduled'`).Error; err != nil {
		return err
	}

	return nil
}
