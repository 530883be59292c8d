package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/billing-engine/internal/adapter/repository"
	domainRepo "github.com/wekeepgrowing/billing-engine/internal/domain/repository"
)

// Repositories holds all repository instances
type Repositories struct {
	Subscription  domainRepo.SubscriptionRepository
	BillingPeriod domainRepo.BillingPeriodRepository
	BillingRun    domainRepo.BillingRunRepository
	Checkout      domainRepo.CheckoutRepository
	Purchase      domainRepo.PurchaseRepository
	Payment       domainRepo.PaymentRepository
	Catalog       domainRepo.CatalogRepository
	Webhook       repository.WebhookRepository
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Subscription:  repository.NewSubscriptionRepository(db, logger),
		BillingPeriod: repository.NewBillingPeriodRepository(db, logger),
		BillingRun:    repository.NewBillingRunRepository(db, logger),
		Checkout:      repository.NewCheckoutRepository(db, logger),
		Purchase:      repository.NewPurchaseRepository(db, logger),
		Payment:       repository.NewPaymentRepository(db, logger),
		Catalog:       repository.NewCatalogRepository(db, logger),
		Webhook:       repository.NewWebhookRepository(db, logger),
	}
}
