package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
)

// CatalogRepository resolves catalog and identity records the billing core
// reads but does not own.
type CatalogRepository interface {
	// GetVariant loads a variant with its product preloaded.
	GetVariant(ctx context.Context, id uuid.UUID) (*model.Variant, error)
	GetOrganization(ctx context.Context, id uuid.UUID) (*model.Organization, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*model.Customer, error)
	UpdateCustomer(ctx context.Context, customer *model.Customer) error
}
