package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
	"github.com/wekeepgrowing/billing-engine/internal/domain/repository"
)

type catalogRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *gorm.DB, logger *zap.Logger) repository.CatalogRepository {
	return &catalogRepository{
		db:     db,
		logger: logger,
	}
}

// GetVariant retrieves a variant with its product preloaded
func (r *catalogRepository) GetVariant(ctx context.Context, id uuid.UUID) (*model.Variant, error) {
	var variant model.Variant

	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("id = ?", id).
		First(&variant).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get variant",
			zap.String("variant_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get variant: %w", err)
	}

	return &variant, nil
}

// GetOrganization retrieves an organization by its id
func (r *catalogRepository) GetOrganization(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	var org model.Organization

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&org).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get organization",
			zap.String("organization_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// GetCustomer retrieves a customer by its id
func (r *catalogRepository) GetCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var customer model.Customer

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&customer).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get customer",
			zap.String("customer_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return &customer, nil
}

// GetCustomerByStripeID retrieves a customer by their processor-side id
func (r *catalogRepository) GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*model.Customer, error) {
	var customer model.Customer

	err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", stripeCustomerID).
		First(&customer).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get customer by stripe id",
			zap.String("stripe_customer_id", stripeCustomerID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return &customer, nil
}

// UpdateCustomer saves the customer's mutable fields
func (r *catalogRepository) UpdateCustomer(ctx context.Context, customer *model.Customer) error {
	err := r.db.WithContext(ctx).Save(customer).Error
	if err != nil {
		r.logger.Error("Failed to update customer",
			zap.String("customer_id", customer.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return nil
}
