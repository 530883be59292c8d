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

type purchaseRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPurchaseRepository creates a new purchase repository
func NewPurchaseRepository(db *gorm.DB, logger *zap.Logger) repository.PurchaseRepository {
	return &purchaseRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a purchase by its id
func (r *purchaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Purchase, error) {
	var purchase model.Purchase

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&purchase).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get purchase",
			zap.String("purchase_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}

	return &purchase, nil
}

// GetByStripePaymentIntentID retrieves the purchase a processor intent belongs to
func (r *purchaseRepository) GetByStripePaymentIntentID(ctx context.Context, intentID string) (*model.Purchase, error) {
	var purchase model.Purchase

	err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", intentID).
		First(&purchase).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get purchase by payment intent",
			zap.String("payment_intent_id", intentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}

	return &purchase, nil
}

// Create inserts a new purchase
func (r *purchaseRepository) Create(ctx context.Context, purchase *model.Purchase) error {
	err := r.db.WithContext(ctx).Create(purchase).Error
	if err != nil {
		r.logger.Error("Failed to create purchase",
			zap.String("customer_id", purchase.CustomerID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	return nil
}

// Update saves the purchase's mutable fields
func (r *purchaseRepository) Update(ctx context.Context, purchase *model.Purchase) error {
	err := r.db.WithContext(ctx).Save(purchase).Error
	if err != nil {
		r.logger.Error("Failed to update purchase",
			zap.String("purchase_id", purchase.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to update purchase: %w", err)
	}
	return nil
}

// CreateRedemption inserts a frozen discount redemption
func (r *purchaseRepository) CreateRedemption(ctx context.Context, redemption *model.DiscountRedemption) error {
	err := r.db.WithContext(ctx).Create(redemption).Error
	if err != nil {
		r.logger.Error("Failed to create discount redemption",
			zap.String("purchase_id", redemption.PurchaseID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create discount redemption: %w", err)
	}
	return nil
}

// GetRedemption retrieves a redemption by its id
func (r *purchaseRepository) GetRedemption(ctx context.Context, id uuid.UUID) (*model.DiscountRedemption, error) {
	var redemption model.DiscountRedemption

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&redemption).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get discount redemption",
			zap.String("redemption_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get discount redemption: %w", err)
	}

	return &redemption, nil
}

// GetRedemptionByPurchase retrieves the redemption frozen against a purchase
func (r *purchaseRepository) GetRedemptionByPurchase(ctx context.Context, purchaseID uuid.UUID) (*model.DiscountRedemption, error) {
	var redemption model.DiscountRedemption

	err := r.db.WithContext(ctx).
		Where("purchase_id = ?", purchaseID).
		Order("created_at DESC").
		First(&redemption).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get redemption by purchase",
			zap.String("purchase_id", purchaseID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get discount redemption: %w", err)
	}

	return &redemption, nil
}
