package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
)

// PurchaseRepository persists purchases and their discount redemptions.
type PurchaseRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Purchase, error)
	GetByStripePaymentIntentID(ctx context.Context, intentID string) (*model.Purchase, error)
	Create(ctx context.Context, purchase *model.Purchase) error
	Update(ctx context.Context, purchase *model.Purchase) error
	CreateRedemption(ctx context.Context, redemption *model.DiscountRedemption) error
	GetRedemption(ctx context.Context, id uuid.UUID) (*model.DiscountRedemption, error)
	GetRedemptionByPurchase(ctx context.Context, purchaseID uuid.UUID) (*model.DiscountRedemption, error)
}
