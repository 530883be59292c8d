package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/billing-engine/internal/domain/dto"
	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
)

// SubscriptionRepository persists subscriptions and applies multi-row
// cancellation change-sets atomically.
type SubscriptionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Subscription, error)
	// GetWithPeriods loads the subscription together with all of its billing
	// periods ordered by start date.
	GetWithPeriods(ctx context.Context, id uuid.UUID) (*model.Subscription, []*model.BillingPeriod, error)
	Create(ctx context.Context, subscription *model.Subscription) error
	Update(ctx context.Context, subscription *model.Subscription) error
	// UpdateStatus transitions the subscription's status only when it still
	// holds the expected current status, guarding against concurrent writers.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.SubscriptionStatus) error
	// ApplyCancellation applies the whole cancellation change-set (status,
	// cancellation fields, period patches) in one transaction.
	ApplyCancellation(ctx context.Context, change *dto.CancellationChange) error
	// ListScheduledForCancellation returns subscriptions whose scheduled
	// cancellation date falls within [from, to).
	ListScheduledForCancellation(ctx context.Context, from, to time.Time, livemode bool) ([]*model.Subscription, error)
	// ListPendingCancellations returns cancellation_scheduled subscriptions
	// without a scheduled date whose marked periods have all ended before the
	// given instant.
	ListPendingCancellations(ctx context.Context, before time.Time, livemode bool) ([]*model.Subscription, error)
}
