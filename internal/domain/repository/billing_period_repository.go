package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
)

// BillingPeriodRepository persists billing periods and their items.
type BillingPeriodRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.BillingPeriod, error)
	// GetWithItems loads the period with its items preloaded.
	GetWithItems(ctx context.Context, id uuid.UUID) (*model.BillingPeriod, error)
	// GetCurrent returns the period of the subscription whose [start, end)
	// window contains at, or nil when none does.
	GetCurrent(ctx context.Context, subscriptionID uuid.UUID, at time.Time) (*model.BillingPeriod, error)
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*model.BillingPeriod, error)
	// CreateWithItems inserts a period and its items in one transaction,
	// re-reading the owning subscription's status inside that transaction so a
	// period is never created for an already-canceled subscription.
	CreateWithItems(ctx context.Context, period *model.BillingPeriod, items []model.BillingPeriodItem) error
	// CompleteAndRollOver marks the period completed and inserts the next
	// period, its items, and its billing run atomically, with the same
	// subscription-status guard as CreateWithItems. next may be nil when the
	// subscription is not rolling over (final period of a scheduled cancellation).
	CompleteAndRollOver(ctx context.Context, periodID uuid.UUID, next *model.BillingPeriod, nextItems []model.BillingPeriodItem, nextRun *model.BillingRun) error
	// MarkPastDue flags the period past-due and escalates the owning
	// subscription in one transaction.
	MarkPastDue(ctx context.Context, periodID uuid.UUID, subscriptionStatus model.SubscriptionStatus) error
}
