package usecase

import (
	"context"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
)

// Notifier publishes billing lifecycle events for downstream consumers.
// Publishing is best-effort: failures are logged by callers, never propagated
// into the billing transaction.
type Notifier interface {
	PaymentSucceeded(ctx context.Context, payment *model.Payment) error
	PaymentFailed(ctx context.Context, payment *model.Payment) error
	SubscriptionActivated(ctx context.Context, subscription *model.Subscription) error
	SubscriptionCanceled(ctx context.Context, subscription *model.Subscription) error
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) PaymentSucceeded(ctx context.Context, payment *model.Payment) error { return nil }
func (NopNotifier) PaymentFailed(ctx context.Context, payment *model.Payment) error    { return nil }
func (NopNotifier) SubscriptionActivated(ctx context.Context, subscription *model.Subscription) error {
	return nil
}
func (NopNotifier) SubscriptionCanceled(ctx context.Context, subscription *model.Subscription) error {
	return nil
}
