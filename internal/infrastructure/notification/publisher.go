package notification

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
	"github.com/wekeepgrowing/billing-engine/internal/usecase"
	"github.com/wekeepgrowing/billing-engine/pkg/messaging"
)

// Channel names consumed by notification workers.
const (
	ChannelPaymentSucceeded      = "billing.payment.succeeded"
	ChannelPaymentFailed         = "billing.payment.failed"
	ChannelSubscriptionActivated = "billing.subscription.activated"
	ChannelSubscriptionCanceled  = "billing.subscription.canceled"
)

type paymentEvent struct {
	PaymentID      string `json:"payment_id"`
	OrganizationID string `json:"organization_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	FailureCode    string `json:"failure_code,omitempty"`
	Livemode       bool   `json:"livemode"`
	OccurredAt     string `json:"occurred_at"`
}

type subscriptionEvent struct {
	SubscriptionID string `json:"subscription_id"`
	OrganizationID string `json:"organization_id"`
	CustomerID     string `json:"customer_id"`
	Status         string `json:"status"`
	Livemode       bool   `json:"livemode"`
	OccurredAt     string `json:"occurred_at"`
}

type redisNotifier struct {
	client messaging.RedisClient
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisNotifier publishes lifecycle events over redis pub/sub.
func NewRedisNotifier(client messaging.RedisClient, logger *zap.Logger) usecase.Notifier {
	return &redisNotifier{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

func (n *redisNotifier) PaymentSucceeded(ctx context.Context, payment *model.Payment) error {
	return n.publishPayment(ctx, ChannelPaymentSucceeded, payment)
}

func (n *redisNotifier) PaymentFailed(ctx context.Context, payment *model.Payment) error {
	return n.publishPayment(ctx, ChannelPaymentFailed, payment)
}

func (n *redisNotifier) SubscriptionActivated(ctx context.Context, subscription *model.Subscription) error {
	return n.publishSubscription(ctx, ChannelSubscriptionActivated, subscription)
}

func (n *redisNotifier) SubscriptionCanceled(ctx context.Context, subscription *model.Subscription) error {
	return n.publishSubscription(ctx, ChannelSubscriptionCanceled, subscription)
}

func (n *redisNotifier) publishPayment(ctx context.Context, channel string, payment *model.Payment) error {
	event := paymentEvent{
		PaymentID:      payment.ID.String(),
		OrganizationID: payment.OrganizationID.String(),
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		Status:         string(payment.Status),
		Livemode:       payment.Livemode,
		OccurredAt:     n.now().UTC().Format(time.RFC3339),
	}
	if payment.FailureCode != nil {
		event.FailureCode = *payment.FailureCode
	}

	if err := n.client.Publish(ctx, channel, event); err != nil {
		n.logger.Error("Failed to publish payment event",
			zap.String("channel", channel),
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err))
		return err
	}
	return nil
}

func (n *redisNotifier) publishSubscription(ctx context.Context, channel string, subscription *model.Subscription) error {
	event := subscriptionEvent{
		SubscriptionID: subscription.ID.String(),
		OrganizationID: subscription.OrganizationID.String(),
		CustomerID:     subscription.CustomerID.String(),
		Status:         string(subscription.Status),
		Livemode:       subscription.Livemode,
		OccurredAt:     n.now().UTC().Format(time.RFC3339),
	}

	if err := n.client.Publish(ctx, channel, event); err != nil {
		n.logger.Error("Failed to publish subscription event",
			zap.String("channel", channel),
			zap.String("subscription_id", subscription.ID.String()),
			zap.Error(err))
		return err
	}
	return nil
}
