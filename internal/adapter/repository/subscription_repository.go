package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/billing-engine/internal/domain/dto"
	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
	"github.com/wekeepgrowing/billing-engine/internal/domain/repository"
)

type subscriptionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB, logger *zap.Logger) repository.SubscriptionRepository {
	return &subscriptionRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a subscription by its id
func (r *subscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Subscription, error) {
	var sub model.Subscription

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&sub).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get subscription",
			zap.String("subscription_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

// GetWithPeriods retrieves a subscription together with all of its billing
// periods ordered by start date
func (r *subscriptionRepository) GetWithPeriods(ctx context.Context, id uuid.UUID) (*model.Subscription, []*model.BillingPeriod, error) {
	var sub model.Subscription

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&sub).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		r.logger.Error("Failed to get subscription",
			zap.String("subscription_id", id.String()),
			zap.Error(err))
		return nil, nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	var periods []*model.BillingPeriod
	err = r.db.WithContext(ctx).
		Where("subscription_id = ?", id).
		Order("start_date ASC").
		Find(&periods).Error

	if err != nil {
		r.logger.Error("Failed to list billing periods",
			zap.String("subscription_id", id.String()),
			zap.Error(err))
		return nil, nil, fmt.Errorf("failed to list billing periods: %w", err)
	}

	return &sub, periods, nil
}

// Create inserts a new subscription
func (r *subscriptionRepository) Create(ctx context.Context, subscription *model.Subscription) error {
	err := r.db.WithContext(ctx).Create(subscription).Error
	if err != nil {
		r.logger.Error("Failed to create subscription",
			zap.String("customer_id", subscription.CustomerID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// Update saves the subscription's mutable fields
func (r *subscriptionRepository) Update(ctx context.Context, subscription *model.Subscription) error {
	err := r.db.WithContext(ctx).Save(subscription).Error
	if err != nil {
		r.logger.Error("Failed to update subscription",
			zap.String("subscription_id", subscription.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

// UpdateStatus transitions the status only when the row still holds the
// expected current status. Zero affected rows means a concurrent writer won.
func (r *subscriptionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.SubscriptionStatus) error {
	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		r.logger.Error("Failed to update subscription status",
			zap.String("subscription_id", id.String()),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update subscription status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("subscription %s no longer in status %s", id, from)
	}
	return nil
}

// ApplyCancellation applies the whole cancellation change-set in one
// transaction: subscription status and timestamps plus every period patch.
func (r *subscriptionRepository) ApplyCancellation(ctx context.Context, change *dto.CancellationChange) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":              change.Status,
			"canceled_at":         change.CanceledAt,
			"cancel_scheduled_at": change.CancelScheduledAt,
			"updated_at":          time.Now(),
		}
		result := tx.Model(&model.Subscription{}).
			Where("id = ?", change.SubscriptionID).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("subscription %s not found", change.SubscriptionID)
		}

		for _, patch := range change.PeriodPatches {
			periodUpdates := map[string]interface{}{
				"status":     patch.Status,
				"updated_at": time.Now(),
			}
			if patch.EndDate != nil {
				periodUpdates["end_date"] = *patch.EndDate
			}
			result := tx.Model(&model.BillingPeriod{}).
				Where("id = ?", patch.PeriodID).
				Updates(periodUpdates)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("billing period %s not found", patch.PeriodID)
			}
		}
		return nil
	})

	if err != nil {
		r.logger.Error("Failed to apply cancellation",
			zap.String("subscription_id", change.SubscriptionID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to apply cancellation: %w", err)
	}
	return nil
}

// ListScheduledForCancellation returns subscriptions whose scheduled
// cancellation date falls within [from, to)
func (r *subscriptionRepository) ListScheduledForCancellation(ctx context.Context, from, to time.Time, livemode bool) ([]*model.Subscription, error) {
	var subs []*model.Subscription

	err := r.db.WithContext(ctx).
		Where("status = ? AND cancel_scheduled_at >= ? AND cancel_scheduled_at < ? AND livemode = ?",
			model.SubscriptionStatusCancellationScheduled, from, to, livemode).
		Order("cancel_scheduled_at ASC").
		Find(&subs).Error

	if err != nil {
		r.logger.Error("Failed to list scheduled cancellations",
			zap.Time("from", from),
			zap.Time("to", to),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list scheduled cancellations: %w", err)
	}

	return subs, nil
}

// ListPendingCancellations returns cancellation_scheduled subscriptions with
// no scheduled date whose marked periods have all ended before the given
// instant. These were arranged against period boundaries, so the periods
// themselves drive finalization.
func (r *subscriptionRepository) ListPendingCancellations(ctx context.Context, before time.Time, livemode bool) ([]*model.Subscription, error) {
	var subs []*model.Subscription

	err := r.db.WithContext(ctx).
		Where("status = ? AND cancel_scheduled_at IS NULL AND livemode = ?",
			model.SubscriptionStatusCancellationScheduled, livemode).
		Where("NOT EXISTS (SELECT 1 FROM billing_periods bp WHERE bp.subscription_id = subscriptions.id AND bp.status NOT IN ? AND bp.end_date > ?)",
			[]model.BillingPeriodStatus{model.BillingPeriodStatusCompleted, model.BillingPeriodStatusCanceled}, before).
		Order("created_at ASC").
		Find(&subs).Error

	if err != nil {
		r.logger.Error("Failed to list pending cancellations",
			zap.Time("before", before),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list pending cancellations: %w", err)
	}

	return subs, nil
}
