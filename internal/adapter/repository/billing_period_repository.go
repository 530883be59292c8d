package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
	"github.com/wekeepgrowing/billing-engine/internal/domain/repository"
)

type billingPeriodRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewBillingPeriodRepository creates a new billing period repository
func NewBillingPeriodRepository(db *gorm.DB, logger *zap.Logger) repository.BillingPeriodRepository {
	return &billingPeriodRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a billing period by its id
func (r *billingPeriodRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.BillingPeriod, error) {
	var period model.BillingPeriod

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&period).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get billing period",
			zap.String("billing_period_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get billing period: %w", err)
	}

	return &period, nil
}

// GetWithItems retrieves a billing period with its items preloaded
func (r *billingPeriodRepository) GetWithItems(ctx context.Context, id uuid.UUID) (*model.BillingPeriod, error) {
	var period model.BillingPeriod

	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&period).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get billing period with items",
			zap.String("billing_period_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get billing period: %w", err)
	}

	return &period, nil
}

// GetCurrent returns the period whose [start, end) window contains at
func (r *billingPeriodRepository) GetCurrent(ctx context.Context, subscriptionID uuid.UUID, at time.Time) (*model.BillingPeriod, error) {
	var period model.BillingPeriod

	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND start_date <= ? AND end_date > ? AND status NOT IN ?",
			subscriptionID, at, at,
			[]model.BillingPeriodStatus{model.BillingPeriodStatusCompleted, model.BillingPeriodStatusCanceled}).
		Order("start_date DESC").
		First(&period).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get current billing period",
			zap.String("subscription_id", subscriptionID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get current billing period: %w", err)
	}

	return &period, nil
}

// ListBySubscription returns all periods of a subscription ordered by start date
func (r *billingPeriodRepository) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*model.BillingPeriod, error) {
	var periods []*model.BillingPeriod

	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("start_date ASC").
		Find(&periods).Error

	if err != nil {
		r.logger.Error("Failed to list billing periods",
			zap.String("subscription_id", subscriptionID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list billing periods: %w", err)
	}

	return periods, nil
}

// CreateWithItems inserts a period and its items in one transaction. The
// owning subscription's status is re-read inside the transaction so a period
// is never created under a subscription that terminated meanwhile.
func (r *billingPeriodRepository) CreateWithItems(ctx context.Context, period *model.BillingPeriod, items []model.BillingPeriodItem) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := guardSubscriptionOpen(tx, period.SubscriptionID); err != nil {
			return err
		}

		if err := tx.Create(period).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].BillingPeriodID = period.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		period.Items = items
		return nil
	})

	if err != nil {
		r.logger.Error("Failed to create billing period",
			zap.String("subscription_id", period.SubscriptionID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create billing period: %w", err)
	}
	return nil
}

// CompleteAndRollOver marks the period completed and inserts the next period,
// its items, and its billing run atomically. next may be nil when the chain
// ends here.
func (r *billingPeriodRepository) CompleteAndRollOver(ctx context.Context, periodID uuid.UUID, next *model.BillingPeriod, nextItems []model.BillingPeriodItem, nextRun *model.BillingRun) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.BillingPeriod{}).
			Where("id = ? AND status NOT IN ?", periodID,
				[]model.BillingPeriodStatus{model.BillingPeriodStatusCompleted, model.BillingPeriodStatusCanceled}).
			Updates(map[string]interface{}{
				"status":     model.BillingPeriodStatusCompleted,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("billing period %s already closed", periodID)
		}

		if next == nil {
			return nil
		}

		if err := guardSubscriptionOpen(tx, next.SubscriptionID); err != nil {
			return err
		}

		if err := tx.Create(next).Error; err != nil {
			return err
		}
		for i := range nextItems {
			nextItems[i].BillingPeriodID = next.ID
		}
		if len(nextItems) > 0 {
			if err := tx.Create(&nextItems).Error; err != nil {
				return err
			}
		}
		next.Items = nextItems

		if nextRun != nil {
			nextRun.BillingPeriodID = next.ID
			if err := tx.Create(nextRun).Error; err != nil {
				return err
			}
		}

		// Keep the subscription's cached window in step with the new period.
		return tx.Model(&model.Subscription{}).
			Where("id = ?", next.SubscriptionID).
			Updates(map[string]interface{}{
				"current_period_start": next.StartDate,
				"current_period_end":   next.EndDate,
				"updated_at":           time.Now(),
			}).Error
	})

	if err != nil {
		r.logger.Error("Failed to roll billing period over",
			zap.String("billing_period_id", periodID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to roll billing period over: %w", err)
	}
	return nil
}

// MarkPastDue flags the period past-due and escalates the owning subscription
// in one transaction
func (r *billingPeriodRepository) MarkPastDue(ctx context.Context, periodID uuid.UUID, subscriptionStatus model.SubscriptionStatus) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var period model.BillingPeriod
		if err := tx.Where("id = ?", periodID).First(&period).Error; err != nil {
			return err
		}

		result := tx.Model(&model.BillingPeriod{}).
			Where("id = ? AND status NOT IN ?", periodID,
				[]model.BillingPeriodStatus{model.BillingPeriodStatusCompleted, model.BillingPeriodStatusCanceled}).
			Updates(map[string]interface{}{
				"status":     model.BillingPeriodStatusPastDue,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("billing period %s already closed", periodID)
		}

		return tx.Model(&model.Subscription{}).
			Where("id = ?", period.SubscriptionID).
			Updates(map[string]interface{}{
				"status":     subscriptionStatus,
				"updated_at": time.Now(),
			}).Error
	})

	if err != nil {
		r.logger.Error("Failed to mark billing period past due",
			zap.String("billing_period_id", periodID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to mark billing period past due: %w", err)
	}
	return nil
}

// guardSubscriptionOpen fails when the subscription is in a terminal state.
func guardSubscriptionOpen(tx *gorm.DB, subscriptionID uuid.UUID) error {
	var sub model.Subscription
	if err := tx.Select("id", "status").Where("id = ?", subscriptionID).First(&sub).Error; err != nil {
		return fmt.Errorf("failed to check subscription: %w", err)
	}
	if sub.Status.IsTerminal() {
		return fmt.Errorf("subscription %s is %s", subscriptionID, sub.Status)
	}
	return nil
}
