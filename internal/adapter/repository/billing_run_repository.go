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

type billingRunRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewBillingRunRepository creates a new billing run repository
func NewBillingRunRepository(db *gorm.DB, logger *zap.Logger) repository.BillingRunRepository {
	return &billingRunRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a billing run by its id
func (r *billingRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.BillingRun, error) {
	var run model.BillingRun

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&run).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get billing run",
			zap.String("billing_run_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get billing run: %w", err)
	}

	return &run, nil
}

// GetByStripePaymentIntentID retrieves the run a processor intent belongs to
func (r *billingRunRepository) GetByStripePaymentIntentID(ctx context.Context, intentID string) (*model.BillingRun, error) {
	var run model.BillingRun

	err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", intentID).
		First(&run).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get billing run by payment intent",
			zap.String("payment_intent_id", intentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get billing run: %w", err)
	}

	return &run, nil
}

// GetDue returns scheduled runs due at or before the given time
func (r *billingRunRepository) GetDue(ctx context.Context, before time.Time, livemode bool, limit int) ([]*model.BillingRun, error) {
	var runs []*model.BillingRun

	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ? AND livemode = ?",
			model.BillingRunStatusScheduled, before, livemode).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&runs).Error

	if err != nil {
		r.logger.Error("Failed to list due billing runs",
			zap.Time("before", before),
			zap.Bool("livemode", livemode),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list due billing runs: %w", err)
	}

	return runs, nil
}

// Create inserts a new billing run
func (r *billingRunRepository) Create(ctx context.Context, run *model.BillingRun) error {
	err := r.db.WithContext(ctx).Create(run).Error
	if err != nil {
		r.logger.Error("Failed to create billing run",
			zap.String("billing_period_id", run.BillingPeriodID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create billing run: %w", err)
	}
	return nil
}

// MarkSucceeded closes the run
func (r *billingRunRepository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&model.BillingRun{}).
		Where("id = ? AND status IN ?", id,
			[]model.BillingRunStatus{model.BillingRunStatusScheduled, model.BillingRunStatusSubmitted}).
		Updates(map[string]interface{}{
			"status":     model.BillingRunStatusSucceeded,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark billing run succeeded",
			zap.String("billing_run_id", id.String()),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark billing run succeeded: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("billing run %s not in an open state", id)
	}
	return nil
}

// MarkSubmitted records the processor's synchronous acceptance
func (r *billingRunRepository) MarkSubmitted(ctx context.Context, id uuid.UUID, stripePaymentIntentID string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.BillingRun{}).
		Where("id = ? AND status = ?", id, model.BillingRunStatusScheduled).
		Updates(map[string]interface{}{
			"status":                   model.BillingRunStatusSubmitted,
			"stripe_payment_intent_id": stripePaymentIntentID,
			"attempt_number":           gorm.Expr("attempt_number + 1"),
			"last_attempted_at":        now,
			"updated_at":               now,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark billing run submitted",
			zap.String("billing_run_id", id.String()),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark billing run submitted: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("billing run %s not in scheduled state", id)
	}
	return nil
}

// RecordFailure increments the attempt counter and stores the cause. Unless
// abandoned, the run returns to scheduled so the next sweep retries it.
func (r *billingRunRepository) RecordFailure(ctx context.Context, id uuid.UUID, cause string, abandon bool) error {
	status := model.BillingRunStatusScheduled
	if abandon {
		status = model.BillingRunStatusAbandoned
	}

	// A submitted run already counted its attempt at submission time; only a
	// synchronous decline from the scheduled state adds one here.
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.BillingRun{}).
		Where("id = ? AND status IN ?", id,
			[]model.BillingRunStatus{model.BillingRunStatusScheduled, model.BillingRunStatusSubmitted}).
		Updates(map[string]interface{}{
			"status": status,
			"attempt_number": gorm.Expr("attempt_number + CASE WHEN status = ? THEN 0 ELSE 1 END",
				model.BillingRunStatusSubmitted),
			"last_error":        cause,
			"last_attempted_at": now,
			"updated_at":        now,
		})

	if result.Error != nil {
		r.logger.Error("Failed to record billing run failure",
			zap.String("billing_run_id", id.String()),
			zap.Error(result.Error))
		return fmt.Errorf("failed to record billing run failure: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("billing run %s not in an open state", id)
	}
	return nil
}
