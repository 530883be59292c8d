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

type checkoutRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCheckoutRepository creates a new checkout repository
func NewCheckoutRepository(db *gorm.DB, logger *zap.Logger) repository.CheckoutRepository {
	return &checkoutRepository{
		db:     db,
		logger: logger,
	}
}

// GetSessionByID retrieves a purchase session by its id
func (r *checkoutRepository) GetSessionByID(ctx context.Context, id uuid.UUID) (*model.PurchaseSession, error) {
	var session model.PurchaseSession

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&session).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get purchase session",
			zap.String("session_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get purchase session: %w", err)
	}

	return &session, nil
}

// GetSessionBySetupIntentID retrieves the session a setup intent belongs to
func (r *checkoutRepository) GetSessionBySetupIntentID(ctx context.Context, setupIntentID string) (*model.PurchaseSession, error) {
	return r.sessionByIntent(ctx, "stripe_setup_intent_id", setupIntentID)
}

// GetSessionByPaymentIntentID retrieves the session a payment intent belongs to
func (r *checkoutRepository) GetSessionByPaymentIntentID(ctx context.Context, paymentIntentID string) (*model.PurchaseSession, error) {
	return r.sessionByIntent(ctx, "stripe_payment_intent_id", paymentIntentID)
}

func (r *checkoutRepository) sessionByIntent(ctx context.Context, column, intentID string) (*model.PurchaseSession, error) {
	var session model.PurchaseSession

	err := r.db.WithContext(ctx).
		Where(column+" = ?", intentID).
		Order("created_at DESC").
		First(&session).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get purchase session by intent",
			zap.String("intent_id", intentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get purchase session: %w", err)
	}

	return &session, nil
}

// FindOpenSession returns the open, unexpired session matching the checkout
// criteria. The purchase link takes priority over the product when both
// resolve.
func (r *checkoutRepository) FindOpenSession(ctx context.Context, criteria dto.SessionCriteria) (*model.PurchaseSession, error) {
	query := r.db.WithContext(ctx).
		Where("organization_id = ? AND status = ? AND expires_at > ? AND livemode = ?",
			criteria.OrganizationID, model.PurchaseSessionStatusOpen, time.Now(), criteria.Livemode)

	switch {
	case criteria.PurchaseID != nil:
		query = query.Where("purchase_id = ?", *criteria.PurchaseID)
	case criteria.CustomerID != nil:
		query = query.Where("customer_id = ?", *criteria.CustomerID)
	case criteria.CustomerEmail != nil:
		query = query.Where("customer_email = ?", *criteria.CustomerEmail)
	default:
		return nil, nil
	}

	var session model.PurchaseSession
	err := query.Order("created_at DESC").First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to find open purchase session",
			zap.String("organization_id", criteria.OrganizationID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find open purchase session: %w", err)
	}

	return &session, nil
}

// CreateSession inserts a new purchase session
func (r *checkoutRepository) CreateSession(ctx context.Context, session *model.PurchaseSession) error {
	err := r.db.WithContext(ctx).Create(session).Error
	if err != nil {
		r.logger.Error("Failed to create purchase session",
			zap.String("organization_id", session.OrganizationID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create purchase session: %w", err)
	}
	return nil
}

// UpdateSession saves the session's mutable fields
func (r *checkoutRepository) UpdateSession(ctx context.Context, session *model.PurchaseSession) error {
	err := r.db.WithContext(ctx).Save(session).Error
	if err != nil {
		r.logger.Error("Failed to update purchase session",
			zap.String("session_id", session.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to update purchase session: %w", err)
	}
	return nil
}

// MarkSessionStatus transitions the session to the given status
func (r *checkoutRepository) MarkSessionStatus(ctx context.Context, id uuid.UUID, status model.PurchaseSessionStatus) error {
	result := r.db.WithContext(ctx).
		Model(&model.PurchaseSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark purchase session status",
			zap.String("session_id", id.String()),
			zap.String("status", string(status)),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark purchase session status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("purchase session %s not found", id)
	}
	return nil
}

// PurgeExpired deletes expired open and abandoned sessions together with their
// fee calculation snapshots. Succeeded sessions are never purged.
func (r *checkoutRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	var purged int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		err := tx.Model(&model.PurchaseSession{}).
			Where("expires_at <= ? AND status IN ?", before,
				[]model.PurchaseSessionStatus{model.PurchaseSessionStatusOpen, model.PurchaseSessionStatusAbandoned}).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("purchase_session_id IN ?", ids).
			Delete(&model.FeeCalculation{}).Error; err != nil {
			return err
		}

		result := tx.Where("id IN ?", ids).Delete(&model.PurchaseSession{})
		if result.Error != nil {
			return result.Error
		}
		purged = result.RowsAffected
		return nil
	})

	if err != nil {
		r.logger.Error("Failed to purge expired purchase sessions", zap.Error(err))
		return 0, fmt.Errorf("failed to purge expired purchase sessions: %w", err)
	}

	return purged, nil
}

// CreateFeeCalculation inserts a fee calculation snapshot
func (r *checkoutRepository) CreateFeeCalculation(ctx context.Context, calc *model.FeeCalculation) error {
	err := r.db.WithContext(ctx).Create(calc).Error
	if err != nil {
		r.logger.Error("Failed to create fee calculation",
			zap.String("session_id", calc.PurchaseSessionID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create fee calculation: %w", err)
	}
	return nil
}

// LatestFeeCalculation returns the most recent snapshot for the session
func (r *checkoutRepository) LatestFeeCalculation(ctx context.Context, sessionID uuid.UUID) (*model.FeeCalculation, error) {
	var calc model.FeeCalculation

	err := r.db.WithContext(ctx).
		Where("purchase_session_id = ?", sessionID).
		Order("created_at DESC").
		First(&calc).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get latest fee calculation",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get latest fee calculation: %w", err)
	}

	return &calc, nil
}

// GetDiscountByCode retrieves an active discount by its code within the
// organization's livemode partition
func (r *checkoutRepository) GetDiscountByCode(ctx context.Context, organizationID uuid.UUID, code string, livemode bool) (*model.Discount, error) {
	var discount model.Discount

	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND code = ? AND livemode = ?", organizationID, code, livemode).
		First(&discount).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get discount by code",
			zap.String("organization_id", organizationID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get discount: %w", err)
	}

	return &discount, nil
}

// GetDiscountByID retrieves a discount by its id
func (r *checkoutRepository) GetDiscountByID(ctx context.Context, id uuid.UUID) (*model.Discount, error) {
	var discount model.Discount

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&discount).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get discount",
			zap.String("discount_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get discount: %w", err)
	}

	return &discount, nil
}
