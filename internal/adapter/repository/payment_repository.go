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

type paymentRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *gorm.DB, logger *zap.Logger) repository.PaymentRepository {
	return &paymentRepository{
		db:     db,
		logger: logger,
	}
}

// GetByStripePaymentIntentID retrieves the payment recorded for a processor
// intent. A non-nil result means the charge has already been seen.
func (r *paymentRepository) GetByStripePaymentIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	var payment model.Payment

	err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", intentID).
		First(&payment).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get payment by payment intent",
			zap.String("payment_intent_id", intentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return &payment, nil
}

// Create inserts a new payment record
func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	err := r.db.WithContext(ctx).Create(payment).Error
	if err != nil {
		r.logger.Error("Failed to create payment",
			zap.String("organization_id", payment.OrganizationID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// Update saves the payment's mutable fields
func (r *paymentRepository) Update(ctx context.Context, payment *model.Payment) error {
	err := r.db.WithContext(ctx).Save(payment).Error
	if err != nil {
		r.logger.Error("Failed to update payment",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return nil
}

// CreateInvoice inserts a new invoice
func (r *paymentRepository) CreateInvoice(ctx context.Context, invoice *model.Invoice) error {
	err := r.db.WithContext(ctx).Create(invoice).Error
	if err != nil {
		r.logger.Error("Failed to create invoice",
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// NextInvoiceNumber allocates the next sequential invoice number for the
// organization. The count query and the insert that follows are not atomic;
// the unique constraint on invoice_number catches the race and the caller
// retries on the next webhook delivery.
func (r *paymentRepository) NextInvoiceNumber(ctx context.Context, organizationID uuid.UUID) (string, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Invoice{}).
		Where("organization_id = ?", organizationID).
		Count(&count).Error

	if err != nil {
		r.logger.Error("Failed to count invoices",
			zap.String("organization_id", organizationID.String()),
			zap.Error(err))
		return "", fmt.Errorf("failed to allocate invoice number: %w", err)
	}

	year := time.Now().UTC().Year()
	short := organizationID.String()[:8]
	return fmt.Sprintf("INV-%d-%s-%06d", year, short, count+1), nil
}
