package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
)

// PaymentRepository persists payments and invoices.
type PaymentRepository interface {
	// GetByStripePaymentIntentID is the reconciler's dedup lookup: a non-nil
	// result means the event's charge has already been recorded.
	GetByStripePaymentIntentID(ctx context.Context, intentID string) (*model.Payment, error)
	Create(ctx context.Context, payment *model.Payment) error
	Update(ctx context.Context, payment *model.Payment) error

	CreateInvoice(ctx context.Context, invoice *model.Invoice) error
	// NextInvoiceNumber allocates the next sequential invoice number for the
	// organization.
	NextInvoiceNumber(ctx context.Context, organizationID uuid.UUID) (string, error)
}
