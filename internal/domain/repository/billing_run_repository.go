package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
)

// BillingRunRepository persists billing runs.
type BillingRunRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.BillingRun, error)
	GetByStripePaymentIntentID(ctx context.Context, intentID string) (*model.BillingRun, error)
	// GetDue returns scheduled runs whose scheduled_for is at or before the
	// given time, partitioned by livemode.
	GetDue(ctx context.Context, before time.Time, livemode bool, limit int) ([]*model.BillingRun, error)
	Create(ctx context.Context, run *model.BillingRun) error
	// MarkSucceeded closes the run without a processor round trip (zero-total
	// cycles) or after a confirmed charge.
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	// MarkSubmitted records the processor's synchronous acceptance; the
	// authoritative outcome arrives later via webhook.
	MarkSubmitted(ctx context.Context, id uuid.UUID, stripePaymentIntentID string) error
	// RecordFailure increments the attempt counter and stores the cause. The
	// run stays scheduled unless abandon is set, in which case no further
	// attempts will be made for its period.
	RecordFailure(ctx context.Context, id uuid.UUID, cause string, abandon bool) error
}
