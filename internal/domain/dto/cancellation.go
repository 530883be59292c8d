package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
)

// CancellationTiming selects when a scheduled cancellation takes effect
type CancellationTiming string

const (
	CancellationTimingEndOfCurrentBillingPeriod CancellationTiming = "end_of_current_billing_period"
	CancellationTimingFutureDate                CancellationTiming = "future_date"
	CancellationTimingImmediately               CancellationTiming = "immediately"
)

// CancellationArrangement is the caller's request for how to end a subscription.
// FutureDate is consulted only when Timing is future_date.
type CancellationArrangement struct {
	Timing     CancellationTiming
	FutureDate *time.Time
}

// PeriodPatch is one billing period's pending mutation inside a cancellation
// change-set.
type PeriodPatch struct {
	PeriodID uuid.UUID
	Status   model.BillingPeriodStatus
	// EndDate truncates the period when non-nil.
	EndDate *time.Time
}

// CancellationChange is the atomic change-set a cancellation resolves to. The
// repository applies the whole set in one transaction.
type CancellationChange struct {
	SubscriptionID    uuid.UUID
	Status            model.SubscriptionStatus
	CanceledAt        *time.Time
	CancelScheduledAt *time.Time
	PeriodPatches     []PeriodPatch
}
