package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusIncomplete            SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired     SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusTrialing              SubscriptionStatus = "trialing"
	SubscriptionStatusActive                SubscriptionStatus = "active"
	SubscriptionStatusPastDue               SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid                SubscriptionStatus = "unpaid"
	SubscriptionStatusCancellationScheduled SubscriptionStatus = "cancellation_scheduled"
	SubscriptionStatusCanceled              SubscriptionStatus = "canceled"
)

// Scan implements sql.Scanner interface
func (s *SubscriptionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = SubscriptionStatus(v)
	case []byte:
		*s = SubscriptionStatus(v)
	default:
		*s = SubscriptionStatusIncomplete
	}
	return nil
}

// Value implements driver.Valuer interface
func (s SubscriptionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// IsTerminal reports whether no further transitions are possible.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusIncompleteExpired
}

// Subscription represents a customer's recurring commitment to a variant.
// CanceledAt and CancelScheduledAt are mutually exclusive termination drivers:
// CanceledAt marks a completed (immediate) cancellation, CancelScheduledAt a
// pending end-of-period one.
type Subscription struct {
	ID                     uuid.UUID          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OrganizationID         uuid.UUID          `gorm:"type:uuid;not null;index" json:"organization_id"`
	CustomerID             uuid.UUID          `gorm:"type:uuid;not null;index" json:"customer_id"`
	VariantID              uuid.UUID          `gorm:"type:uuid;not null" json:"variant_id"`
	Status                 SubscriptionStatus `gorm:"type:subscription_status;not null;default:'incomplete'" json:"status"`
	CurrentPeriodStart     time.Time          `json:"current_period_start"`
	CurrentPeriodEnd       time.Time          `json:"current_period_end"`
	IntervalUnit           IntervalUnit       `gorm:"size:10;not null" json:"interval_unit"`
	IntervalCount          int                `gorm:"not null;default:1" json:"interval_count"`
	TrialEnd               *time.Time         `json:"trial_end,omitempty"`
	CanceledAt             *time.Time         `json:"canceled_at,omitempty"`
	CancelScheduledAt      *time.Time         `json:"cancel_scheduled_at,omitempty"`
	StripeSubscriptionData JSONB              `gorm:"type:jsonb" json:"stripe_subscription_data,omitempty"`
	Livemode               bool               `gorm:"not null;default:false;index" json:"livemode"`
	CreatedAt              time.Time          `gorm:"default:now()" json:"created_at"`
	UpdatedAt              time.Time          `gorm:"default:now()" json:"updated_at"`

	// Relations
	Customer *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Variant  *Variant  `gorm:"foreignKey:VariantID" json:"variant,omitempty"`
}

// TableName specifies the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}

// legalTransitions enumerates the allowed status transitions. Anything absent
// is an invariant violation, not a recoverable request error.
var legalTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusIncomplete: {
		SubscriptionStatusActive,
		SubscriptionStatusTrialing,
		SubscriptionStatusIncompleteExpired,
		SubscriptionStatusCanceled,
	},
	SubscriptionStatusTrialing: {
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusCancellationScheduled,
		SubscriptionStatusCanceled,
	},
	SubscriptionStatusActive: {
		SubscriptionStatusPastDue,
		SubscriptionStatusCancellationScheduled,
		SubscriptionStatusCanceled,
	},
	SubscriptionStatusPastDue: {
		SubscriptionStatusActive,
		SubscriptionStatusUnpaid,
		SubscriptionStatusCanceled,
	},
	SubscriptionStatusUnpaid: {
		SubscriptionStatusActive,
		SubscriptionStatusCanceled,
	},
	SubscriptionStatusCancellationScheduled: {
		SubscriptionStatusCanceled,
		SubscriptionStatusActive,
	},
}

// CanTransitionTo reports whether moving from s to target is a legal transition.
func (s SubscriptionStatus) CanTransitionTo(target SubscriptionStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}
