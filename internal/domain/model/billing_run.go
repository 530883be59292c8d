package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// BillingRunStatus represents the state of one scheduled charge attempt
type BillingRunStatus string

const (
	BillingRunStatusScheduled BillingRunStatus = "scheduled"
	// BillingRunStatusSubmitted means the charge was accepted by the processor
	// and the authoritative outcome will arrive via webhook.
	BillingRunStatusSubmitted BillingRunStatus = "submitted"
	BillingRunStatusSucceeded BillingRunStatus = "succeeded"
	BillingRunStatusFailed    BillingRunStatus = "failed"
	BillingRunStatusAbandoned BillingRunStatus = "abandoned"
)

// Scan implements sql.Scanner interface
func (s *BillingRunStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = BillingRunStatus(v)
	case []byte:
		*s = BillingRunStatus(v)
	default:
		*s = BillingRunStatusScheduled
	}
	return nil
}

// Value implements driver.Valuer interface
func (s BillingRunStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// BillingRun is one scheduled attempt to charge for a billing period.
type BillingRun struct {
	ID                    uuid.UUID        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	BillingPeriodID       uuid.UUID        `gorm:"type:uuid;not null;index" json:"billing_period_id"`
	ScheduledFor          time.Time        `gorm:"not null;index" json:"scheduled_for"`
	Status                BillingRunStatus `gorm:"type:billing_run_status;not null;default:'scheduled'" json:"status"`
	AttemptNumber         int              `gorm:"not null;default:0" json:"attempt_number"`
	LastError             *string          `json:"last_error,omitempty"`
	StripePaymentIntentID *string          `gorm:"size:100" json:"stripe_payment_intent_id,omitempty"`
	LastAttemptedAt       *time.Time       `json:"last_attempted_at,omitempty"`
	Livemode              bool             `gorm:"not null;default:false;index" json:"livemode"`
	CreatedAt             time.Time        `gorm:"default:now()" json:"created_at"`
	UpdatedAt             time.Time        `gorm:"default:now()" json:"updated_at"`

	// Relations
	BillingPeriod *BillingPeriod `gorm:"foreignKey:BillingPeriodID" json:"billing_period,omitempty"`
}

// TableName specifies the table name for GORM
func (BillingRun) TableName() string {
	return "billing_runs"
}
