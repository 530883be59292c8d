package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// BillingPeriodStatus represents the lifecycle state of a billing period
type BillingPeriodStatus string

const (
	BillingPeriodStatusUpcoming          BillingPeriodStatus = "upcoming"
	BillingPeriodStatusActive            BillingPeriodStatus = "active"
	BillingPeriodStatusCompleted         BillingPeriodStatus = "completed"
	BillingPeriodStatusCanceled          BillingPeriodStatus = "canceled"
	BillingPeriodStatusScheduledToCancel BillingPeriodStatus = "scheduled_to_cancel"
	BillingPeriodStatusPastDue           BillingPeriodStatus = "past_due"
)

// Scan implements sql.Scanner interface
func (s *BillingPeriodStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = BillingPeriodStatus(v)
	case []byte:
		*s = BillingPeriodStatus(v)
	default:
		*s = BillingPeriodStatusUpcoming
	}
	return nil
}

// Value implements driver.Valuer interface
func (s BillingPeriodStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// IsClosed reports whether the period can no longer change.
func (s BillingPeriodStatus) IsClosed() bool {
	return s == BillingPeriodStatusCompleted || s == BillingPeriodStatusCanceled
}

// BillingPeriod is the window a subscription is being charged for. Periods of
// one subscription are contiguous and non-overlapping, with at most one active.
type BillingPeriod struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SubscriptionID uuid.UUID           `gorm:"type:uuid;not null;index" json:"subscription_id"`
	StartDate      time.Time           `gorm:"not null" json:"start_date"`
	EndDate        time.Time           `gorm:"not null" json:"end_date"`
	Status         BillingPeriodStatus `gorm:"type:billing_period_status;not null;default:'upcoming'" json:"status"`
	TrialPeriod    bool                `gorm:"not null;default:false" json:"trial_period"`
	Livemode       bool                `gorm:"not null;default:false;index" json:"livemode"`
	CreatedAt      time.Time           `gorm:"default:now()" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"default:now()" json:"updated_at"`

	// Relations
	Subscription *Subscription       `gorm:"foreignKey:SubscriptionID" json:"subscription,omitempty"`
	Items        []BillingPeriodItem `gorm:"foreignKey:BillingPeriodID" json:"items,omitempty"`
}

// TableName specifies the table name for GORM
func (BillingPeriod) TableName() string {
	return "billing_periods"
}

// Contains reports whether t falls within [StartDate, EndDate).
func (p *BillingPeriod) Contains(t time.Time) bool {
	return !t.Before(p.StartDate) && t.Before(p.EndDate)
}

// BillingPeriodItem is a priced line of a billing period. Items are immutable
// once the owning period is closed.
type BillingPeriodItem struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	BillingPeriodID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"billing_period_id"`
	Name                 string     `gorm:"not null;size:255" json:"name"`
	Description          string     `json:"description"`
	Quantity             int        `gorm:"not null;default:1" json:"quantity"`
	UnitPrice            int64      `gorm:"not null" json:"unit_price"`
	DiscountRedemptionID *uuid.UUID `gorm:"type:uuid" json:"discount_redemption_id,omitempty"`
	CreatedAt            time.Time  `gorm:"default:now()" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (BillingPeriodItem) TableName() string {
	return "billing_period_items"
}

// Subtotal returns the item's quantity-extended price.
func (i *BillingPeriodItem) Subtotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}
