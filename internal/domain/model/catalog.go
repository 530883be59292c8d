package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// PriceType distinguishes recurring from one-time prices
type PriceType string

const (
	PriceTypeSubscription  PriceType = "subscription"
	PriceTypeSinglePayment PriceType = "single_payment"
)

// Scan implements sql.Scanner interface
func (p *PriceType) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*p = PriceType(v)
	case []byte:
		*p = PriceType(v)
	default:
		*p = PriceTypeSinglePayment
	}
	return nil
}

// Value implements driver.Valuer interface
func (p PriceType) Value() (driver.Value, error) {
	return string(p), nil
}

// IntervalUnit is the unit of a billing interval
type IntervalUnit string

const (
	IntervalUnitDay   IntervalUnit = "day"
	IntervalUnitWeek  IntervalUnit = "week"
	IntervalUnitMonth IntervalUnit = "month"
	IntervalUnitYear  IntervalUnit = "year"
)

// AddTo returns t advanced by count intervals.
func (u IntervalUnit) AddTo(t time.Time, count int) time.Time {
	switch u {
	case IntervalUnitDay:
		return t.AddDate(0, 0, count)
	case IntervalUnitWeek:
		return t.AddDate(0, 0, 7*count)
	case IntervalUnitMonth:
		return t.AddDate(0, count, 0)
	case IntervalUnitYear:
		return t.AddDate(count, 0, 0)
	default:
		return t.AddDate(0, count, 0)
	}
}

// Product is a sellable catalog entry owned by an organization.
type Product struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name           string    `gorm:"not null;size:255" json:"name"`
	Description    string    `json:"description"`
	Active         bool      `gorm:"not null;default:true" json:"active"`
	Livemode       bool      `gorm:"not null;default:false;index" json:"livemode"`
	CreatedAt      time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt      time.Time `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Product) TableName() string {
	return "products"
}

// Variant is a priced variant of a product. Subscription variants carry the
// billing interval; single-payment variants leave the interval fields at zero.
type Variant struct {
	ID              uuid.UUID    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProductID       uuid.UUID    `gorm:"type:uuid;not null;index" json:"product_id"`
	Name            string       `gorm:"not null;size:255" json:"name"`
	PriceType       PriceType    `gorm:"type:price_type;not null" json:"price_type"`
	UnitPrice       int64        `gorm:"not null" json:"unit_price"`
	Currency        string       `gorm:"size:3;not null;default:'USD'" json:"currency"`
	IntervalUnit    IntervalUnit `gorm:"size:10" json:"interval_unit,omitempty"`
	IntervalCount   int          `gorm:"default:0" json:"interval_count,omitempty"`
	TrialPeriodDays int          `gorm:"default:0" json:"trial_period_days,omitempty"`
	Active          bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt       time.Time    `gorm:"default:now()" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"default:now()" json:"updated_at"`

	// Relations
	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// TableName specifies the table name for GORM
func (Variant) TableName() string {
	return "variants"
}

// IsRecurring reports whether purchases of this variant start a subscription.
func (v *Variant) IsRecurring() bool {
	return v.PriceType == PriceTypeSubscription
}
