package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// PurchaseStatus represents the settlement state of a purchase
type PurchaseStatus string

const (
	PurchaseStatusPending  PurchaseStatus = "pending"
	PurchaseStatusPaid     PurchaseStatus = "paid"
	PurchaseStatusRefunded PurchaseStatus = "refunded"
	PurchaseStatusFailed   PurchaseStatus = "failed"
)

// Scan implements sql.Scanner interface
func (s *PurchaseStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = PurchaseStatus(v)
	case []byte:
		*s = PurchaseStatus(v)
	default:
		*s = PurchaseStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (s PurchaseStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Purchase is a priced commitment tied to a customer and variant. The pricing
// fields are a snapshot taken at checkout and can diverge from the catalog
// price afterwards.
type Purchase struct {
	ID                    uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OrganizationID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	CustomerID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"customer_id"`
	VariantID             uuid.UUID      `gorm:"type:uuid;not null" json:"variant_id"`
	Name                  string         `gorm:"not null;size:255" json:"name"`
	Status                PurchaseStatus `gorm:"type:purchase_status;not null;default:'pending'" json:"status"`
	PriceType             PriceType      `gorm:"type:price_type;not null" json:"price_type"`
	FirstInvoiceValue     int64          `gorm:"not null" json:"first_invoice_value"`
	Currency              string         `gorm:"size:3;not null;default:'USD'" json:"currency"`
	IntervalUnit          *IntervalUnit  `gorm:"size:10" json:"interval_unit,omitempty"`
	IntervalCount         *int           `json:"interval_count,omitempty"`
	TrialPeriodDays       *int           `json:"trial_period_days,omitempty"`
	StripePaymentIntentID *string        `gorm:"size:100" json:"stripe_payment_intent_id,omitempty"`
	PurchaseDate          *time.Time     `json:"purchase_date,omitempty"`
	Livemode              bool           `gorm:"not null;default:false;index" json:"livemode"`
	CreatedAt             time.Time      `gorm:"default:now()" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"default:now()" json:"updated_at"`

	// Relations
	Customer *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Variant  *Variant  `gorm:"foreignKey:VariantID" json:"variant,omitempty"`
}

// TableName specifies the table name for GORM
func (Purchase) TableName() string {
	return "purchases"
}
