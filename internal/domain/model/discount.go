package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DiscountAmountType discriminates fixed from percentage discounts
type DiscountAmountType string

const (
	DiscountAmountTypeFixed   DiscountAmountType = "fixed"
	DiscountAmountTypePercent DiscountAmountType = "percent"
)

// Scan implements sql.Scanner interface
func (d *DiscountAmountType) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*d = DiscountAmountType(v)
	case []byte:
		*d = DiscountAmountType(v)
	default:
		*d = DiscountAmountTypeFixed
	}
	return nil
}

// Value implements driver.Valuer interface
func (d DiscountAmountType) Value() (driver.Value, error) {
	return string(d), nil
}

// DiscountDuration discriminates how long a redeemed discount keeps applying
type DiscountDuration string

const (
	DiscountDurationOnce             DiscountDuration = "once"
	DiscountDurationForever          DiscountDuration = "forever"
	DiscountDurationNumberOfPayments DiscountDuration = "number_of_payments"
)

// Scan implements sql.Scanner interface
func (d *DiscountDuration) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*d = DiscountDuration(v)
	case []byte:
		*d = DiscountDuration(v)
	default:
		*d = DiscountDurationOnce
	}
	return nil
}

// Value implements driver.Valuer interface
func (d DiscountDuration) Value() (driver.Value, error) {
	return string(d), nil
}

// RedemptionTerms is the duration variant of a discount. NumberOfPayments is
// populated exactly when Duration is number_of_payments; construct values
// through the Terms* functions so the pairing cannot drift.
type RedemptionTerms struct {
	Duration         DiscountDuration
	NumberOfPayments *int
}

// TermsOnce applies the discount to the first invoice only.
func TermsOnce() RedemptionTerms {
	return RedemptionTerms{Duration: DiscountDurationOnce}
}

// TermsForever applies the discount to every invoice.
func TermsForever() RedemptionTerms {
	return RedemptionTerms{Duration: DiscountDurationForever}
}

// TermsNumberOfPayments applies the discount to the first n invoices.
func TermsNumberOfPayments(n int) RedemptionTerms {
	return RedemptionTerms{Duration: DiscountDurationNumberOfPayments, NumberOfPayments: &n}
}

// Validate checks the duration/payment-count pairing.
func (t RedemptionTerms) Validate() error {
	if t.Duration == DiscountDurationNumberOfPayments {
		if t.NumberOfPayments == nil || *t.NumberOfPayments < 1 {
			return fmt.Errorf("number_of_payments duration requires a positive payment count")
		}
		return nil
	}
	if t.NumberOfPayments != nil {
		return fmt.Errorf("payment count is only valid for number_of_payments duration, got %q", t.Duration)
	}
	return nil
}

// Discount is a coupon owned by an organization. For fixed discounts Amount is
// in minor currency units; for percent discounts it is an integer percentage.
type Discount struct {
	ID               uuid.UUID          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OrganizationID   uuid.UUID          `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name             string             `gorm:"not null;size:255" json:"name"`
	Code             string             `gorm:"not null;size:50;index" json:"code"`
	AmountType       DiscountAmountType `gorm:"type:discount_amount_type;not null" json:"amount_type"`
	Amount           int64              `gorm:"not null" json:"amount"`
	Duration         DiscountDuration   `gorm:"type:discount_duration;not null;default:'once'" json:"duration"`
	NumberOfPayments *int               `json:"number_of_payments,omitempty"`
	Active           bool               `gorm:"not null;default:true" json:"active"`
	Livemode         bool               `gorm:"not null;default:false;index" json:"livemode"`
	CreatedAt        time.Time          `gorm:"default:now()" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Discount) TableName() string {
	return "discounts"
}

// Terms returns the discount's duration variant.
func (d *Discount) Terms() RedemptionTerms {
	return RedemptionTerms{Duration: d.Duration, NumberOfPayments: d.NumberOfPayments}
}

// DiscountRedemption links a discount to a purchase with a frozen copy of the
// discount's terms, so later edits to the discount never touch settled purchases.
type DiscountRedemption struct {
	ID                 uuid.UUID          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	DiscountID         uuid.UUID          `gorm:"type:uuid;not null;index" json:"discount_id"`
	PurchaseID         uuid.UUID          `gorm:"type:uuid;not null;index" json:"purchase_id"`
	DiscountName       string             `gorm:"not null;size:255" json:"discount_name"`
	DiscountCode       string             `gorm:"not null;size:50" json:"discount_code"`
	DiscountAmount     int64              `gorm:"not null" json:"discount_amount"`
	DiscountAmountType DiscountAmountType `gorm:"type:discount_amount_type;not null" json:"discount_amount_type"`
	Duration           DiscountDuration   `gorm:"type:discount_duration;not null" json:"duration"`
	NumberOfPayments   *int               `json:"number_of_payments,omitempty"`
	Livemode           bool               `gorm:"not null;default:false;index" json:"livemode"`
	CreatedAt          time.Time          `gorm:"default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (DiscountRedemption) TableName() string {
	return "discount_redemptions"
}

// NewDiscountRedemption freezes a discount's terms against a purchase.
func NewDiscountRedemption(discount *Discount, purchaseID uuid.UUID) (*DiscountRedemption, error) {
	terms := discount.Terms()
	if err := terms.Validate(); err != nil {
		return nil, fmt.Errorf("invalid discount terms: %w", err)
	}

	return &DiscountRedemption{
		DiscountID:         discount.ID,
		PurchaseID:         purchaseID,
		DiscountName:       discount.Name,
		DiscountCode:       discount.Code,
		DiscountAmount:     discount.Amount,
		DiscountAmountType: discount.AmountType,
		Duration:           terms.Duration,
		NumberOfPayments:   terms.NumberOfPayments,
		Livemode:           discount.Livemode,
	}, nil
}
