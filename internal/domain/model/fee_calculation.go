package model

import (
	"time"

	"github.com/google/uuid"
)

// FeeCalculation is an immutable snapshot of the amounts computed for a
// purchase session at a point in time. A session accumulates snapshots as
// discount codes are applied and cleared; the latest one wins.
type FeeCalculation struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PurchaseSessionID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"purchase_session_id"`
	OrganizationID      uuid.UUID  `gorm:"type:uuid;not null" json:"organization_id"`
	DiscountID          *uuid.UUID `gorm:"type:uuid" json:"discount_id,omitempty"`
	BaseAmount          int64      `gorm:"not null" json:"base_amount"`
	DiscountAmountFixed int64      `gorm:"not null;default:0" json:"discount_amount_fixed"`
	TaxAmountFixed      int64      `gorm:"not null;default:0" json:"tax_amount_fixed"`
	FeeAmount           int64      `gorm:"not null;default:0" json:"fee_amount"`
	Currency            string     `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Livemode            bool       `gorm:"not null;default:false;index" json:"livemode"`
	CreatedAt           time.Time  `gorm:"default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (FeeCalculation) TableName() string {
	return "fee_calculations"
}

// TotalDue is the amount the customer owes, floored at zero.
func (f *FeeCalculation) TotalDue() int64 {
	total := f.BaseAmount - f.DiscountAmountFixed + f.TaxAmountFixed
	if total < 0 {
		return 0
	}
	return total
}
