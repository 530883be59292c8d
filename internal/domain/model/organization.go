package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Organization represents a merchant on the platform. FeePercentage is the
// platform's cut of each successful charge, expressed as a percentage
// (e.g. 0.650 = 0.65%).
type Organization struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name            string          `gorm:"not null;size:255" json:"name"`
	StripeAccountID *string         `gorm:"unique;size:100" json:"stripe_account_id,omitempty"`
	FeePercentage   decimal.Decimal `gorm:"type:decimal(6,3);not null;default:0" json:"fee_percentage"`
	CountryCode     string          `gorm:"size:2" json:"country_code"`
	CreatedAt       time.Time       `gorm:"default:now()" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Organization) TableName() string {
	return "organizations"
}
