package model

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents a billable customer of an organization.
type Customer struct {
	ID                     uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OrganizationID         uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	Email                  string    `gorm:"not null;size:255;index" json:"email"`
	Name                   string    `gorm:"size:255" json:"name"`
	StripeCustomerID       *string   `gorm:"unique;size:100" json:"stripe_customer_id,omitempty"`
	DefaultPaymentMethodID *string   `gorm:"size:100" json:"default_payment_method_id,omitempty"`
	TaxJurisdiction        string    `gorm:"size:10" json:"tax_jurisdiction"`
	Livemode               bool      `gorm:"not null;default:false;index" json:"livemode"`
	CreatedAt              time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt              time.Time `gorm:"default:now()" json:"updated_at"`

	// Relations
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

// TableName specifies the table name for GORM
func (Customer) TableName() string {
	return "customers"
}
