package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// DefaultPurchaseSessionTTL is how long a checkout session stays usable.
const DefaultPurchaseSessionTTL = 24 * time.Hour

// PurchaseSessionStatus represents the state of a checkout session
type PurchaseSessionStatus string

const (
	PurchaseSessionStatusOpen      PurchaseSessionStatus = "open"
	PurchaseSessionStatusSucceeded PurchaseSessionStatus = "succeeded"
	PurchaseSessionStatusExpired   PurchaseSessionStatus = "expired"
	PurchaseSessionStatusAbandoned PurchaseSessionStatus = "abandoned"
)

// Scan implements sql.Scanner interface
func (s *PurchaseSessionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = PurchaseSessionStatus(v)
	case []byte:
		*s = PurchaseSessionStatus(v)
	default:
		*s = PurchaseSessionStatusOpen
	}
	return nil
}

// Value implements driver.Valuer interface
func (s PurchaseSessionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// PurchaseSession correlates a checkout attempt with a processor intent.
// Exactly one of StripePaymentIntentID / StripeSetupIntentID is set, chosen by
// whether the variant is recurring.
type PurchaseSession struct {
	ID                    uuid.UUID             `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OrganizationID        uuid.UUID             `gorm:"type:uuid;not null;index" json:"organization_id"`
	CustomerID            *uuid.UUID            `gorm:"type:uuid;index" json:"customer_id,omitempty"`
	VariantID             uuid.UUID             `gorm:"type:uuid;not null" json:"variant_id"`
	PurchaseID            *uuid.UUID            `gorm:"type:uuid;index" json:"purchase_id,omitempty"`
	Status                PurchaseSessionStatus `gorm:"type:purchase_session_status;not null;default:'open'" json:"status"`
	Quantity              int                   `gorm:"not null;default:1" json:"quantity"`
	CustomerEmail         *string               `gorm:"size:255" json:"customer_email,omitempty"`
	StripePaymentIntentID *string               `gorm:"size:100" json:"stripe_payment_intent_id,omitempty"`
	StripeSetupIntentID   *string               `gorm:"size:100" json:"stripe_setup_intent_id,omitempty"`
	DiscountID            *uuid.UUID            `gorm:"type:uuid" json:"discount_id,omitempty"`
	ExpiresAt             time.Time             `gorm:"not null;index" json:"expires_at"`
	Livemode              bool                  `gorm:"not null;default:false;index" json:"livemode"`
	CreatedAt             time.Time             `gorm:"default:now()" json:"created_at"`
	UpdatedAt             time.Time             `gorm:"default:now()" json:"updated_at"`

	// Relations
	Variant *Variant `gorm:"foreignKey:VariantID" json:"variant,omitempty"`
}

// TableName specifies the table name for GORM
func (PurchaseSession) TableName() string {
	return "purchase_sessions"
}

// IsExpired reports whether the session's TTL has lapsed. Expired sessions are
// treated as not-found by lookups even before the purge sweep deletes them.
func (s *PurchaseSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionKey derives the server-side correlation key for this session. The
// purchase id takes priority over the product id when both resolve.
func (s *PurchaseSession) SessionKey(productID uuid.UUID) string {
	if s.PurchaseID != nil {
		return "purchase:" + s.PurchaseID.String()
	}
	return "product:" + productID.String()
}
