package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the state of a processor charge attempt
type PaymentStatus string

const (
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCanceled   PaymentStatus = "canceled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Scan implements sql.Scanner interface
func (s *PaymentStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = PaymentStatus(v)
	case []byte:
		*s = PaymentStatus(v)
	default:
		*s = PaymentStatusProcessing
	}
	return nil
}

// Value implements driver.Valuer interface
func (s PaymentStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Payment is the durable record of one processor charge attempt. The stripe
// payment intent id is unique and serves as the reconciler's dedup key; the
// purchase/invoice/billing-run links are optional because a payment can land
// before those records are finalized.
type Payment struct {
	ID                    uuid.UUID     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OrganizationID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"organization_id"`
	CustomerID            *uuid.UUID    `gorm:"type:uuid;index" json:"customer_id,omitempty"`
	PurchaseID            *uuid.UUID    `gorm:"type:uuid;index" json:"purchase_id,omitempty"`
	InvoiceID             *uuid.UUID    `gorm:"type:uuid;index" json:"invoice_id,omitempty"`
	BillingRunID          *uuid.UUID    `gorm:"type:uuid;index" json:"billing_run_id,omitempty"`
	Amount                int64         `gorm:"not null" json:"amount"`
	Currency              string        `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Status                PaymentStatus `gorm:"type:payment_status;not null;default:'processing'" json:"status"`
	StripePaymentIntentID *string       `gorm:"unique;size:100" json:"stripe_payment_intent_id,omitempty"`
	StripeChargeID        *string       `gorm:"size:100" json:"stripe_charge_id,omitempty"`
	FailureCode           *string       `gorm:"size:100" json:"failure_code,omitempty"`
	FailureMessage        *string       `json:"failure_message,omitempty"`
	StripePaymentData     JSONB         `gorm:"type:jsonb" json:"stripe_payment_data,omitempty"`
	PaidAt                *time.Time    `json:"paid_at,omitempty"`
	Livemode              bool          `gorm:"not null;default:false;index" json:"livemode"`
	CreatedAt             time.Time     `gorm:"default:now()" json:"created_at"`
	UpdatedAt             time.Time     `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Payment) TableName() string {
	return "payments"
}

// InvoiceStatus represents the state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "draft"
	InvoiceStatusOpen  InvoiceStatus = "open"
	InvoiceStatusPaid  InvoiceStatus = "paid"
	InvoiceStatusVoid  InvoiceStatus = "void"
)

// Scan implements sql.Scanner interface
func (s *InvoiceStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = InvoiceStatus(v)
	case []byte:
		*s = InvoiceStatus(v)
	default:
		*s = InvoiceStatusDraft
	}
	return nil
}

// Value implements driver.Valuer interface
func (s InvoiceStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Invoice is the customer-facing record of amounts owed for a purchase or
// billing period.
type Invoice struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	InvoiceNumber   string        `gorm:"unique;not null;size:50" json:"invoice_number"`
	OrganizationID  uuid.UUID     `gorm:"type:uuid;not null;index" json:"organization_id"`
	CustomerID      uuid.UUID     `gorm:"type:uuid;not null;index" json:"customer_id"`
	PurchaseID      *uuid.UUID    `gorm:"type:uuid;index" json:"purchase_id,omitempty"`
	BillingPeriodID *uuid.UUID    `gorm:"type:uuid;index" json:"billing_period_id,omitempty"`
	Status          InvoiceStatus `gorm:"type:invoice_status;not null;default:'draft'" json:"status"`
	Subtotal        int64         `gorm:"not null" json:"subtotal"`
	TaxAmount       int64         `gorm:"not null;default:0" json:"tax_amount"`
	Total           int64         `gorm:"not null" json:"total"`
	Currency        string        `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Livemode        bool          `gorm:"not null;default:false;index" json:"livemode"`
	CreatedAt       time.Time     `gorm:"default:now()" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Invoice) TableName() string {
	return "invoices"
}
