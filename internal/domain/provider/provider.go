package provider

import (
	"context"
	"time"
)

// PaymentProcessor defines the interface to the external payment processor.
type PaymentProcessor interface {
	// CreatePaymentIntent creates a charge intent. When IdempotencyKey is set
	// the processor guarantees at most one intent per key.
	CreatePaymentIntent(ctx context.Context, req *CreatePaymentIntentRequest) (*PaymentIntent, error)

	// UpdatePaymentIntent patches a pending intent's amount or metadata.
	UpdatePaymentIntent(ctx context.Context, intentID string, req *UpdatePaymentIntentRequest) (*PaymentIntent, error)

	// GetPaymentIntent fetches the current state of an intent.
	GetPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)

	// CreateSetupIntent starts payment-method collection without a charge,
	// used when a recurring variant begins with a trial or deferred first charge.
	CreateSetupIntent(ctx context.Context, req *CreateSetupIntentRequest) (*SetupIntent, error)

	// GetProviderName returns the processor name
	GetProviderName() string
}

// CreatePaymentIntentRequest is a processor-agnostic charge request. Amounts
// are in minor currency units.
type CreatePaymentIntentRequest struct {
	Amount               int64             `json:"amount"`
	Currency             string            `json:"currency"`
	CustomerID           string            `json:"customer_id,omitempty"`
	PaymentMethodID      string            `json:"payment_method_id,omitempty"`
	Confirm              bool              `json:"confirm"`
	OffSession           bool              `json:"off_session"`
	ApplicationFeeAmount int64             `json:"application_fee_amount,omitempty"`
	IdempotencyKey       string            `json:"idempotency_key,omitempty"`
	Description          string            `json:"description,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// UpdatePaymentIntentRequest patches an existing intent.
type UpdatePaymentIntentRequest struct {
	Amount   *int64            `json:"amount,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateSetupIntentRequest starts off-session payment-method collection.
type CreateSetupIntentRequest struct {
	CustomerID     string            `json:"customer_id,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// PaymentIntent is the processor's view of a charge attempt.
type PaymentIntent struct {
	ID             string            `json:"id"`
	ClientSecret   string            `json:"client_secret,omitempty"`
	Status         IntentStatus      `json:"status"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	CustomerID     string            `json:"customer_id,omitempty"`
	LatestChargeID string            `json:"latest_charge_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// SetupIntent is the processor's view of payment-method collection.
type SetupIntent struct {
	ID              string            `json:"id"`
	ClientSecret    string            `json:"client_secret,omitempty"`
	Status          IntentStatus      `json:"status"`
	CustomerID      string            `json:"customer_id,omitempty"`
	PaymentMethodID string            `json:"payment_method_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// IntentStatus represents the processor-side status of an intent
type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentStatusRequiresAction        IntentStatus = "requires_action"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusCanceled              IntentStatus = "canceled"
)

// ProviderType represents the type of payment processor
type ProviderType string

const (
	ProviderTypeStripe ProviderType = "stripe"
)

// ProviderError is a processor-side rejection. Declined charges surface as
// ProviderError with a decline code, not as infrastructure failures.
type ProviderError struct {
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code,omitempty"`
	Message     string `json:"message"`
}

func (e *ProviderError) Error() string {
	if e.DeclineCode != "" {
		return e.Message + " (decline: " + e.DeclineCode + ")"
	}
	return e.Message
}

// IsDecline reports whether the error is a card decline rather than an
// infrastructure failure.
func (e *ProviderError) IsDecline() bool {
	return e.Code == "card_declined" || e.DeclineCode != ""
}
