package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
	"github.com/stripe/stripe-go/v79/setupintent"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/billing-engine/internal/domain/provider"
)

type stripeProvider struct {
	logger *zap.Logger
}

// NewStripeProvider creates the Stripe-backed payment processor. The global
// API key is set once from configuration before construction.
func NewStripeProvider(secretKey string, logger *zap.Logger) provider.PaymentProcessor {
	stripe.Key = secretKey
	return &stripeProvider{logger: logger}
}

// CreatePaymentIntent creates a charge intent
func (p *stripeProvider) CreatePaymentIntent(ctx context.Context, req *provider.CreatePaymentIntentRequest) (*provider.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
	}
	params.Context = ctx

	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethodID)
	}
	if req.Confirm {
		params.Confirm = stripe.Bool(true)
	}
	if req.OffSession {
		params.OffSession = stripe.Bool(true)
	}
	if req.ApplicationFeeAmount > 0 {
		params.ApplicationFeeAmount = stripe.Int64(req.ApplicationFeeAmount)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, p.wrapError(err, "failed to create payment intent")
	}

	return toPaymentIntent(intent), nil
}

// UpdatePaymentIntent patches a pending intent
func (p *stripeProvider) UpdatePaymentIntent(ctx context.Context, intentID string, req *provider.UpdatePaymentIntentRequest) (*provider.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := paymentintent.Update(intentID, params)
	if err != nil {
		return nil, p.wrapError(err, "failed to update payment intent")
	}

	return toPaymentIntent(intent), nil
}

// GetPaymentIntent fetches the current state of an intent
func (p *stripeProvider) GetPaymentIntent(ctx context.Context, intentID string) (*provider.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := paymentintent.Get(intentID, params)
	if err != nil {
		return nil, p.wrapError(err, "failed to get payment intent")
	}

	return toPaymentIntent(intent), nil
}

// CreateSetupIntent starts payment-method collection without a charge
func (p *stripeProvider) CreateSetupIntent(ctx context.Context, req *provider.CreateSetupIntentRequest) (*provider.SetupIntent, error) {
	params := &stripe.SetupIntentParams{
		Usage: stripe.String(string(stripe.SetupIntentUsageOffSession)),
	}
	params.Context = ctx

	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := setupintent.New(params)
	if err != nil {
		return nil, p.wrapError(err, "failed to create setup intent")
	}

	result := &provider.SetupIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       provider.IntentStatus(intent.Status),
		Metadata:     intent.Metadata,
		CreatedAt:    time.Unix(intent.Created, 0),
	}
	if intent.Customer != nil {
		result.CustomerID = intent.Customer.ID
	}
	if intent.PaymentMethod != nil {
		result.PaymentMethodID = intent.PaymentMethod.ID
	}
	return result, nil
}

// GetProviderName returns the processor name
func (p *stripeProvider) GetProviderName() string {
	return string(provider.ProviderTypeStripe)
}

// wrapError converts stripe card errors into ProviderError so the caller can
// distinguish declines from infrastructure failures.
func (p *stripeProvider) wrapError(err error, msg string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeCard || stripeErr.DeclineCode != "" {
			return &provider.ProviderError{
				Code:        string(stripeErr.Code),
				DeclineCode: string(stripeErr.DeclineCode),
				Message:     stripeErr.Msg,
			}
		}
		p.logger.Error("Stripe API error",
			zap.String("type", string(stripeErr.Type)),
			zap.String("code", string(stripeErr.Code)),
			zap.Error(err))
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func toPaymentIntent(intent *stripe.PaymentIntent) *provider.PaymentIntent {
	result := &provider.PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       provider.IntentStatus(intent.Status),
		Amount:       intent.Amount,
		Currency:     string(intent.Currency),
		Metadata:     intent.Metadata,
		CreatedAt:    time.Unix(intent.Created, 0),
	}
	if intent.Customer != nil {
		result.CustomerID = intent.Customer.ID
	}
	if intent.LatestCharge != nil {
		result.LatestChargeID = intent.LatestCharge.ID
	}
	return result
}
