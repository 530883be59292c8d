package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/billing-engine/internal/adapter/repository"
	"github.com/wekeepgrowing/billing-engine/internal/usecase"
)

// WebhookHandler receives processor events, verifies their signature, persists
// them, and dispatches them to the reconciler. Verification is attempted with
// the primary endpoint secret first, then the connected-account secret, so
// both endpoint flavors land on one route.
type WebhookHandler struct {
	reconciler      *usecase.ReconcilerService
	webhookRepo     repository.WebhookRepository
	logger          *zap.Logger
	primarySecret   string
	connectedSecret string
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(
	reconciler *usecase.ReconcilerService,
	webhookRepo repository.WebhookRepository,
	logger *zap.Logger,
	primarySecret, connectedSecret string,
) *WebhookHandler {
	return &WebhookHandler{
		reconciler:      reconciler,
		webhookRepo:     webhookRepo,
		logger:          logger,
		primarySecret:   primarySecret,
		connectedSecret: connectedSecret,
	}
}

// HandleWebhook processes an incoming processor event. Once the signature
// verifies the response is 200 regardless of processing outcome; the durable
// event row carries retries from there. Signature failures are 400 so the
// processor redelivers.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Error("Error reading request body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Error reading request body"})
	}

	sig := c.Request().Header.Get("Stripe-Signature")

	event, err := h.verify(body, sig)
	if err != nil {
		h.logger.Error("Webhook signature verification failed",
			zap.Error(err),
			zap.String("signature", sig))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Webhook signature verification failed",
		})
	}

	h.logger.Info("Webhook event received",
		zap.String("type", string(event.Type)),
		zap.String("id", event.ID),
		zap.Bool("livemode", event.Livemode),
		zap.Time("created", time.Unix(event.Created, 0)))

	ctx := c.Request().Context()
	if err := h.webhookRepo.SaveEvent(ctx, event.ID, string(event.Type), event.Livemode, body); err != nil {
		// The event is verified but not yet durable; a 500 makes the
		// processor redeliver it.
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to persist event"})
	}

	if err := h.process(ctx, &event); err != nil {
		h.logger.Error("Webhook event processing failed",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
		if markErr := h.webhookRepo.MarkFailed(ctx, event.ID, err); markErr != nil {
			h.logger.Error("Failed to mark webhook event failed", zap.Error(markErr))
		}
		return c.JSON(http.StatusOK, echo.Map{"received": true, "processed": false})
	}

	if err := h.webhookRepo.MarkProcessed(ctx, event.ID); err != nil {
		h.logger.Error("Failed to mark webhook event processed", zap.Error(err))
	}

	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

// verify checks the payload signature under the primary secret, falling back
// to the connected-account secret.
func (h *WebhookHandler) verify(body []byte, sig string) (stripe.Event, error) {
	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}

	event, err := webhook.ConstructEventWithOptions(body, sig, h.primarySecret, opts)
	if err == nil {
		return event, nil
	}
	if h.connectedSecret == "" {
		return stripe.Event{}, err
	}
	return webhook.ConstructEventWithOptions(body, sig, h.connectedSecret, opts)
}

// process maps the processor event onto a reconciler call. Unhandled event
// types are acknowledged and dropped.
func (h *WebhookHandler) process(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return err
		}
		ev := &usecase.PaymentSucceededEvent{
			EventID:         event.ID,
			PaymentIntentID: intent.ID,
			Amount:          intent.Amount,
			Currency:        string(intent.Currency),
			Metadata:        intent.Metadata,
			Livemode:        event.Livemode,
			OccurredAt:      time.Unix(event.Created, 0),
		}
		if intent.LatestCharge != nil {
			ev.ChargeID = intent.LatestCharge.ID
		}
		return h.reconciler.HandlePaymentSucceeded(ctx, ev)

	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return err
		}
		ev := &usecase.PaymentFailedEvent{
			EventID:         event.ID,
			PaymentIntentID: intent.ID,
			Amount:          intent.Amount,
			Currency:        string(intent.Currency),
			Metadata:        intent.Metadata,
			Livemode:        event.Livemode,
			OccurredAt:      time.Unix(event.Created, 0),
		}
		if intent.LastPaymentError != nil {
			ev.FailureCode = string(intent.LastPaymentError.Code)
			ev.FailureMessage = intent.LastPaymentError.Msg
			if intent.LastPaymentError.DeclineCode != "" {
				ev.FailureCode = string(intent.LastPaymentError.DeclineCode)
			}
		}
		return h.reconciler.HandlePaymentFailed(ctx, ev)

	case stripe.EventTypeSetupIntentSucceeded:
		var intent stripe.SetupIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return err
		}
		ev := &usecase.SetupSucceededEvent{
			EventID:       event.ID,
			SetupIntentID: intent.ID,
			Metadata:      intent.Metadata,
			Livemode:      event.Livemode,
			OccurredAt:    time.Unix(event.Created, 0),
		}
		if intent.PaymentMethod != nil {
			ev.PaymentMethodID = intent.PaymentMethod.ID
		}
		if intent.Customer != nil {
			ev.StripeCustomerID = intent.Customer.ID
		}
		return h.reconciler.HandleSetupSucceeded(ctx, ev)

	default:
		h.logger.Debug("Unhandled webhook event type",
			zap.String("type", string(event.Type)),
			zap.String("event_id", event.ID))
		return nil
	}
}
