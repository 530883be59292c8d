package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/billing-engine/internal/domain/dto"
	domainErrors "github.com/wekeepgrowing/billing-engine/internal/domain/errors"
	"github.com/wekeepgrowing/billing-engine/internal/usecase"
)

type SubscriptionHandler struct {
	subscriptionService *usecase.SubscriptionService
	periodService       *usecase.BillingPeriodService
	logger              *zap.Logger
}

func NewSubscriptionHandler(
	subscriptionService *usecase.SubscriptionService,
	periodService *usecase.BillingPeriodService,
	logger *zap.Logger,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		periodService:       periodService,
		logger:              logger,
	}
}

type cancelSubscriptionRequest struct {
	Timing     string     `json:"timing" validate:"required,oneof=immediately end_of_current_billing_period future_date"`
	FutureDate *time.Time `json:"future_date,omitempty"`
}

type subscriptionResponse struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	TrialEnd           *time.Time `json:"trial_end,omitempty"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
	CancelScheduledAt  *time.Time `json:"cancel_scheduled_at,omitempty"`
}

// GetSubscription handles GET /api/v1/subscriptions/:id
func (h *SubscriptionHandler) GetSubscription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid subscription ID"})
	}

	sub, err := h.subscriptionService.GetSubscription(c.Request().Context(), scopeFrom(c), id)
	if err != nil {
		if errors.Is(err, domainErrors.ErrSubscriptionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "subscription not found"})
		}
		h.logger.Error("failed to get subscription", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get subscription"})
	}

	return c.JSON(http.StatusOK, subscriptionResponse{
		ID:                 sub.ID.String(),
		Status:             string(sub.Status),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		TrialEnd:           sub.TrialEnd,
		CanceledAt:         sub.CanceledAt,
		CancelScheduledAt:  sub.CancelScheduledAt,
	})
}

// CancelSubscription handles POST /api/v1/subscriptions/:id/cancel
func (h *SubscriptionHandler) CancelSubscription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid subscription ID"})
	}

	var req cancelSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	timing := dto.CancellationTiming(req.Timing)
	if timing == dto.CancellationTimingFutureDate && req.FutureDate == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "future_date is required for future_date timing"})
	}

	arrangement := dto.CancellationArrangement{
		Timing:     timing,
		FutureDate: req.FutureDate,
	}
	err = h.subscriptionService.ScheduleCancellation(c.Request().Context(), scopeFrom(c), id, arrangement)
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrSubscriptionNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "subscription not found"})
		case errors.Is(err, domainErrors.ErrInvalidTimeRange):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		case errors.Is(err, domainErrors.ErrInvariantViolation):
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		default:
			h.logger.Error("failed to cancel subscription",
				zap.String("subscription_id", id.String()),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel subscription"})
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"canceled": true})
}

// GetCurrentPeriod handles GET /api/v1/subscriptions/:id/current-period
func (h *SubscriptionHandler) GetCurrentPeriod(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid subscription ID"})
	}

	// Ownership and livemode are checked through the subscription lookup.
	if _, err := h.subscriptionService.GetSubscription(c.Request().Context(), scopeFrom(c), id); err != nil {
		if errors.Is(err, domainErrors.ErrSubscriptionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "subscription not found"})
		}
		h.logger.Error("failed to get subscription", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get subscription"})
	}

	period, err := h.periodService.CurrentPeriod(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("failed to get current billing period", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get current billing period"})
	}
	if period == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no current billing period"})
	}

	return c.JSON(http.StatusOK, period)
}

// scopeFrom derives the actor scope from request context set by the auth
// middleware.
func scopeFrom(c echo.Context) usecase.ActorScope {
	scope := usecase.ActorScope{}
	if admin, ok := c.Get("is_admin").(bool); ok {
		scope.Admin = admin
	}
	if userIDStr, ok := c.Get("user_id").(string); ok {
		if userID, err := uuid.Parse(userIDStr); err == nil {
			scope.UserID = &userID
		}
	}
	if livemode, ok := c.Get("livemode").(bool); ok {
		scope.Livemode = livemode
	}
	return scope
}
