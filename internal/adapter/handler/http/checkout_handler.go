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

type CheckoutHandler struct {
	checkoutService *usecase.CheckoutService
	logger          *zap.Logger
}

func NewCheckoutHandler(checkoutService *usecase.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		logger:          logger,
	}
}

type createSessionRequest struct {
	OrganizationID string  `json:"organization_id" validate:"required,uuid"`
	VariantID      string  `json:"variant_id" validate:"required,uuid"`
	ProductID      string  `json:"product_id" validate:"required,uuid"`
	PurchaseID     *string `json:"purchase_id,omitempty" validate:"omitempty,uuid"`
	CustomerID     *string `json:"customer_id,omitempty" validate:"omitempty,uuid"`
	CustomerEmail  *string `json:"customer_email,omitempty" validate:"omitempty,email"`
	Quantity       int     `json:"quantity" validate:"omitempty,min=1"`
	Livemode       bool    `json:"livemode"`
}

type updateSessionRequest struct {
	Quantity      *int    `json:"quantity,omitempty" validate:"omitempty,min=1"`
	CustomerEmail *string `json:"customer_email,omitempty" validate:"omitempty,email"`
	CustomerID    *string `json:"customer_id,omitempty" validate:"omitempty,uuid"`
}

type discountCodeRequest struct {
	Code string `json:"code" validate:"required,min=1,max=50"`
}

type sessionResponse struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	VariantID      string     `json:"variant_id"`
	PurchaseID     *uuid.UUID `json:"purchase_id,omitempty"`
	Quantity       int        `json:"quantity"`
	BaseAmount     int64      `json:"base_amount"`
	DiscountAmount int64      `json:"discount_amount"`
	TaxAmount      int64      `json:"tax_amount"`
	TotalDue       int64      `json:"total_due"`
	ClientSecret   string     `json:"client_secret,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
}

// CreateSession handles POST /api/v1/checkout/sessions
func (h *CheckoutHandler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	criteria := dto.SessionCriteria{
		OrganizationID: uuid.MustParse(req.OrganizationID),
		VariantID:      uuid.MustParse(req.VariantID),
		ProductID:      uuid.MustParse(req.ProductID),
		Quantity:       req.Quantity,
		CustomerEmail:  req.CustomerEmail,
		Livemode:       req.Livemode,
	}
	if req.PurchaseID != nil {
		id := uuid.MustParse(*req.PurchaseID)
		criteria.PurchaseID = &id
	}
	if req.CustomerID != nil {
		id := uuid.MustParse(*req.CustomerID)
		criteria.CustomerID = &id
	}

	result, err := h.checkoutService.FindOrCreateSession(c.Request().Context(), criteria)
	if err != nil {
		return h.checkoutError(c, err, "failed to create checkout session")
	}

	return c.JSON(http.StatusOK, toSessionResponse(result))
}

// GetSession handles GET /api/v1/checkout/sessions/:id
func (h *CheckoutHandler) GetSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session ID"})
	}

	session, err := h.checkoutService.GetSession(c.Request().Context(), id)
	if err != nil {
		return h.checkoutError(c, err, "failed to get checkout session")
	}

	return c.JSON(http.StatusOK, toSessionResponse(&usecase.CheckoutResult{Session: session}))
}

// ResolveSession handles GET /api/v1/checkout/sessions/key/:key. The key is
// the opaque token issued at session creation, not the session id.
func (h *CheckoutHandler) ResolveSession(c echo.Context) error {
	key := c.Param("key")
	if key == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "session key is required"})
	}

	session, err := h.checkoutService.ResolveSessionKey(c.Request().Context(), key)
	if err != nil {
		return h.checkoutError(c, err, "failed to resolve session key")
	}

	return c.JSON(http.StatusOK, toSessionResponse(&usecase.CheckoutResult{Session: session}))
}

// UpdateSession handles PATCH /api/v1/checkout/sessions/:id
func (h *CheckoutHandler) UpdateSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session ID"})
	}

	var req updateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	patch := dto.SessionPatch{
		Quantity:      req.Quantity,
		CustomerEmail: req.CustomerEmail,
	}
	if req.CustomerID != nil {
		cid := uuid.MustParse(*req.CustomerID)
		patch.CustomerID = &cid
	}

	result, err := h.checkoutService.UpdateSession(c.Request().Context(), id, patch)
	if err != nil {
		return h.checkoutError(c, err, "failed to update checkout session")
	}

	return c.JSON(http.StatusOK, toSessionResponse(result))
}

// ApplyDiscountCode handles POST /api/v1/checkout/sessions/:id/discount
func (h *CheckoutHandler) ApplyDiscountCode(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session ID"})
	}

	var req discountCodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code is required"})
	}

	result, err := h.checkoutService.AttemptDiscountCode(c.Request().Context(), id, req.Code)
	if err != nil {
		return h.checkoutError(c, err, "failed to apply discount code")
	}

	return c.JSON(http.StatusOK, toSessionResponse(result))
}

// ClearDiscountCode handles DELETE /api/v1/checkout/sessions/:id/discount
func (h *CheckoutHandler) ClearDiscountCode(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session ID"})
	}

	result, err := h.checkoutService.ClearDiscountCode(c.Request().Context(), id)
	if err != nil {
		return h.checkoutError(c, err, "failed to clear discount code")
	}

	return c.JSON(http.StatusOK, toSessionResponse(result))
}

func (h *CheckoutHandler) checkoutError(c echo.Context, err error, msg string) error {
	switch {
	case errors.Is(err, domainErrors.ErrNotFound),
		errors.Is(err, domainErrors.ErrSessionExpired):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, domainErrors.ErrInvariantViolation):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": msg})
	}
}

func toSessionResponse(result *usecase.CheckoutResult) sessionResponse {
	session := result.Session
	resp := sessionResponse{
		ID:             session.ID.String(),
		Status:         string(session.Status),
		VariantID:      session.VariantID.String(),
		PurchaseID:     session.PurchaseID,
		Quantity:       session.Quantity,
		BaseAmount:     result.Breakdown.BaseAmount,
		DiscountAmount: result.Breakdown.DiscountAmount,
		TaxAmount:      result.Breakdown.TaxAmount,
		TotalDue:       result.Breakdown.TotalDue,
		ClientSecret:   result.ClientSecret,
		ExpiresAt:      session.ExpiresAt,
	}
	return resp
}
