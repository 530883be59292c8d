package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/billing-engine/internal/domain/dto"
	domainErrors "github.com/wekeepgrowing/billing-engine/internal/domain/errors"
	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
	"github.com/wekeepgrowing/billing-engine/internal/domain/provider"
	"github.com/wekeepgrowing/billing-engine/internal/domain/repository"
)

// TokenStore holds the opaque keys that let a browser resume an open checkout
// session. Keys live in a fast store with the same TTL as the session.
type TokenStore interface {
	Issue(ctx context.Context, key string, sessionID uuid.UUID, ttl time.Duration) error
	Lookup(ctx context.Context, key string) (uuid.UUID, error)
	Revoke(ctx context.Context, key string) error
}

// CheckoutResult pairs a session with the processor-side client secret the
// frontend needs to complete payment.
type CheckoutResult struct {
	Session      *model.PurchaseSession
	ClientSecret string
	Breakdown    FeeBreakdown
}

// CheckoutService brokers purchase sessions: at most one open session per
// checkout target, superseded sessions abandoned rather than merged, fee
// snapshots recomputed on every mutation.
type CheckoutService struct {
	checkoutRepo repository.CheckoutRepository
	purchaseRepo repository.PurchaseRepository
	catalogRepo  repository.CatalogRepository
	processor    provider.PaymentProcessor
	feeCalc      *FeeCalculator
	taxPolicy    TaxPolicy
	tokens       TokenStore
	logger       *zap.Logger
	sessionTTL   time.Duration
	now          func() time.Time
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	checkoutRepo repository.CheckoutRepository,
	purchaseRepo repository.PurchaseRepository,
	catalogRepo repository.CatalogRepository,
	processor provider.PaymentProcessor,
	feeCalc *FeeCalculator,
	taxPolicy TaxPolicy,
	tokens TokenStore,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		checkoutRepo: checkoutRepo,
		purchaseRepo: purchaseRepo,
		catalogRepo:  catalogRepo,
		processor:    processor,
		feeCalc:      feeCalc,
		taxPolicy:    taxPolicy,
		tokens:       tokens,
		logger:       logger,
		sessionTTL:   model.DefaultPurchaseSessionTTL,
		now:          time.Now,
	}
}

// FindOrCreateSession returns the open session for the checkout target,
// creating one when none exists. An existing open session for a different
// variant is abandoned and replaced, never mutated in place.
func (s *CheckoutService) FindOrCreateSession(ctx context.Context, criteria dto.SessionCriteria) (*CheckoutResult, error) {
	if criteria.Quantity < 1 {
		criteria.Quantity = 1
	}

	existing, err := s.checkoutRepo.FindOpenSession(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to find open session: %w", err)
	}
	if existing != nil && !existing.IsExpired(s.now()) {
		if existing.VariantID == criteria.VariantID {
			return s.resumeSession(ctx, existing)
		}
		if err := s.checkoutRepo.MarkSessionStatus(ctx, existing.ID, model.PurchaseSessionStatusAbandoned); err != nil {
			return nil, fmt.Errorf("failed to abandon superseded session: %w", err)
		}
		s.logger.Info("superseded purchase session abandoned",
			zap.String("session_id", existing.ID.String()),
			zap.String("old_variant_id", existing.VariantID.String()),
			zap.String("new_variant_id", criteria.VariantID.String()))
	}

	return s.createSession(ctx, criteria)
}

// GetSession loads a session by id, treating expiry as absence.
func (s *CheckoutService) GetSession(ctx context.Context, id uuid.UUID) (*model.PurchaseSession, error) {
	session, err := s.checkoutRepo.GetSessionByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, domainErrors.ErrNotFound
	}
	if session.IsExpired(s.now()) {
		return nil, domainErrors.ErrSessionExpired
	}
	return session, nil
}

// ResolveSessionKey maps an opaque client key back to its session.
func (s *CheckoutService) ResolveSessionKey(ctx context.Context, key string) (*model.PurchaseSession, error) {
	sessionID, err := s.tokens.Lookup(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session key: %w", err)
	}
	if sessionID == uuid.Nil {
		return nil, domainErrors.ErrNotFound
	}
	return s.GetSession(ctx, sessionID)
}

// UpdateSession patches an open session's mutable fields and recomputes the
// fee snapshot. Closed or expired sessions reject every mutation.
func (s *CheckoutService) UpdateSession(ctx context.Context, id uuid.UUID, patch dto.SessionPatch) (*CheckoutResult, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != model.PurchaseSessionStatusOpen {
		return nil, fmt.Errorf("session %s is %s: %w", session.ID, session.Status, domainErrors.ErrInvariantViolation)
	}

	quantityChanged := false
	if patch.Quantity != nil && *patch.Quantity >= 1 && *patch.Quantity != session.Quantity {
		session.Quantity = *patch.Quantity
		quantityChanged = true
	}
	if patch.CustomerEmail != nil {
		session.CustomerEmail = patch.CustomerEmail
	}
	if patch.CustomerID != nil {
		session.CustomerID = patch.CustomerID
	}

	if err := s.checkoutRepo.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	return s.refreshAmounts(ctx, session, quantityChanged)
}

// AttemptDiscountCode applies a live discount code to the session. Unknown or
// inactive codes are a not-found, not a validation error, so callers cannot
// probe the catalog.
func (s *CheckoutService) AttemptDiscountCode(ctx context.Context, sessionID uuid.UUID, code string) (*CheckoutResult, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.PurchaseSessionStatusOpen {
		return nil, fmt.Errorf("session %s is %s: %w", session.ID, session.Status, domainErrors.ErrInvariantViolation)
	}

	discount, err := s.checkoutRepo.GetDiscountByCode(ctx, session.OrganizationID, code, session.Livemode)
	if err != nil {
		return nil, fmt.Errorf("failed to look up discount code: %w", err)
	}
	if discount == nil || !discount.Active {
		return nil, fmt.Errorf("discount code %q: %w", code, domainErrors.ErrNotFound)
	}

	session.DiscountID = &discount.ID
	if err := s.checkoutRepo.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to apply discount code: %w", err)
	}

	// Freeze the discount's terms against the purchase so later edits to the
	// discount never reprice an already-agreed checkout.
	if session.PurchaseID != nil {
		existing, err := s.purchaseRepo.GetRedemptionByPurchase(ctx, *session.PurchaseID)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing redemption: %w", err)
		}
		if existing == nil {
			redemption, err := model.NewDiscountRedemption(discount, *session.PurchaseID)
			if err != nil {
				return nil, err
			}
			if err := s.purchaseRepo.CreateRedemption(ctx, redemption); err != nil {
				return nil, fmt.Errorf("failed to create discount redemption: %w", err)
			}
		}
	}

	s.logger.Info("discount code applied",
		zap.String("session_id", session.ID.String()),
		zap.String("discount_id", discount.ID.String()))
	return s.refreshAmounts(ctx, session, true)
}

// ClearDiscountCode removes the session's discount and restores full pricing.
func (s *CheckoutService) ClearDiscountCode(ctx context.Context, sessionID uuid.UUID) (*CheckoutResult, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.PurchaseSessionStatusOpen {
		return nil, fmt.Errorf("session %s is %s: %w", session.ID, session.Status, domainErrors.ErrInvariantViolation)
	}
	if session.DiscountID == nil {
		return s.resumeSession(ctx, session)
	}

	session.DiscountID = nil
	if err := s.checkoutRepo.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to clear discount code: %w", err)
	}
	return s.refreshAmounts(ctx, session, true)
}

func (s *CheckoutService) createSession(ctx context.Context, criteria dto.SessionCriteria) (*CheckoutResult, error) {
	variant, err := s.catalogRepo.GetVariant(ctx, criteria.VariantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load variant: %w", err)
	}
	if variant == nil || !variant.Active {
		return nil, fmt.Errorf("variant %s: %w", criteria.VariantID, domainErrors.ErrNotFound)
	}

	org, err := s.catalogRepo.GetOrganization(ctx, criteria.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	if org == nil {
		return nil, fmt.Errorf("organization %s: %w", criteria.OrganizationID, domainErrors.ErrNotFound)
	}

	now := s.now()
	session := &model.PurchaseSession{
		OrganizationID: criteria.OrganizationID,
		CustomerID:     criteria.CustomerID,
		VariantID:      criteria.VariantID,
		PurchaseID:     criteria.PurchaseID,
		Status:         model.PurchaseSessionStatusOpen,
		Quantity:       criteria.Quantity,
		CustomerEmail:  criteria.CustomerEmail,
		ExpiresAt:      now.Add(s.sessionTTL),
		Livemode:       criteria.Livemode,
	}

	breakdown := s.breakdownFor(ctx, session, variant, org, nil)

	var clientSecret string
	deferred := variant.IsRecurring() && variant.TrialPeriodDays > 0
	if deferred || breakdown.TotalDue == 0 {
		setupIntent, err := s.processor.CreateSetupIntent(ctx, &provider.CreateSetupIntentRequest{
			Metadata: map[string]string{"organization_id": criteria.OrganizationID.String()},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create setup intent: %w", err)
		}
		session.StripeSetupIntentID = &setupIntent.ID
		clientSecret = setupIntent.ClientSecret
	} else {
		intent, err := s.processor.CreatePaymentIntent(ctx, &provider.CreatePaymentIntentRequest{
			Amount:               breakdown.TotalDue,
			Currency:             variant.Currency,
			ApplicationFeeAmount: breakdown.PlatformFee,
			Metadata:             map[string]string{"organization_id": criteria.OrganizationID.String()},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create payment intent: %w", err)
		}
		session.StripePaymentIntentID = &intent.ID
		clientSecret = intent.ClientSecret
	}

	// A known customer gets a pending purchase with pricing frozen at checkout;
	// guest sessions defer purchase creation until the customer is attached.
	if session.PurchaseID == nil && session.CustomerID != nil {
		purchase, err := s.createPendingPurchase(ctx, session, variant, breakdown)
		if err != nil {
			return nil, err
		}
		session.PurchaseID = &purchase.ID
	}

	if err := s.checkoutRepo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if err := s.checkoutRepo.CreateFeeCalculation(ctx, breakdown.Snapshot(session, variant.Currency)); err != nil {
		return nil, fmt.Errorf("failed to snapshot fee calculation: %w", err)
	}

	if err := s.tokens.Issue(ctx, session.SessionKey(variant.ProductID), session.ID, s.sessionTTL); err != nil {
		// The session is still reachable by id; losing the key only costs
		// resumability.
		s.logger.Error("failed to issue session key", zap.Error(err),
			zap.String("session_id", session.ID.String()))
	}

	s.logger.Info("purchase session created",
		zap.String("session_id", session.ID.String()),
		zap.String("variant_id", variant.ID.String()),
		zap.Int64("total_due", breakdown.TotalDue),
		zap.Bool("setup_intent", session.StripeSetupIntentID != nil))
	return &CheckoutResult{Session: session, ClientSecret: clientSecret, Breakdown: breakdown}, nil
}

// createPendingPurchase freezes the session's pricing into a purchase record.
// Later catalog price changes never move an in-flight checkout.
func (s *CheckoutService) createPendingPurchase(ctx context.Context, session *model.PurchaseSession, variant *model.Variant, breakdown FeeBreakdown) (*model.Purchase, error) {
	purchase := &model.Purchase{
		OrganizationID:        session.OrganizationID,
		CustomerID:            *session.CustomerID,
		VariantID:             variant.ID,
		Name:                  variant.Name,
		Status:                model.PurchaseStatusPending,
		PriceType:             variant.PriceType,
		FirstInvoiceValue:     breakdown.TotalDue,
		Currency:              variant.Currency,
		StripePaymentIntentID: session.StripePaymentIntentID,
		Livemode:              session.Livemode,
	}
	if variant.IsRecurring() {
		unit := variant.IntervalUnit
		count := variant.IntervalCount
		purchase.IntervalUnit = &unit
		purchase.IntervalCount = &count
		if variant.TrialPeriodDays > 0 {
			days := variant.TrialPeriodDays
			purchase.TrialPeriodDays = &days
		}
	}
	if err := s.purchaseRepo.Create(ctx, purchase); err != nil {
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}
	return purchase, nil
}

func (s *CheckoutService) resumeSession(ctx context.Context, session *model.PurchaseSession) (*CheckoutResult, error) {
	result := &CheckoutResult{Session: session}

	if calc, err := s.checkoutRepo.LatestFeeCalculation(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("failed to load fee calculation: %w", err)
	} else if calc != nil {
		result.Breakdown = FeeBreakdown{
			BaseAmount:     calc.BaseAmount,
			DiscountAmount: calc.DiscountAmountFixed,
			TaxAmount:      calc.TaxAmountFixed,
			TotalDue:       calc.TotalDue(),
			PlatformFee:    calc.FeeAmount,
		}
	}

	if session.StripePaymentIntentID != nil {
		intent, err := s.processor.GetPaymentIntent(ctx, *session.StripePaymentIntentID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch payment intent: %w", err)
		}
		result.ClientSecret = intent.ClientSecret
	}
	return result, nil
}

// refreshAmounts recomputes and snapshots the session's amounts and, when the
// total changed, pushes the new amount to the pending payment intent.
func (s *CheckoutService) refreshAmounts(ctx context.Context, session *model.PurchaseSession, amountChanged bool) (*CheckoutResult, error) {
	variant, err := s.catalogRepo.GetVariant(ctx, session.VariantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load variant: %w", err)
	}
	org, err := s.catalogRepo.GetOrganization(ctx, session.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	if variant == nil || org == nil {
		return nil, fmt.Errorf("session %s references missing catalog records: %w", session.ID, domainErrors.ErrInvariantViolation)
	}

	var discount *model.Discount
	if session.DiscountID != nil {
		discount, err = s.discountByID(ctx, *session.DiscountID)
		if err != nil {
			return nil, err
		}
	}

	breakdown := s.breakdownFor(ctx, session, variant, org, discount)
	if err := s.checkoutRepo.CreateFeeCalculation(ctx, breakdown.Snapshot(session, variant.Currency)); err != nil {
		return nil, fmt.Errorf("failed to snapshot fee calculation: %w", err)
	}

	if session.PurchaseID == nil && session.CustomerID != nil {
		// A guest session deferred its purchase until now. Create it so the
		// intent settles against a real purchase instead of an orphan.
		purchase, err := s.createPendingPurchase(ctx, session, variant, breakdown)
		if err != nil {
			return nil, err
		}
		session.PurchaseID = &purchase.ID
		if err := s.checkoutRepo.UpdateSession(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to attach purchase to session: %w", err)
		}
	} else if amountChanged && session.PurchaseID != nil {
		purchase, err := s.purchaseRepo.GetByID(ctx, *session.PurchaseID)
		if err != nil {
			return nil, fmt.Errorf("failed to load purchase: %w", err)
		}
		if purchase != nil && purchase.Status == model.PurchaseStatusPending {
			purchase.FirstInvoiceValue = breakdown.TotalDue
			if err := s.purchaseRepo.Update(ctx, purchase); err != nil {
				return nil, fmt.Errorf("failed to reprice purchase: %w", err)
			}
		}
	}

	result := &CheckoutResult{Session: session, Breakdown: breakdown}
	if session.StripePaymentIntentID != nil {
		if amountChanged {
			amount := breakdown.TotalDue
			intent, err := s.processor.UpdatePaymentIntent(ctx, *session.StripePaymentIntentID, &provider.UpdatePaymentIntentRequest{
				Amount: &amount,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to update payment intent amount: %w", err)
			}
			result.ClientSecret = intent.ClientSecret
		} else {
			intent, err := s.processor.GetPaymentIntent(ctx, *session.StripePaymentIntentID)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch payment intent: %w", err)
			}
			result.ClientSecret = intent.ClientSecret
		}
	}
	return result, nil
}

func (s *CheckoutService) breakdownFor(ctx context.Context, session *model.PurchaseSession, variant *model.Variant, org *model.Organization, discount *model.Discount) FeeBreakdown {
	base := variant.UnitPrice * int64(session.Quantity)

	jurisdiction := ""
	if session.CustomerID != nil {
		if customer, err := s.catalogRepo.GetCustomer(ctx, *session.CustomerID); err == nil && customer != nil {
			jurisdiction = customer.TaxJurisdiction
		}
	}

	return s.feeCalc.Calculate(base, SnapshotFromDiscount(discount), s.taxPolicy, jurisdiction, org.FeePercentage)
}

func (s *CheckoutService) discountByID(ctx context.Context, id uuid.UUID) (*model.Discount, error) {
	discount, err := s.checkoutRepo.GetDiscountByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load discount: %w", err)
	}
	if discount == nil {
		return nil, fmt.Errorf("discount %s: %w", id, domainErrors.ErrNotFound)
	}
	return discount, nil
}
