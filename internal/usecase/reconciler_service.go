package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/billing-engine/internal/domain/errors"
	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
	"github.com/wekeepgrowing/billing-engine/internal/domain/repository"
)

// PaymentSucceededEvent is the domain-level view of a successful charge
// reported by the processor. Handlers parse processor payloads into these
// before the reconciler sees them.
type PaymentSucceededEvent struct {
	EventID         string
	PaymentIntentID string
	ChargeID        string
	Amount          int64
	Currency        string
	Metadata        map[string]string
	Livemode        bool
	OccurredAt      time.Time
}

// PaymentFailedEvent is the domain-level view of a failed charge.
type PaymentFailedEvent struct {
	EventID         string
	PaymentIntentID string
	FailureCode     string
	FailureMessage  string
	Amount          int64
	Currency        string
	Metadata        map[string]string
	Livemode        bool
	OccurredAt      time.Time
}

// SetupSucceededEvent is the domain-level view of completed payment-method
// collection.
type SetupSucceededEvent struct {
	EventID          string
	SetupIntentID    string
	PaymentMethodID  string
	StripeCustomerID string
	Metadata         map[string]string
	Livemode         bool
	OccurredAt       time.Time
}

// ReconcilerService folds asynchronous processor outcomes back into billing
// state. Every handler is idempotent: the payment intent id is the dedup key,
// and replayed events land on already-settled state as no-ops.
type ReconcilerService struct {
	paymentRepo   repository.PaymentRepository
	purchaseRepo  repository.PurchaseRepository
	subRepo       repository.SubscriptionRepository
	runRepo       repository.BillingRunRepository
	periodRepo    repository.BillingPeriodRepository
	checkoutRepo  repository.CheckoutRepository
	catalogRepo   repository.CatalogRepository
	periodService *BillingPeriodService
	notifier      Notifier
	logger        *zap.Logger
	maxAttempts   int
	now           func() time.Time
}

// NewReconcilerService creates a new reconciler service
func NewReconcilerService(
	paymentRepo repository.PaymentRepository,
	purchaseRepo repository.PurchaseRepository,
	subRepo repository.SubscriptionRepository,
	runRepo repository.BillingRunRepository,
	periodRepo repository.BillingPeriodRepository,
	checkoutRepo repository.CheckoutRepository,
	catalogRepo repository.CatalogRepository,
	periodService *BillingPeriodService,
	notifier Notifier,
	logger *zap.Logger,
) *ReconcilerService {
	return &ReconcilerService{
		paymentRepo:   paymentRepo,
		purchaseRepo:  purchaseRepo,
		subRepo:       subRepo,
		runRepo:       runRepo,
		periodRepo:    periodRepo,
		checkoutRepo:  checkoutRepo,
		catalogRepo:   catalogRepo,
		periodService: periodService,
		notifier:      notifier,
		logger:        logger,
		maxAttempts:   DefaultMaxBillingAttempts,
		now:           time.Now,
	}
}

// HandlePaymentSucceeded settles everything hanging off the charge: the
// payment row, the purchase and its session, the billing run and its period
// rollover, and subscription activation on a first charge.
func (s *ReconcilerService) HandlePaymentSucceeded(ctx context.Context, ev *PaymentSucceededEvent) error {
	payment, err := s.paymentRepo.GetByStripePaymentIntentID(ctx, ev.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("failed to look up payment: %w", err)
	}
	if payment != nil && payment.Status == model.PaymentStatusSucceeded {
		s.logger.Debug("payment already settled, skipping",
			zap.String("event_id", ev.EventID),
			zap.String("payment_intent_id", ev.PaymentIntentID))
		return nil
	}

	purchase, err := s.purchaseRepo.GetByStripePaymentIntentID(ctx, ev.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("failed to look up purchase: %w", err)
	}
	run, err := s.runRepo.GetByStripePaymentIntentID(ctx, ev.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("failed to look up billing run: %w", err)
	}

	// A charge that maps to neither a purchase nor a run came from a session
	// that never got a customer attached. Settle the session anyway so the
	// purge sweep cannot delete a paid checkout.
	var orphanSession *model.PurchaseSession
	if purchase == nil && run == nil {
		orphanSession, err = s.checkoutRepo.GetSessionByPaymentIntentID(ctx, ev.PaymentIntentID)
		if err != nil {
			return fmt.Errorf("failed to look up session: %w", err)
		}
	}

	paidAt := ev.OccurredAt
	if payment == nil {
		payment = &model.Payment{
			Amount:   ev.Amount,
			Currency: ev.Currency,
			Livemode: ev.Livemode,
		}
		payment.StripePaymentIntentID = &ev.PaymentIntentID
		if purchase != nil {
			payment.OrganizationID = purchase.OrganizationID
			payment.CustomerID = &purchase.CustomerID
			payment.PurchaseID = &purchase.ID
		} else if orphanSession != nil {
			payment.OrganizationID = orphanSession.OrganizationID
			payment.CustomerID = orphanSession.CustomerID
		}
		if run != nil {
			payment.BillingRunID = &run.ID
		}
		payment.Status = model.PaymentStatusSucceeded
		payment.StripeChargeID = &ev.ChargeID
		payment.PaidAt = &paidAt
		if err := s.paymentRepo.Create(ctx, payment); err != nil {
			return fmt.Errorf("failed to create payment record: %w", err)
		}
	} else {
		payment.Status = model.PaymentStatusSucceeded
		payment.StripeChargeID = &ev.ChargeID
		payment.PaidAt = &paidAt
		payment.FailureCode = nil
		payment.FailureMessage = nil
		if purchase != nil && payment.PurchaseID == nil {
			payment.PurchaseID = &purchase.ID
		}
		if err := s.paymentRepo.Update(ctx, payment); err != nil {
			return fmt.Errorf("failed to update payment record: %w", err)
		}
	}

	if purchase != nil {
		if err := s.settlePurchase(ctx, purchase, payment, ev); err != nil {
			return err
		}
	}

	if run != nil {
		if err := s.settleBillingRun(ctx, run, payment); err != nil {
			return err
		}
	}

	if orphanSession != nil && orphanSession.Status == model.PurchaseSessionStatusOpen {
		if err := s.checkoutRepo.MarkSessionStatus(ctx, orphanSession.ID, model.PurchaseSessionStatusSucceeded); err != nil {
			return fmt.Errorf("failed to close paid session: %w", err)
		}
		s.logger.Warn("paid session had no purchase attached",
			zap.String("session_id", orphanSession.ID.String()),
			zap.String("payment_intent_id", ev.PaymentIntentID))
	}

	if err := s.notifier.PaymentSucceeded(ctx, payment); err != nil {
		s.logger.Error("failed to publish payment succeeded notification", zap.Error(err))
	}

	s.logger.Info("payment reconciled as succeeded",
		zap.String("event_id", ev.EventID),
		zap.String("payment_intent_id", ev.PaymentIntentID),
		zap.Int64("amount", ev.Amount))
	return nil
}

// HandlePaymentFailed records the failure and drives retry bookkeeping on the
// run the charge belonged to.
func (s *ReconcilerService) HandlePaymentFailed(ctx context.Context, ev *PaymentFailedEvent) error {
	payment, err := s.paymentRepo.GetByStripePaymentIntentID(ctx, ev.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("failed to look up payment: %w", err)
	}
	if payment != nil && payment.Status == model.PaymentStatusFailed {
		s.logger.Debug("payment failure already recorded, skipping",
			zap.String("event_id", ev.EventID),
			zap.String("payment_intent_id", ev.PaymentIntentID))
		return nil
	}
	// A success never regresses to failure on a replayed event.
	if payment != nil && payment.Status == model.PaymentStatusSucceeded {
		s.logger.Warn("failure event for settled payment ignored",
			zap.String("event_id", ev.EventID),
			zap.String("payment_intent_id", ev.PaymentIntentID))
		return nil
	}

	failureCode := ev.FailureCode
	failureMessage := ev.FailureMessage
	if payment == nil {
		payment = &model.Payment{
			Amount:   ev.Amount,
			Currency: ev.Currency,
			Livemode: ev.Livemode,
		}
		payment.StripePaymentIntentID = &ev.PaymentIntentID
		payment.Status = model.PaymentStatusFailed
		payment.FailureCode = &failureCode
		payment.FailureMessage = &failureMessage
		if err := s.paymentRepo.Create(ctx, payment); err != nil {
			return fmt.Errorf("failed to create payment record: %w", err)
		}
	} else {
		payment.Status = model.PaymentStatusFailed
		payment.FailureCode = &failureCode
		payment.FailureMessage = &failureMessage
		if err := s.paymentRepo.Update(ctx, payment); err != nil {
			return fmt.Errorf("failed to update payment record: %w", err)
		}
	}

	run, err := s.runRepo.GetByStripePaymentIntentID(ctx, ev.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("failed to look up billing run: %w", err)
	}
	if run != nil && run.Status == model.BillingRunStatusSubmitted {
		// The attempt was counted at submission time.
		abandon := run.AttemptNumber >= s.maxAttempts
		if err := s.runRepo.RecordFailure(ctx, run.ID, failureMessage, abandon); err != nil {
			return fmt.Errorf("failed to record billing run failure: %w", err)
		}
		if abandon {
			sub, period, err := s.subscriptionOfRun(ctx, run)
			if err != nil {
				return err
			}
			if err := s.periodService.EscalatePastDue(ctx, period.ID, sub); err != nil {
				return err
			}
		}
	}

	// A failed first charge leaves an incomplete subscription in place; the
	// expiry sweep ages it out.
	if purchase, perr := s.purchaseRepo.GetByStripePaymentIntentID(ctx, ev.PaymentIntentID); perr == nil && purchase != nil {
		if purchase.Status == model.PurchaseStatusPending {
			purchase.Status = model.PurchaseStatusFailed
			if err := s.purchaseRepo.Update(ctx, purchase); err != nil {
				return fmt.Errorf("failed to mark purchase failed: %w", err)
			}
		}
	}

	if err := s.notifier.PaymentFailed(ctx, payment); err != nil {
		s.logger.Error("failed to publish payment failed notification", zap.Error(err))
	}

	s.logger.Info("payment reconciled as failed",
		zap.String("event_id", ev.EventID),
		zap.String("payment_intent_id", ev.PaymentIntentID),
		zap.String("failure_code", failureCode))
	return nil
}

// HandleSetupSucceeded finalizes a checkout that collected a payment method
// without an upfront charge: the session closes, the customer's default
// payment method is stored, and the subscription starts its first (usually
// trial) period.
func (s *ReconcilerService) HandleSetupSucceeded(ctx context.Context, ev *SetupSucceededEvent) error {
	session, err := s.checkoutRepo.GetSessionBySetupIntentID(ctx, ev.SetupIntentID)
	if err != nil {
		return fmt.Errorf("failed to look up purchase session: %w", err)
	}
	if session == nil {
		s.logger.Warn("setup intent has no purchase session",
			zap.String("event_id", ev.EventID),
			zap.String("setup_intent_id", ev.SetupIntentID))
		return nil
	}
	if session.Status == model.PurchaseSessionStatusSucceeded {
		s.logger.Debug("purchase session already finalized, skipping",
			zap.String("session_id", session.ID.String()))
		return nil
	}

	if ev.PaymentMethodID != "" && ev.StripeCustomerID != "" {
		customer, err := s.catalogRepo.GetCustomerByStripeID(ctx, ev.StripeCustomerID)
		if err != nil {
			return fmt.Errorf("failed to look up customer: %w", err)
		}
		if customer != nil {
			customer.DefaultPaymentMethodID = &ev.PaymentMethodID
			if err := s.catalogRepo.UpdateCustomer(ctx, customer); err != nil {
				return fmt.Errorf("failed to store default payment method: %w", err)
			}
		}
	}

	if err := s.checkoutRepo.MarkSessionStatus(ctx, session.ID, model.PurchaseSessionStatusSucceeded); err != nil {
		return fmt.Errorf("failed to finalize purchase session: %w", err)
	}

	if session.PurchaseID != nil {
		purchase, err := s.purchaseRepo.GetByID(ctx, *session.PurchaseID)
		if err != nil {
			return fmt.Errorf("failed to load purchase: %w", err)
		}
		if purchase != nil && purchase.PriceType == model.PriceTypeSubscription {
			if err := s.startSubscription(ctx, purchase, session, nil); err != nil {
				return err
			}
		}
	}

	s.logger.Info("setup intent reconciled",
		zap.String("event_id", ev.EventID),
		zap.String("setup_intent_id", ev.SetupIntentID),
		zap.String("session_id", session.ID.String()))
	return nil
}

// settlePurchase marks the purchase paid, closes its session, and starts the
// subscription for recurring purchases.
func (s *ReconcilerService) settlePurchase(ctx context.Context, purchase *model.Purchase, payment *model.Payment, ev *PaymentSucceededEvent) error {
	if purchase.Status != model.PurchaseStatusPaid {
		purchaseDate := ev.OccurredAt
		purchase.Status = model.PurchaseStatusPaid
		purchase.PurchaseDate = &purchaseDate
		if err := s.purchaseRepo.Update(ctx, purchase); err != nil {
			return fmt.Errorf("failed to mark purchase paid: %w", err)
		}
	}

	session, err := s.checkoutRepo.GetSessionByPaymentIntentID(ctx, ev.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("failed to look up purchase session: %w", err)
	}
	if session != nil && session.Status == model.PurchaseSessionStatusOpen {
		if err := s.checkoutRepo.MarkSessionStatus(ctx, session.ID, model.PurchaseSessionStatusSucceeded); err != nil {
			return fmt.Errorf("failed to finalize purchase session: %w", err)
		}
	}

	if purchase.PriceType == model.PriceTypeSubscription {
		if err := s.startSubscription(ctx, purchase, session, payment); err != nil {
			return err
		}
	}
	return nil
}

// startSubscription creates the subscription on purchase confirmation, or
// activates the incomplete one the metadata points at, then opens the first
// billing period.
func (s *ReconcilerService) startSubscription(ctx context.Context, purchase *model.Purchase, session *model.PurchaseSession, payment *model.Payment) error {
	if purchase.IntervalUnit == nil || purchase.IntervalCount == nil {
		return fmt.Errorf("recurring purchase %s has no billing interval: %w", purchase.ID, domainErrors.ErrInvariantViolation)
	}

	now := s.now()
	start := now
	trial := purchase.TrialPeriodDays != nil && *purchase.TrialPeriodDays > 0

	var trialEnd *time.Time
	end := purchase.IntervalUnit.AddTo(start, *purchase.IntervalCount)
	if trial {
		t := start.AddDate(0, 0, *purchase.TrialPeriodDays)
		trialEnd = &t
		end = t
	}

	status := model.SubscriptionStatusActive
	if trial {
		status = model.SubscriptionStatusTrialing
	}

	sub := &model.Subscription{
		OrganizationID:     purchase.OrganizationID,
		CustomerID:         purchase.CustomerID,
		VariantID:          purchase.VariantID,
		Status:             status,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		IntervalUnit:       *purchase.IntervalUnit,
		IntervalCount:      *purchase.IntervalCount,
		TrialEnd:           trialEnd,
		Livemode:           purchase.Livemode,
	}
	if err := s.subRepo.Create(ctx, sub); err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	items := []model.BillingPeriodItem{{
		Name:      purchase.Name,
		Quantity:  1,
		UnitPrice: purchase.FirstInvoiceValue,
	}}
	if redemption, err := s.purchaseRepo.GetRedemptionByPurchase(ctx, purchase.ID); err != nil {
		return fmt.Errorf("failed to load discount redemption: %w", err)
	} else if redemption != nil {
		items[0].DiscountRedemptionID = &redemption.ID
	}

	if _, err := s.periodService.OpenInitialPeriod(ctx, sub, items, trial); err != nil {
		return err
	}

	if payment != nil && payment.InvoiceID == nil {
		if err := s.issueInvoiceForPurchase(ctx, purchase, payment); err != nil {
			return err
		}
	}

	if err := s.notifier.SubscriptionActivated(ctx, sub); err != nil {
		s.logger.Error("failed to publish subscription activated notification", zap.Error(err))
	}

	s.logger.Info("subscription started",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("purchase_id", purchase.ID.String()),
		zap.String("status", string(status)))
	return nil
}

// settleBillingRun closes the run and rolls the period over.
func (s *ReconcilerService) settleBillingRun(ctx context.Context, run *model.BillingRun, payment *model.Payment) error {
	if run.Status == model.BillingRunStatusSucceeded {
		return nil
	}

	sub, period, err := s.subscriptionOfRun(ctx, run)
	if err != nil {
		return err
	}

	if err := s.runRepo.MarkSucceeded(ctx, run.ID); err != nil {
		return fmt.Errorf("failed to mark billing run succeeded: %w", err)
	}

	// A successful renewal charge recovers a past-due subscription.
	if sub.Status == model.SubscriptionStatusPastDue || sub.Status == model.SubscriptionStatusUnpaid {
		if err := s.subRepo.UpdateStatus(ctx, sub.ID, sub.Status, model.SubscriptionStatusActive); err != nil {
			return fmt.Errorf("failed to recover subscription: %w", err)
		}
		sub.Status = model.SubscriptionStatusActive
	}

	if err := s.issueInvoiceForPeriod(ctx, sub, period, payment); err != nil {
		return err
	}

	return s.periodService.CloseOnSettlement(ctx, period.ID, sub)
}

func (s *ReconcilerService) subscriptionOfRun(ctx context.Context, run *model.BillingRun) (*model.Subscription, *model.BillingPeriod, error) {
	period, err := s.periodRepo.GetByID(ctx, run.BillingPeriodID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load billing period: %w", err)
	}
	if period == nil {
		return nil, nil, fmt.Errorf("billing period %s: %w", run.BillingPeriodID, domainErrors.ErrNotFound)
	}
	sub, err := s.subRepo.GetByID(ctx, period.SubscriptionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub == nil {
		return nil, nil, fmt.Errorf("subscription %s: %w", period.SubscriptionID, domainErrors.ErrSubscriptionNotFound)
	}
	return sub, period, nil
}

func (s *ReconcilerService) issueInvoiceForPurchase(ctx context.Context, purchase *model.Purchase, payment *model.Payment) error {
	number, err := s.paymentRepo.NextInvoiceNumber(ctx, purchase.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to allocate invoice number: %w", err)
	}
	invoice := &model.Invoice{
		InvoiceNumber:  number,
		OrganizationID: purchase.OrganizationID,
		CustomerID:     purchase.CustomerID,
		PurchaseID:     &purchase.ID,
		Status:         model.InvoiceStatusPaid,
		Subtotal:       payment.Amount,
		Total:          payment.Amount,
		Currency:       payment.Currency,
		Livemode:       purchase.Livemode,
	}
	if err := s.paymentRepo.CreateInvoice(ctx, invoice); err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	payment.InvoiceID = &invoice.ID
	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return fmt.Errorf("failed to link payment to invoice: %w", err)
	}
	return nil
}

func (s *ReconcilerService) issueInvoiceForPeriod(ctx context.Context, sub *model.Subscription, period *model.BillingPeriod, payment *model.Payment) error {
	if payment == nil || payment.InvoiceID != nil {
		return nil
	}
	number, err := s.paymentRepo.NextInvoiceNumber(ctx, sub.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to allocate invoice number: %w", err)
	}
	invoice := &model.Invoice{
		InvoiceNumber:   number,
		OrganizationID:  sub.OrganizationID,
		CustomerID:      sub.CustomerID,
		BillingPeriodID: &period.ID,
		Status:          model.InvoiceStatusPaid,
		Subtotal:        payment.Amount,
		Total:           payment.Amount,
		Currency:        payment.Currency,
		Livemode:        sub.Livemode,
	}
	if err := s.paymentRepo.CreateInvoice(ctx, invoice); err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	payment.InvoiceID = &invoice.ID
	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return fmt.Errorf("failed to link payment to invoice: %w", err)
	}
	return nil
}
