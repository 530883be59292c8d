package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/billing-engine/internal/domain/errors"
	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
	"github.com/wekeepgrowing/billing-engine/internal/domain/provider"
	"github.com/wekeepgrowing/billing-engine/internal/domain/repository"
)

// DefaultMaxBillingAttempts is how many times a run's charge is retried before
// the period is abandoned and the subscription escalates.
const DefaultMaxBillingAttempts = 3

// BillingRunService executes scheduled billing runs. Execution is two-phase:
// the processor's synchronous acceptance moves the run to submitted, and the
// authoritative outcome arrives later through the reconciler. Synchronous
// declines are recorded as domain state, not returned as errors.
type BillingRunService struct {
	runRepo       repository.BillingRunRepository
	periodRepo    repository.BillingPeriodRepository
	subRepo       repository.SubscriptionRepository
	paymentRepo   repository.PaymentRepository
	purchaseRepo  repository.PurchaseRepository
	catalogRepo   repository.CatalogRepository
	processor     provider.PaymentProcessor
	feeCalc       *FeeCalculator
	taxPolicy     TaxPolicy
	periodService *BillingPeriodService
	logger        *zap.Logger
	maxAttempts   int
	now           func() time.Time
}

// NewBillingRunService creates a new billing run service
func NewBillingRunService(
	runRepo repository.BillingRunRepository,
	periodRepo repository.BillingPeriodRepository,
	subRepo repository.SubscriptionRepository,
	paymentRepo repository.PaymentRepository,
	purchaseRepo repository.PurchaseRepository,
	catalogRepo repository.CatalogRepository,
	processor provider.PaymentProcessor,
	feeCalc *FeeCalculator,
	taxPolicy TaxPolicy,
	periodService *BillingPeriodService,
	logger *zap.Logger,
) *BillingRunService {
	return &BillingRunService{
		runRepo:       runRepo,
		periodRepo:    periodRepo,
		subRepo:       subRepo,
		paymentRepo:   paymentRepo,
		purchaseRepo:  purchaseRepo,
		catalogRepo:   catalogRepo,
		processor:     processor,
		feeCalc:       feeCalc,
		taxPolicy:     taxPolicy,
		periodService: periodService,
		logger:        logger,
		maxAttempts:   DefaultMaxBillingAttempts,
		now:           time.Now,
	}
}

// ExecuteRun attempts the charge for one scheduled run. Re-executing a run
// that already left the scheduled state is a no-op, and a run not yet due is
// skipped, so the sweep can safely re-enqueue.
func (s *BillingRunService) ExecuteRun(ctx context.Context, runID uuid.UUID) error {
	run, err := s.runRepo.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load billing run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("billing run %s: %w", runID, domainErrors.ErrNotFound)
	}
	if run.Status != model.BillingRunStatusScheduled {
		s.logger.Debug("billing run already executed",
			zap.String("billing_run_id", run.ID.String()),
			zap.String("status", string(run.Status)))
		return nil
	}
	if run.ScheduledFor.After(s.now()) {
		return nil
	}

	period, err := s.periodRepo.GetWithItems(ctx, run.BillingPeriodID)
	if err != nil {
		return fmt.Errorf("failed to load billing period: %w", err)
	}
	if period == nil {
		return fmt.Errorf("billing period %s: %w", run.BillingPeriodID, domainErrors.ErrNotFound)
	}

	sub, err := s.subRepo.GetByID(ctx, period.SubscriptionID)
	if err != nil {
		return fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub == nil {
		return fmt.Errorf("subscription %s: %w", period.SubscriptionID, domainErrors.ErrSubscriptionNotFound)
	}
	if sub.Status.IsTerminal() {
		// The subscription ended between scheduling and execution.
		if err := s.runRepo.RecordFailure(ctx, run.ID, "subscription terminated", true); err != nil {
			return fmt.Errorf("failed to abandon billing run: %w", err)
		}
		return nil
	}
	if sub.Status == model.SubscriptionStatusCancellationScheduled ||
		period.Status == model.BillingPeriodStatusScheduledToCancel {
		// The boundary charge pays for the next cycle, and a scheduled
		// cancellation means that cycle will never open. Charging here would
		// take money for a period the rollover refuses to create.
		if err := s.runRepo.RecordFailure(ctx, run.ID, "subscription cancellation scheduled, no next cycle to charge", true); err != nil {
			return fmt.Errorf("failed to abandon billing run: %w", err)
		}
		s.logger.Info("billing run abandoned for scheduled cancellation",
			zap.String("billing_run_id", run.ID.String()),
			zap.String("subscription_id", sub.ID.String()))
		return nil
	}

	org, err := s.catalogRepo.GetOrganization(ctx, sub.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to load organization: %w", err)
	}
	customer, err := s.catalogRepo.GetCustomer(ctx, sub.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to load customer: %w", err)
	}
	if org == nil || customer == nil {
		return fmt.Errorf("billing run %s references missing organization or customer: %w", run.ID, domainErrors.ErrInvariantViolation)
	}

	breakdown, err := s.computeAmountDue(ctx, period, org, customer)
	if err != nil {
		return err
	}

	// Nothing owed: close the cycle without touching the processor.
	if breakdown.TotalDue == 0 {
		if err := s.runRepo.MarkSucceeded(ctx, run.ID); err != nil {
			return fmt.Errorf("failed to close zero-total billing run: %w", err)
		}
		if err := s.periodService.CloseOnSettlement(ctx, period.ID, sub); err != nil {
			return err
		}
		s.logger.Info("zero-total billing run settled without charge",
			zap.String("billing_run_id", run.ID.String()),
			zap.String("billing_period_id", period.ID.String()))
		return nil
	}

	if customer.StripeCustomerID == nil || customer.DefaultPaymentMethodID == nil {
		return s.recordRejection(ctx, run, period, sub, "customer has no usable payment method")
	}

	variant, err := s.catalogRepo.GetVariant(ctx, sub.VariantID)
	if err != nil {
		return fmt.Errorf("failed to load variant: %w", err)
	}
	currency := "USD"
	if variant != nil {
		currency = variant.Currency
	}

	attempt := run.AttemptNumber + 1
	req := &provider.CreatePaymentIntentRequest{
		Amount:               breakdown.TotalDue,
		Currency:             currency,
		CustomerID:           *customer.StripeCustomerID,
		PaymentMethodID:      *customer.DefaultPaymentMethodID,
		Confirm:              true,
		OffSession:           true,
		ApplicationFeeAmount: breakdown.PlatformFee,
		IdempotencyKey:       fmt.Sprintf("billing-run/%s/%d", run.ID, attempt),
		Description:          fmt.Sprintf("Renewal for period %s", period.ID),
		Metadata: map[string]string{
			"billing_run_id":    run.ID.String(),
			"billing_period_id": period.ID.String(),
			"subscription_id":   sub.ID.String(),
		},
	}

	intent, err := s.processor.CreatePaymentIntent(ctx, req)
	if err != nil {
		var provErr *provider.ProviderError
		if errors.As(err, &provErr) && provErr.IsDecline() {
			return s.recordRejection(ctx, run, period, sub, provErr.Error())
		}
		// Infrastructure failure: leave the run scheduled for the next sweep.
		return fmt.Errorf("failed to create payment intent for billing run %s: %w", run.ID, err)
	}

	payment := &model.Payment{
		OrganizationID:        sub.OrganizationID,
		CustomerID:            &sub.CustomerID,
		BillingRunID:          &run.ID,
		Amount:                breakdown.TotalDue,
		Currency:              req.Currency,
		Status:                model.PaymentStatusProcessing,
		StripePaymentIntentID: &intent.ID,
		Livemode:              sub.Livemode,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return fmt.Errorf("failed to record payment for billing run %s: %w", run.ID, err)
	}

	if err := s.runRepo.MarkSubmitted(ctx, run.ID, intent.ID); err != nil {
		return fmt.Errorf("failed to mark billing run submitted: %w", err)
	}

	s.logger.Info("billing run submitted",
		zap.String("billing_run_id", run.ID.String()),
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount", breakdown.TotalDue),
		zap.Int64("application_fee", breakdown.PlatformFee),
		zap.Int("attempt", attempt))
	return nil
}

// computeAmountDue recomputes the period's breakdown from its items and any
// frozen redemption they reference. Amounts are never trusted from the
// scheduling side.
func (s *BillingRunService) computeAmountDue(ctx context.Context, period *model.BillingPeriod, org *model.Organization, customer *model.Customer) (FeeBreakdown, error) {
	base := ItemsSubtotal(period.Items)

	var discount *DiscountSnapshot
	for i := range period.Items {
		if period.Items[i].DiscountRedemptionID == nil {
			continue
		}
		redemption, err := s.purchaseRepo.GetRedemption(ctx, *period.Items[i].DiscountRedemptionID)
		if err != nil {
			return FeeBreakdown{}, fmt.Errorf("failed to load discount redemption: %w", err)
		}
		discount = SnapshotFromRedemption(redemption)
		break
	}

	return s.feeCalc.Calculate(base, discount, s.taxPolicy, customer.TaxJurisdiction, org.FeePercentage), nil
}

// recordRejection stores a synchronous decline and, once attempts are
// exhausted, abandons the run and escalates the subscription. The rejection
// itself is normal domain state so nil is returned.
func (s *BillingRunService) recordRejection(ctx context.Context, run *model.BillingRun, period *model.BillingPeriod, sub *model.Subscription, cause string) error {
	attempt := run.AttemptNumber + 1
	abandon := attempt >= s.maxAttempts

	if err := s.runRepo.RecordFailure(ctx, run.ID, cause, abandon); err != nil {
		return fmt.Errorf("failed to record billing run failure: %w", err)
	}

	s.logger.Warn("billing run charge rejected",
		zap.String("billing_run_id", run.ID.String()),
		zap.String("cause", cause),
		zap.Int("attempt", attempt),
		zap.Bool("abandoned", abandon))

	if abandon {
		if err := s.periodService.EscalatePastDue(ctx, period.ID, sub); err != nil {
			return err
		}
	}
	return nil
}
