package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/billing-engine/internal/domain/errors"
	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
	"github.com/wekeepgrowing/billing-engine/internal/domain/repository"
)

// BillingPeriodService manages the contiguous chain of billing periods under a
// subscription: opening the first one, rolling over on settlement, and
// escalating on exhausted collection.
type BillingPeriodService struct {
	periodRepo   repository.BillingPeriodRepository
	runRepo      repository.BillingRunRepository
	purchaseRepo repository.PurchaseRepository
	logger       *zap.Logger
	now          func() time.Time
}

// NewBillingPeriodService creates a new billing period service
func NewBillingPeriodService(
	periodRepo repository.BillingPeriodRepository,
	runRepo repository.BillingRunRepository,
	purchaseRepo repository.PurchaseRepository,
	logger *zap.Logger,
) *BillingPeriodService {
	return &BillingPeriodService{
		periodRepo:   periodRepo,
		runRepo:      runRepo,
		purchaseRepo: purchaseRepo,
		logger:       logger,
		now:          time.Now,
	}
}

// CurrentPeriod returns the period containing now, or nil when the
// subscription has none open.
func (s *BillingPeriodService) CurrentPeriod(ctx context.Context, subscriptionID uuid.UUID) (*model.BillingPeriod, error) {
	period, err := s.periodRepo.GetCurrent(ctx, subscriptionID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to get current billing period: %w", err)
	}
	return period, nil
}

// OpenInitialPeriod creates the subscription's first period and schedules the
// billing run that will charge for the next cycle at the period boundary.
// When the period covers a trial, the run at its end collects the first real
// payment instead.
func (s *BillingPeriodService) OpenInitialPeriod(ctx context.Context, sub *model.Subscription, items []model.BillingPeriodItem, trial bool) (*model.BillingPeriod, error) {
	if !sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart) {
		return nil, fmt.Errorf("period end %s not after start %s: %w",
			sub.CurrentPeriodEnd.Format(time.RFC3339), sub.CurrentPeriodStart.Format(time.RFC3339),
			domainErrors.ErrInvalidTimeRange)
	}

	period := &model.BillingPeriod{
		SubscriptionID: sub.ID,
		StartDate:      sub.CurrentPeriodStart,
		EndDate:        sub.CurrentPeriodEnd,
		Status:         model.BillingPeriodStatusActive,
		TrialPeriod:    trial,
		Livemode:       sub.Livemode,
	}
	if err := s.periodRepo.CreateWithItems(ctx, period, items); err != nil {
		return nil, fmt.Errorf("failed to create initial billing period: %w", err)
	}

	run := &model.BillingRun{
		BillingPeriodID: period.ID,
		ScheduledFor:    period.EndDate,
		Status:          model.BillingRunStatusScheduled,
		Livemode:        sub.Livemode,
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to schedule billing run: %w", err)
	}

	s.logger.Info("initial billing period opened",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("billing_period_id", period.ID.String()),
		zap.Time("start", period.StartDate),
		zap.Time("end", period.EndDate),
		zap.Bool("trial", trial))
	return period, nil
}

// CloseOnSettlement completes the period after its charge settled and rolls
// the subscription over into the next period with a fresh billing run. A
// period marked scheduled_to_cancel does not roll over; it completes and the
// chain ends there. Closing an already-closed period is an invariant
// violation, never a silent overwrite.
func (s *BillingPeriodService) CloseOnSettlement(ctx context.Context, periodID uuid.UUID, sub *model.Subscription) error {
	period, err := s.periodRepo.GetWithItems(ctx, periodID)
	if err != nil {
		return fmt.Errorf("failed to load billing period: %w", err)
	}
	if period == nil {
		return fmt.Errorf("billing period %s: %w", periodID, domainErrors.ErrNotFound)
	}
	if period.Status.IsClosed() {
		return fmt.Errorf("billing period %s is already %s: %w", period.ID, period.Status, domainErrors.ErrInvariantViolation)
	}

	rollOver := period.Status != model.BillingPeriodStatusScheduledToCancel &&
		sub.Status != model.SubscriptionStatusCancellationScheduled &&
		!sub.Status.IsTerminal()

	if !rollOver {
		if err := s.periodRepo.CompleteAndRollOver(ctx, period.ID, nil, nil, nil); err != nil {
			return fmt.Errorf("failed to complete final billing period: %w", err)
		}
		s.logger.Info("final billing period completed, no rollover",
			zap.String("billing_period_id", period.ID.String()),
			zap.String("subscription_id", sub.ID.String()))
		return nil
	}

	nextStart := period.EndDate
	nextEnd := sub.IntervalUnit.AddTo(nextStart, sub.IntervalCount)
	if !nextEnd.After(nextStart) {
		return fmt.Errorf("rollover produced end %s not after start %s: %w",
			nextEnd.Format(time.RFC3339), nextStart.Format(time.RFC3339), domainErrors.ErrInvalidTimeRange)
	}

	nextItems, err := s.carryItemsForward(ctx, period.Items, sub.ID)
	if err != nil {
		return err
	}

	next := &model.BillingPeriod{
		SubscriptionID: sub.ID,
		StartDate:      nextStart,
		EndDate:        nextEnd,
		Status:         model.BillingPeriodStatusActive,
		Livemode:       sub.Livemode,
	}
	nextRun := &model.BillingRun{
		ScheduledFor: nextEnd,
		Status:       model.BillingRunStatusScheduled,
		Livemode:     sub.Livemode,
	}

	if err := s.periodRepo.CompleteAndRollOver(ctx, period.ID, next, nextItems, nextRun); err != nil {
		return fmt.Errorf("failed to roll billing period over: %w", err)
	}

	s.logger.Info("billing period rolled over",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("completed_period_id", period.ID.String()),
		zap.String("next_period_id", next.ID.String()),
		zap.Time("next_start", nextStart),
		zap.Time("next_end", nextEnd))
	return nil
}

// EscalatePastDue flags the period past-due and moves the subscription from
// its current collection status to the next escalation step.
func (s *BillingPeriodService) EscalatePastDue(ctx context.Context, periodID uuid.UUID, sub *model.Subscription) error {
	target := model.SubscriptionStatusPastDue
	if sub.Status == model.SubscriptionStatusPastDue {
		target = model.SubscriptionStatusUnpaid
	}
	if !sub.Status.CanTransitionTo(target) {
		return fmt.Errorf("cannot escalate subscription in status %s to %s: %w", sub.Status, target, domainErrors.ErrInvariantViolation)
	}
	if err := s.periodRepo.MarkPastDue(ctx, periodID, target); err != nil {
		return fmt.Errorf("failed to mark billing period past due: %w", err)
	}
	s.logger.Warn("billing period past due",
		zap.String("billing_period_id", periodID.String()),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("subscription_status", string(target)))
	return nil
}

// carryItemsForward copies the settled period's items into the next period,
// keeping a redemption reference only while its frozen terms still apply.
func (s *BillingPeriodService) carryItemsForward(ctx context.Context, items []model.BillingPeriodItem, subscriptionID uuid.UUID) ([]model.BillingPeriodItem, error) {
	next := make([]model.BillingPeriodItem, 0, len(items))
	for i := range items {
		item := model.BillingPeriodItem{
			Name:                 items[i].Name,
			Description:          items[i].Description,
			Quantity:             items[i].Quantity,
			UnitPrice:            items[i].UnitPrice,
			DiscountRedemptionID: items[i].DiscountRedemptionID,
		}
		if item.DiscountRedemptionID != nil {
			keep, err := s.redemptionStillApplies(ctx, *item.DiscountRedemptionID, subscriptionID)
			if err != nil {
				return nil, err
			}
			if !keep {
				item.DiscountRedemptionID = nil
			}
		}
		next = append(next, item)
	}
	return next, nil
}

func (s *BillingPeriodService) redemptionStillApplies(ctx context.Context, redemptionID, subscriptionID uuid.UUID) (bool, error) {
	redemption, err := s.purchaseRepo.GetRedemption(ctx, redemptionID)
	if err != nil {
		return false, fmt.Errorf("failed to load discount redemption: %w", err)
	}
	if redemption == nil {
		return false, nil
	}

	switch redemption.Duration {
	case model.DiscountDurationForever:
		return true, nil
	case model.DiscountDurationOnce:
		return false, nil
	case model.DiscountDurationNumberOfPayments:
		if redemption.NumberOfPayments == nil {
			return false, nil
		}
		settled, err := s.countSettledPeriods(ctx, subscriptionID)
		if err != nil {
			return false, err
		}
		// The period being closed counts as one settled payment already.
		return settled+1 < *redemption.NumberOfPayments, nil
	default:
		return false, nil
	}
}

func (s *BillingPeriodService) countSettledPeriods(ctx context.Context, subscriptionID uuid.UUID) (int, error) {
	periods, err := s.periodRepo.ListBySubscription(ctx, subscriptionID)
	if err != nil {
		return 0, fmt.Errorf("failed to list billing periods: %w", err)
	}
	count := 0
	for _, p := range periods {
		if p.Status == model.BillingPeriodStatusCompleted {
			count++
		}
	}
	return count, nil
}
