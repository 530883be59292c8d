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
	"github.com/wekeepgrowing/billing-engine/internal/domain/repository"
)

// SubscriptionService drives the subscription state machine. It computes
// cancellation change-sets as pure data and hands them to the repository,
// which applies them atomically.
type SubscriptionService struct {
	subscriptionRepo repository.SubscriptionRepository
	periodRepo       repository.BillingPeriodRepository
	logger           *zap.Logger
	now              func() time.Time
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(
	subscriptionRepo repository.SubscriptionRepository,
	periodRepo repository.BillingPeriodRepository,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subscriptionRepo: subscriptionRepo,
		periodRepo:       periodRepo,
		logger:           logger,
		now:              time.Now,
	}
}

// GetSubscription loads a subscription within the actor's livemode partition.
func (s *SubscriptionService) GetSubscription(ctx context.Context, scope ActorScope, id uuid.UUID) (*model.Subscription, error) {
	sub, err := s.subscriptionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub == nil || sub.Livemode != scope.Livemode {
		return nil, domainErrors.ErrSubscriptionNotFound
	}
	return sub, nil
}

// CancelImmediately ends the subscription now: the straddling period is
// truncated to the cancellation instant, future periods are canceled outright,
// and already-closed periods stay untouched. Cancelling an already-terminal
// subscription is a no-op.
func (s *SubscriptionService) CancelImmediately(ctx context.Context, scope ActorScope, subscriptionID uuid.UUID) error {
	sub, periods, err := s.subscriptionRepo.GetWithPeriods(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to load subscription for cancellation: %w", err)
	}
	if sub == nil || sub.Livemode != scope.Livemode {
		return domainErrors.ErrSubscriptionNotFound
	}

	if sub.Status.IsTerminal() {
		s.logger.Info("cancellation requested for terminal subscription, nothing to do",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("status", string(sub.Status)))
		return nil
	}

	now := s.now()
	if err := validateCancellationDate(periods, now); err != nil {
		return err
	}

	if !sub.Status.CanTransitionTo(model.SubscriptionStatusCanceled) {
		return fmt.Errorf("cannot cancel subscription in status %s: %w", sub.Status, domainErrors.ErrInvariantViolation)
	}

	change := buildCancellationChange(sub, periods, now)
	if err := s.subscriptionRepo.ApplyCancellation(ctx, change); err != nil {
		return fmt.Errorf("failed to apply cancellation: %w", err)
	}

	s.logger.Info("subscription canceled",
		zap.String("subscription_id", sub.ID.String()),
		zap.Time("canceled_at", now),
		zap.Int("periods_patched", len(change.PeriodPatches)))
	return nil
}

// ScheduleCancellation arranges a future cancellation. End-of-period timing
// records the scheduled date on the subscription; a caller-supplied future
// date does not, and is resolvable only through the affected periods.
func (s *SubscriptionService) ScheduleCancellation(ctx context.Context, scope ActorScope, subscriptionID uuid.UUID, arrangement dto.CancellationArrangement) error {
	if arrangement.Timing == dto.CancellationTimingImmediately {
		return s.CancelImmediately(ctx, scope, subscriptionID)
	}

	sub, periods, err := s.subscriptionRepo.GetWithPeriods(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to load subscription for cancellation: %w", err)
	}
	if sub == nil || sub.Livemode != scope.Livemode {
		return domainErrors.ErrSubscriptionNotFound
	}

	if sub.Status.IsTerminal() {
		s.logger.Info("cancellation requested for terminal subscription, nothing to do",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("status", string(sub.Status)))
		return nil
	}

	now := s.now()
	var effectiveAt time.Time
	switch arrangement.Timing {
	case dto.CancellationTimingEndOfCurrentBillingPeriod:
		current := currentPeriodOf(periods, now)
		if current == nil {
			return fmt.Errorf("subscription %s has no current billing period: %w", sub.ID, domainErrors.ErrInvariantViolation)
		}
		effectiveAt = current.EndDate
	case dto.CancellationTimingFutureDate:
		if arrangement.FutureDate == nil {
			return fmt.Errorf("future_date cancellation requires a date")
		}
		effectiveAt = *arrangement.FutureDate
	default:
		return fmt.Errorf("unknown cancellation timing %q", arrangement.Timing)
	}

	if err := validateCancellationDate(periods, effectiveAt); err != nil {
		return err
	}

	if !sub.Status.CanTransitionTo(model.SubscriptionStatusCancellationScheduled) {
		return fmt.Errorf("cannot schedule cancellation in status %s: %w", sub.Status, domainErrors.ErrInvariantViolation)
	}

	change := &dto.CancellationChange{
		SubscriptionID: sub.ID,
		Status:         model.SubscriptionStatusCancellationScheduled,
	}
	if arrangement.Timing == dto.CancellationTimingEndOfCurrentBillingPeriod {
		change.CancelScheduledAt = &effectiveAt
	}
	for _, period := range periods {
		if period.Status.IsClosed() {
			continue
		}
		if !period.StartDate.Before(effectiveAt) {
			change.PeriodPatches = append(change.PeriodPatches, dto.PeriodPatch{
				PeriodID: period.ID,
				Status:   model.BillingPeriodStatusCanceled,
			})
			continue
		}
		// Periods ending before the effective date keep running and lapse
		// naturally; the one the date falls inside is marked, not truncated,
		// so the customer keeps what was paid for.
		if !period.EndDate.Before(effectiveAt) {
			change.PeriodPatches = append(change.PeriodPatches, dto.PeriodPatch{
				PeriodID: period.ID,
				Status:   model.BillingPeriodStatusScheduledToCancel,
			})
		}
	}

	if err := s.subscriptionRepo.ApplyCancellation(ctx, change); err != nil {
		return fmt.Errorf("failed to schedule cancellation: %w", err)
	}

	s.logger.Info("subscription cancellation scheduled",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("timing", string(arrangement.Timing)),
		zap.Time("effective_at", effectiveAt))
	return nil
}

// Activate transitions an incomplete subscription to active, or trialing when
// a trial is still running.
func (s *SubscriptionService) Activate(ctx context.Context, sub *model.Subscription) (model.SubscriptionStatus, error) {
	target := model.SubscriptionStatusActive
	if sub.TrialEnd != nil && sub.TrialEnd.After(s.now()) {
		target = model.SubscriptionStatusTrialing
	}
	if !sub.Status.CanTransitionTo(target) {
		return sub.Status, fmt.Errorf("cannot activate subscription in status %s: %w", sub.Status, domainErrors.ErrInvariantViolation)
	}
	if err := s.subscriptionRepo.UpdateStatus(ctx, sub.ID, sub.Status, target); err != nil {
		return sub.Status, fmt.Errorf("failed to activate subscription: %w", err)
	}
	sub.Status = target
	return target, nil
}

// buildCancellationChange computes the immediate-cancellation change-set.
func buildCancellationChange(sub *model.Subscription, periods []*model.BillingPeriod, at time.Time) *dto.CancellationChange {
	canceledAt := at
	change := &dto.CancellationChange{
		SubscriptionID: sub.ID,
		Status:         model.SubscriptionStatusCanceled,
		CanceledAt:     &canceledAt,
	}

	for _, period := range periods {
		if period.Status.IsClosed() {
			continue
		}
		switch {
		case period.StartDate.After(at) || period.StartDate.Equal(at):
			change.PeriodPatches = append(change.PeriodPatches, dto.PeriodPatch{
				PeriodID: period.ID,
				Status:   model.BillingPeriodStatusCanceled,
			})
		case period.Contains(at):
			end := at
			change.PeriodPatches = append(change.PeriodPatches, dto.PeriodPatch{
				PeriodID: period.ID,
				Status:   model.BillingPeriodStatusCompleted,
				EndDate:  &end,
			})
		case !period.EndDate.After(at):
			// A period that fully elapsed while still open, such as one
			// marked scheduled_to_cancel whose boundary has passed. It ran
			// its course, so it completes without truncation.
			change.PeriodPatches = append(change.PeriodPatches, dto.PeriodPatch{
				PeriodID: period.ID,
				Status:   model.BillingPeriodStatusCompleted,
			})
		}
	}
	return change
}

// validateCancellationDate rejects effective dates that precede the earliest
// period start. No clamping: the caller's date is wrong, not adjustable.
func validateCancellationDate(periods []*model.BillingPeriod, at time.Time) error {
	if len(periods) == 0 {
		return nil
	}
	earliest := periods[0].StartDate
	for _, p := range periods[1:] {
		if p.StartDate.Before(earliest) {
			earliest = p.StartDate
		}
	}
	if at.Before(earliest) {
		return fmt.Errorf("cancellation date %s precedes first period start %s: %w",
			at.Format(time.RFC3339), earliest.Format(time.RFC3339), domainErrors.ErrInvalidTimeRange)
	}
	return nil
}

func currentPeriodOf(periods []*model.BillingPeriod, at time.Time) *model.BillingPeriod {
	for _, p := range periods {
		if p.Status.IsClosed() {
			continue
		}
		if p.Contains(at) {
			return p
		}
	}
	return nil
}
