package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/billing-engine/internal/domain/repository"
)

// DefaultSweepBatchSize bounds how many due billing runs one sweep picks up.
const DefaultSweepBatchSize = 100

// SweepService is what the scheduler entrypoints call. Each sweep covers both
// livemode partitions and treats per-record failures as log-and-continue so
// one bad record never starves the rest of the batch.
type SweepService struct {
	runRepo      repository.BillingRunRepository
	subRepo      repository.SubscriptionRepository
	checkoutRepo repository.CheckoutRepository
	runService   *BillingRunService
	subService   *SubscriptionService
	logger       *zap.Logger
	batchSize    int
	now          func() time.Time
}

// NewSweepService creates a new sweep service
func NewSweepService(
	runRepo repository.BillingRunRepository,
	subRepo repository.SubscriptionRepository,
	checkoutRepo repository.CheckoutRepository,
	runService *BillingRunService,
	subService *SubscriptionService,
	logger *zap.Logger,
) *SweepService {
	return &SweepService{
		runRepo:      runRepo,
		subRepo:      subRepo,
		checkoutRepo: checkoutRepo,
		runService:   runService,
		subService:   subService,
		logger:       logger,
		batchSize:    DefaultSweepBatchSize,
		now:          time.Now,
	}
}

// RunDueBillingRuns executes every scheduled run whose due time has passed.
// Returns how many runs were attempted.
func (s *SweepService) RunDueBillingRuns(ctx context.Context) (int, error) {
	attempted := 0
	for _, livemode := range []bool{false, true} {
		runs, err := s.runRepo.GetDue(ctx, s.now(), livemode, s.batchSize)
		if err != nil {
			return attempted, fmt.Errorf("failed to list due billing runs: %w", err)
		}
		for _, run := range runs {
			attempted++
			if err := s.runService.ExecuteRun(ctx, run.ID); err != nil {
				s.logger.Error("billing run execution failed",
					zap.String("billing_run_id", run.ID.String()),
					zap.Bool("livemode", livemode),
					zap.Error(err))
			}
		}
	}
	return attempted, nil
}

// FinalizeDueCancellations ends subscriptions whose scheduled cancellation
// date fell inside [from, to), plus subscriptions arranged to cancel at a
// period boundary once their last marked period has lapsed. The half-open
// window means a date-scheduled subscription is picked up by exactly one
// sweep even when sweeps overlap a boundary.
func (s *SweepService) FinalizeDueCancellations(ctx context.Context, from, to time.Time) (int, error) {
	finalized := 0
	for _, livemode := range []bool{false, true} {
		subs, err := s.subRepo.ListScheduledForCancellation(ctx, from, to, livemode)
		if err != nil {
			return finalized, fmt.Errorf("failed to list scheduled cancellations: %w", err)
		}
		pending, err := s.subRepo.ListPendingCancellations(ctx, to, livemode)
		if err != nil {
			return finalized, fmt.Errorf("failed to list pending cancellations: %w", err)
		}
		for _, sub := range append(subs, pending...) {
			if err := s.subService.CancelImmediately(ctx, SystemScope(livemode), sub.ID); err != nil {
				s.logger.Error("scheduled cancellation failed",
					zap.String("subscription_id", sub.ID.String()),
					zap.Bool("livemode", livemode),
					zap.Error(err))
				continue
			}
			finalized++
		}
	}
	return finalized, nil
}

// PurgeExpiredSessions deletes lapsed checkout sessions and their fee
// snapshots.
func (s *SweepService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	purged, err := s.checkoutRepo.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	if purged > 0 {
		s.logger.Info("expired purchase sessions purged", zap.Int64("count", purged))
	}
	return purged, nil
}
