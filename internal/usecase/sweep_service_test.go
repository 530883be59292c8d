package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/billing-engine/internal/domain/dto"
	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
	"github.com/wekeepgrowing/billing-engine/internal/usecase"
)

type sweepFixture struct {
	runRepo      *MockBillingRunRepository
	subRepo      *MockSubscriptionRepository
	checkoutRepo *MockCheckoutRepository
	periodRepo   *MockBillingPeriodRepository
	service      *usecase.SweepService
}

func newSweepFixture() *sweepFixture {
	f := &sweepFixture{
		runRepo:      new(MockBillingRunRepository),
		subRepo:      new(MockSubscriptionRepository),
		checkoutRepo: new(MockCheckoutRepository),
		periodRepo:   new(MockBillingPeriodRepository),
	}
	logger := zap.NewNop()
	periodService := usecase.NewBillingPeriodService(f.periodRepo, f.runRepo, new(MockPurchaseRepository), logger)
	runService := usecase.NewBillingRunService(
		f.runRepo, f.periodRepo, f.subRepo, new(MockPaymentRepository), new(MockPurchaseRepository),
		new(MockCatalogRepository), new(MockPaymentProcessor),
		usecase.NewFeeCalculator(), usecase.NoTax{}, periodService, logger,
	)
	subService := usecase.NewSubscriptionService(f.subRepo, f.periodRepo, logger)
	f.service = usecase.NewSweepService(f.runRepo, f.subRepo, f.checkoutRepo, runService, subService, logger)
	return f
}

func TestSweepService_FinalizeDueCancellations(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	from := now.Add(-10 * time.Minute)

	t.Run("finalizes date-scheduled subscriptions in the window", func(t *testing.T) {
		f := newSweepFixture()

		scheduledAt := now.Add(-time.Minute)
		sub := testSubscription(model.SubscriptionStatusCancellationScheduled)
		sub.CancelScheduledAt = &scheduledAt

		f.subRepo.On("ListScheduledForCancellation", ctx, from, now, false).
			Return([]*model.Subscription{sub}, nil)
		f.subRepo.On("ListPendingCancellations", ctx, now, false).
			Return([]*model.Subscription{}, nil)
		f.subRepo.On("ListScheduledForCancellation", ctx, from, now, true).
			Return([]*model.Subscription{}, nil)
		f.subRepo.On("ListPendingCancellations", ctx, now, true).
			Return([]*model.Subscription{}, nil)

		f.subRepo.On("GetWithPeriods", ctx, sub.ID).Return(sub, []*model.BillingPeriod{}, nil)
		f.subRepo.On("ApplyCancellation", ctx, mock.AnythingOfType("*dto.CancellationChange")).Return(nil)

		finalized, err := f.service.FinalizeDueCancellations(ctx, from, now)
		assert.NoError(t, err)
		assert.Equal(t, 1, finalized)
		f.subRepo.AssertExpectations(t)
	})

	t.Run("finalizes period-driven cancellations once the marked period lapses", func(t *testing.T) {
		f := newSweepFixture()

		sub := testSubscription(model.SubscriptionStatusCancellationScheduled)
		lapsed := &model.BillingPeriod{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			StartDate:      now.Add(-35 * 24 * time.Hour),
			EndDate:        now.Add(-2 * time.Hour),
			Status:         model.BillingPeriodStatusScheduledToCancel,
		}

		f.subRepo.On("ListScheduledForCancellation", ctx, from, now, false).
			Return([]*model.Subscription{}, nil)
		f.subRepo.On("ListPendingCancellations", ctx, now, false).
			Return([]*model.Subscription{sub}, nil)
		f.subRepo.On("ListScheduledForCancellation", ctx, from, now, true).
			Return([]*model.Subscription{}, nil)
		f.subRepo.On("ListPendingCancellations", ctx, now, true).
			Return([]*model.Subscription{}, nil)

		f.subRepo.On("GetWithPeriods", ctx, sub.ID).
			Return(sub, []*model.BillingPeriod{lapsed}, nil)

		var applied *dto.CancellationChange
		f.subRepo.On("ApplyCancellation", ctx, mock.AnythingOfType("*dto.CancellationChange")).
			Run(func(args mock.Arguments) {
				applied = args.Get(1).(*dto.CancellationChange)
			}).
			Return(nil)

		finalized, err := f.service.FinalizeDueCancellations(ctx, from, now)
		assert.NoError(t, err)
		assert.Equal(t, 1, finalized)

		assert.Equal(t, model.SubscriptionStatusCanceled, applied.Status)
		assert.NotNil(t, applied.CanceledAt)
		assert.Len(t, applied.PeriodPatches, 1)
		assert.Equal(t, model.BillingPeriodStatusCompleted, applied.PeriodPatches[0].Status)
	})

	t.Run("one failed cancellation does not starve the rest", func(t *testing.T) {
		f := newSweepFixture()

		bad := testSubscription(model.SubscriptionStatusCancellationScheduled)
		good := testSubscription(model.SubscriptionStatusCancellationScheduled)

		f.subRepo.On("ListScheduledForCancellation", ctx, from, now, false).
			Return([]*model.Subscription{bad, good}, nil)
		f.subRepo.On("ListPendingCancellations", ctx, now, false).
			Return([]*model.Subscription{}, nil)
		f.subRepo.On("ListScheduledForCancellation", ctx, from, now, true).
			Return([]*model.Subscription{}, nil)
		f.subRepo.On("ListPendingCancellations", ctx, now, true).
			Return([]*model.Subscription{}, nil)

		f.subRepo.On("GetWithPeriods", ctx, bad.ID).Return(nil, nil, assert.AnError)
		f.subRepo.On("GetWithPeriods", ctx, good.ID).Return(good, []*model.BillingPeriod{}, nil)
		f.subRepo.On("ApplyCancellation", ctx, mock.AnythingOfType("*dto.CancellationChange")).Return(nil)

		finalized, err := f.service.FinalizeDueCancellations(ctx, from, now)
		assert.NoError(t, err)
		assert.Equal(t, 1, finalized)
	})
}
