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
	domainErrors "github.com/wekeepgrowing/billing-engine/internal/domain/errors"
	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
	"github.com/wekeepgrowing/billing-engine/internal/usecase"
)

func testSubscription(status model.SubscriptionStatus) *model.Subscription {
	return &model.Subscription{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		CustomerID:     uuid.New(),
		VariantID:      uuid.New(),
		Status:         status,
		IntervalUnit:   model.IntervalUnitMonth,
		IntervalCount:  1,
		Livemode:       false,
	}
}

func TestSubscriptionService_GetSubscription(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	scope := usecase.SystemScope(false)

	t.Run("returns the subscription", func(t *testing.T) {
		subRepo := new(MockSubscriptionRepository)
		periodRepo := new(MockBillingPeriodRepository)
		service := usecase.NewSubscriptionService(subRepo, periodRepo, logger)

		sub := testSubscription(model.SubscriptionStatusActive)
		subRepo.On("GetByID", ctx, sub.ID).Return(sub, nil)

		result, err := service.GetSubscription(ctx, scope, sub.ID)
		assert.NoError(t, err)
		assert.Equal(t, sub.ID, result.ID)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		subRepo := new(MockSubscriptionRepository)
		periodRepo := new(MockBillingPeriodRepository)
		service := usecase.NewSubscriptionService(subRepo, periodRepo, logger)

		id := uuid.New()
		subRepo.On("GetByID", ctx, id).Return(nil, nil)

		_, err := service.GetSubscription(ctx, scope, id)
		assert.ErrorIs(t, err, domainErrors.ErrSubscriptionNotFound)
	})

	t.Run("livemode mismatch is not found", func(t *testing.T) {
		subRepo := new(MockSubscriptionRepository)
		periodRepo := new(MockBillingPeriodRepository)
		service := usecase.NewSubscriptionService(subRepo, periodRepo, logger)

		sub := testSubscription(model.SubscriptionStatusActive)
		sub.Livemode = true
		subRepo.On("GetByID", ctx, sub.ID).Return(sub, nil)

		_, err := service.GetSubscription(ctx, scope, sub.ID)
		assert.ErrorIs(t, err, domainErrors.ErrSubscriptionNotFound)
	})
}

func TestSubscriptionService_CancelImmediately(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	scope := usecase.SystemScope(false)
	now := time.Now()

	t.Run("truncates the straddling period and cancels future ones", func(t *testing.T) {
		subRepo := new(MockSubscriptionRepository)
		periodRepo := new(MockBillingPeriodRepository)
		service := usecase.NewSubscriptionService(subRepo, periodRepo, logger)

		sub := testSubscription(model.SubscriptionStatusActive)
		closed := &model.BillingPeriod{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			StartDate:      now.Add(-60 * 24 * time.Hour),
			EndDate:        now.Add(-30 * 24 * time.Hour),
			Status:         model.BillingPeriodStatusCompleted,
		}
		current := &model.BillingPeriod{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			StartDate:      now.Add(-15 * 24 * time.Hour),
			EndDate:        now.Add(15 * 24 * time.Hour),
			Status:         model.BillingPeriodStatusActive,
		}
		future := &model.BillingPeriod{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			StartDate:      now.Add(15 * 24 * time.Hour),
			EndDate:        now.Add(45 * 24 * time.Hour),
			Status:         model.BillingPeriodStatusUpcoming,
		}

		subRepo.On("GetWithPeriods", ctx, sub.ID).
			Return(sub, []*model.BillingPeriod{closed, current, future}, nil)

		var applied *dto.CancellationChange
		subRepo.On("ApplyCancellation", ctx, mock.AnythingOfType("*dto.CancellationChange")).
			Run(func(args mock.Arguments) {
				applied = args.Get(1).(*dto.CancellationChange)
			}).
			Return(nil)

		err := service.CancelImmediately(ctx, scope, sub.ID)
		assert.NoError(t, err)

		assert.Equal(t, model.SubscriptionStatusCanceled, applied.Status)
		assert.NotNil(t, applied.CanceledAt)
		assert.Nil(t, applied.CancelScheduledAt)
		assert.Len(t, applied.PeriodPatches, 2)

		patches := map[uuid.UUID]dto.PeriodPatch{}
		for _, p := range applied.PeriodPatches {
			patches[p.PeriodID] = p
		}
		assert.Equal(t, model.BillingPeriodStatusCompleted, patches[current.ID].Status)
		assert.NotNil(t, patches[current.ID].EndDate, "straddling period must be truncated")
		assert.Equal(t, model.BillingPeriodStatusCanceled, patches[future.ID].Status)
		assert.Nil(t, patches[future.ID].EndDate)

		subRepo.AssertExpectations(t)
	})

	t.Run("lapsed scheduled_to_cancel period completes without truncation", func(t *testing.T) {
		subRepo := new(MockSubscriptionRepository)
		periodRepo := new(MockBillingPeriodRepository)
		service := usecase.NewSubscriptionService(subRepo, periodRepo, logger)

		sub := testSubscription(model.SubscriptionStatusCancellationScheduled)
		lapsed := &model.BillingPeriod{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			StartDate:      now.Add(-35 * 24 * time.Hour),
			EndDate:        now.Add(-5 * 24 * time.Hour),
			Status:         model.BillingPeriodStatusScheduledToCancel,
		}

		subRepo.On("GetWithPeriods", ctx, sub.ID).
			Return(sub, []*model.BillingPeriod{lapsed}, nil)

		var applied *dto.CancellationChange
		subRepo.On("ApplyCancellation", ctx, mock.AnythingOfType("*dto.CancellationChange")).
			Run(func(args mock.Arguments) {
				applied = args.Get(1).(*dto.CancellationChange)
			}).
			Return(nil)

		err := service.CancelImmediately(ctx, scope, sub.ID)
		assert.NoError(t, err)

		assert.Equal(t, model.SubscriptionStatusCanceled, applied.Status)
		assert.NotNil(t, applied.CanceledAt)
		assert.Len(t, applied.PeriodPatches, 1)
		assert.Equal(t, model.BillingPeriodStatusCompleted, applied.PeriodPatches[0].Status)
		assert.Nil(t, applied.PeriodPatches[0].EndDate, "a period that ran its course keeps its end date")
	})

	t.Run("terminal subscription is a no-op", func(t *testing.T) {
		subRepo := new(MockSubscriptionRepository)
		periodRepo := new(MockBillingPeriodRepository)
		service := usecase.NewSubscriptionService(subRepo, periodRepo, logger)

		sub := testSubscription(model.SubscriptionStatusCanceled)
		subRepo.On("GetWithPeriods", ctx, sub.ID).Return(sub, []*model.BillingPeriod{}, nil)

		err := service.CancelImmediately(ctx, scope, sub.ID)
		assert.NoError(t, err)
		subRepo.AssertNotCalled(t, "ApplyCancellation", mock.Anything, mock.Anything)
	})
}

func TestSubscriptionService_ScheduleCancellation(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	scope := usecase.SystemScope(false)
	now := time.Now()

	t.Run("end of period records the scheduled date", func(t *testing.T) {
		subRepo := new(MockSubscriptionRepository)
		periodRepo := new(MockBillingPeriodRepository)
		service := usecase.NewSubscriptionService(subRepo, periodRepo, logger)

		sub := testSubscription(model.SubscriptionStatusActive)
		current := &model.BillingPeriod{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			StartDate:      now.Add(-10 * 24 * time.Hour),
			EndDate:        now.Add(20 * 24 * time.Hour),
			Status:         model.BillingPeriodStatusActive,
		}

		subRepo.On("GetWithPeriods", ctx, sub.ID).
			Return(sub, []*model.BillingPeriod{current}, nil)

		var applied *dto.CancellationChange
		subRepo.On("ApplyCancellation", ctx, mock.AnythingOfType("*dto.CancellationChange")).
			Run(func(args mock.Arguments) {
				applied = args.Get(1).(*dto.CancellationChange)
			}).
			Return(nil)

		err := service.ScheduleCancellation(ctx, scope, sub.ID, dto.CancellationArrangement{
			Timing: dto.CancellationTimingEndOfCurrentBillingPeriod,
		})
		assert.NoError(t, err)

		assert.Equal(t, model.SubscriptionStatusCancellationScheduled, applied.Status)
		assert.NotNil(t, applied.CancelScheduledAt)
		assert.True(t, applied.CancelScheduledAt.Equal(current.EndDate))
		assert.Len(t, applied.PeriodPatches, 1)
		assert.Equal(t, model.BillingPeriodStatusScheduledToCancel, applied.PeriodPatches[0].Status)
	})

	t.Run("future date does not record a scheduled date", func(t *testing.T) {
		subRepo := new(MockSubscriptionRepository)
		periodRepo := new(MockBillingPeriodRepository)
		service := usecase.NewSubscriptionService(subRepo, periodRepo, logger)

		sub := testSubscription(model.SubscriptionStatusActive)
		current := &model.BillingPeriod{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			StartDate:      now.Add(-10 * 24 * time.Hour),
			EndDate:        now.Add(20 * 24 * time.Hour),
			Status:         model.BillingPeriodStatusActive,
		}
		futureDate := now.Add(10 * 24 * time.Hour)

		subRepo.On("GetWithPeriods", ctx, sub.ID).
			Return(sub, []*model.BillingPeriod{current}, nil)

		var applied *dto.CancellationChange
		subRepo.On("ApplyCancellation", ctx, mock.AnythingOfType("*dto.CancellationChange")).
			Run(func(args mock.Arguments) {
				applied = args.Get(1).(*dto.CancellationChange)
			}).
			Return(nil)

		err := service.ScheduleCancellation(ctx, scope, sub.ID, dto.CancellationArrangement{
			Timing:     dto.CancellationTimingFutureDate,
			FutureDate: &futureDate,
		})
		assert.NoError(t, err)
		assert.Nil(t, applied.CancelScheduledAt)
		assert.Len(t, applied.PeriodPatches, 1)
		assert.Equal(t, model.BillingPeriodStatusScheduledToCancel, applied.PeriodPatches[0].Status)
	})

	t.Run("date before any period start is rejected", func(t *testing.T) {
		subRepo := new(MockSubscriptionRepository)
		periodRepo := new(MockBillingPeriodRepository)
		service := usecase.NewSubscriptionService(subRepo, periodRepo, logger)

		sub := testSubscription(model.SubscriptionStatusActive)
		current := &model.BillingPeriod{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			StartDate:      now.Add(-10 * 24 * time.Hour),
			EndDate:        now.Add(20 * 24 * time.Hour),
			Status:         model.BillingPeriodStatusActive,
		}
		tooEarly := now.Add(-30 * 24 * time.Hour)

		subRepo.On("GetWithPeriods", ctx, sub.ID).
			Return(sub, []*model.BillingPeriod{current}, nil)

		err := service.ScheduleCancellation(ctx, scope, sub.ID, dto.CancellationArrangement{
			Timing:     dto.CancellationTimingFutureDate,
			FutureDate: &tooEarly,
		})
		assert.ErrorIs(t, err, domainErrors.ErrInvalidTimeRange)
		subRepo.AssertNotCalled(t, "ApplyCancellation", mock.Anything, mock.Anything)
	})

	t.Run("immediately delegates to immediate cancellation", func(t *testing.T) {
		subRepo := new(MockSubscriptionRepository)
		periodRepo := new(MockBillingPeriodRepository)
		service := usecase.NewSubscriptionService(subRepo, periodRepo, logger)

		sub := testSubscription(model.SubscriptionStatusActive)
		subRepo.On("GetWithPeriods", ctx, sub.ID).Return(sub, []*model.BillingPeriod{}, nil)

		var applied *dto.CancellationChange
		subRepo.On("ApplyCancellation", ctx, mock.AnythingOfType("*dto.CancellationChange")).
			Run(func(args mock.Arguments) {
				applied = args.Get(1).(*dto.CancellationChange)
			}).
			Return(nil)

		err := service.ScheduleCancellation(ctx, scope, sub.ID, dto.CancellationArrangement{
			Timing: dto.CancellationTimingImmediately,
		})
		assert.NoError(t, err)
		assert.Equal(t, model.SubscriptionStatusCanceled, applied.Status)
	})
}

func TestSubscriptionService_Activate(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	t.Run("incomplete becomes active without a trial", func(t *testing.T) {
		subRepo := new(MockSubscriptionRepository)
		periodRepo := new(MockBillingPeriodRepository)
		service := usecase.NewSubscriptionService(subRepo, periodRepo, logger)

		sub := testSubscription(model.SubscriptionStatusIncomplete)
		subRepo.On("UpdateStatus", ctx, sub.ID, model.SubscriptionStatusIncomplete, model.SubscriptionStatusActive).
			Return(nil)

		status, err := service.Activate(ctx, sub)
		assert.NoError(t, err)
		assert.Equal(t, model.SubscriptionStatusActive, status)
		assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	})

	t.Run("incomplete becomes trialing while trial is running", func(t *testing.T) {
		subRepo := new(MockSubscriptionRepository)
		periodRepo := new(MockBillingPeriodRepository)
		service := usecase.NewSubscriptionService(subRepo, periodRepo, logger)

		sub := testSubscription(model.SubscriptionStatusIncomplete)
		trialEnd := time.Now().Add(7 * 24 * time.Hour)
		sub.TrialEnd = &trialEnd
		subRepo.On("UpdateStatus", ctx, sub.ID, model.SubscriptionStatusIncomplete, model.SubscriptionStatusTrialing).
			Return(nil)

		status, err := service.Activate(ctx, sub)
		assert.NoError(t, err)
		assert.Equal(t, model.SubscriptionStatusTrialing, status)
	})

	t.Run("canceled cannot activate", func(t *testing.T) {
		subRepo := new(MockSubscriptionRepository)
		periodRepo := new(MockBillingPeriodRepository)
		service := usecase.NewSubscriptionService(subRepo, periodRepo, logger)

		sub := testSubscription(model.SubscriptionStatusCanceled)

		_, err := service.Activate(ctx, sub)
		assert.ErrorIs(t, err, domainErrors.ErrInvariantViolation)
		subRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
