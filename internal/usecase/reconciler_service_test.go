package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
	"github.com/wekeepgrowing/billing-engine/internal/usecase"
)

type reconcilerFixture struct {
	paymentRepo  *MockPaymentRepository
	purchaseRepo *MockPurchaseRepository
	subRepo      *MockSubscriptionRepository
	runRepo      *MockBillingRunRepository
	periodRepo   *MockBillingPeriodRepository
	checkoutRepo *MockCheckoutRepository
	catalogRepo  *MockCatalogRepository
	service      *usecase.ReconcilerService
}

func newReconcilerFixture() *reconcilerFixture {
	f := &reconcilerFixture{
		paymentRepo:  new(MockPaymentRepository),
		purchaseRepo: new(MockPurchaseRepository),
		subRepo:      new(MockSubscriptionRepository),
		runRepo:      new(MockBillingRunRepository),
		periodRepo:   new(MockBillingPeriodRepository),
		checkoutRepo: new(MockCheckoutRepository),
		catalogRepo:  new(MockCatalogRepository),
	}
	logger := zap.NewNop()
	periodService := usecase.NewBillingPeriodService(f.periodRepo, f.runRepo, f.purchaseRepo, logger)
	f.service = usecase.NewReconcilerService(
		f.paymentRepo, f.purchaseRepo, f.subRepo, f.runRepo, f.periodRepo,
		f.checkoutRepo, f.catalogRepo, periodService, usecase.NopNotifier{}, logger,
	)
	return f
}

func recurringPurchase() *model.Purchase {
	unit := model.IntervalUnitMonth
	count := 1
	intentID := "pi_first"
	return &model.Purchase{
		ID:                    uuid.New(),
		OrganizationID:        uuid.New(),
		CustomerID:            uuid.New(),
		VariantID:             uuid.New(),
		Name:                  "Pro plan",
		Status:                model.PurchaseStatusPending,
		PriceType:             model.PriceTypeSubscription,
		FirstInvoiceValue:     2500,
		IntervalUnit:          &unit,
		IntervalCount:         &count,
		StripePaymentIntentID: &intentID,
	}
}

func succeededEvent(intentID string) *usecase.PaymentSucceededEvent {
	return &usecase.PaymentSucceededEvent{
		EventID:         "evt_1",
		PaymentIntentID: intentID,
		ChargeID:        "ch_1",
		Amount:          2500,
		Currency:        "USD",
		OccurredAt:      time.Now(),
	}
}

func TestReconcilerService_HandlePaymentSucceeded(t *testing.T) {
	ctx := context.Background()

	t.Run("replayed event on settled payment is a no-op", func(t *testing.T) {
		f := newReconcilerFixture()

		intentID := "pi_settled"
		payment := &model.Payment{
			ID:                    uuid.New(),
			Status:                model.PaymentStatusSucceeded,
			StripePaymentIntentID: &intentID,
		}
		f.paymentRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(payment, nil)

		err := f.service.HandlePaymentSucceeded(ctx, succeededEvent(intentID))
		assert.NoError(t, err)
		f.paymentRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		f.paymentRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("first charge settles the purchase and starts the subscription", func(t *testing.T) {
		f := newReconcilerFixture()

		purchase := recurringPurchase()
		intentID := *purchase.StripePaymentIntentID

		f.paymentRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(nil, nil)
		f.purchaseRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(purchase, nil)
		f.runRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(nil, nil)

		var createdPayment *model.Payment
		f.paymentRepo.On("Create", ctx, mock.AnythingOfType("*model.Payment")).
			Run(func(args mock.Arguments) {
				createdPayment = args.Get(1).(*model.Payment)
				createdPayment.ID = uuid.New()
			}).
			Return(nil)

		f.purchaseRepo.On("Update", ctx, purchase).Return(nil)
		f.checkoutRepo.On("GetSessionByPaymentIntentID", ctx, intentID).Return(nil, nil)

		var createdSub *model.Subscription
		f.subRepo.On("Create", ctx, mock.AnythingOfType("*model.Subscription")).
			Run(func(args mock.Arguments) {
				createdSub = args.Get(1).(*model.Subscription)
				createdSub.ID = uuid.New()
			}).
			Return(nil)

		f.purchaseRepo.On("GetRedemptionByPurchase", ctx, purchase.ID).Return(nil, nil)
		f.periodRepo.On("CreateWithItems", ctx, mock.Anything, mock.Anything).Return(nil)
		f.runRepo.On("Create", ctx, mock.AnythingOfType("*model.BillingRun")).Return(nil)

		f.paymentRepo.On("NextInvoiceNumber", ctx, purchase.OrganizationID).Return("INV-2026-abc-000001", nil)
		f.paymentRepo.On("CreateInvoice", ctx, mock.AnythingOfType("*model.Invoice")).Return(nil)
		f.paymentRepo.On("Update", ctx, mock.AnythingOfType("*model.Payment")).Return(nil)

		err := f.service.HandlePaymentSucceeded(ctx, succeededEvent(intentID))
		assert.NoError(t, err)

		assert.Equal(t, model.PaymentStatusSucceeded, createdPayment.Status)
		assert.Equal(t, model.PurchaseStatusPaid, purchase.Status)
		assert.NotNil(t, purchase.PurchaseDate)
		assert.Equal(t, model.SubscriptionStatusActive, createdSub.Status)
		assert.Equal(t, purchase.CustomerID, createdSub.CustomerID)
		assert.True(t, createdSub.CurrentPeriodEnd.After(createdSub.CurrentPeriodStart))

		f.subRepo.AssertExpectations(t)
		f.periodRepo.AssertExpectations(t)
	})

	t.Run("trial purchase starts a trialing subscription", func(t *testing.T) {
		f := newReconcilerFixture()

		purchase := recurringPurchase()
		trialDays := 14
		purchase.TrialPeriodDays = &trialDays
		intentID := *purchase.StripePaymentIntentID

		f.paymentRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(nil, nil)
		f.purchaseRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(purchase, nil)
		f.runRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(nil, nil)
		f.paymentRepo.On("Create", ctx, mock.Anything).Return(nil)
		f.purchaseRepo.On("Update", ctx, purchase).Return(nil)
		f.checkoutRepo.On("GetSessionByPaymentIntentID", ctx, intentID).Return(nil, nil)

		var createdSub *model.Subscription
		f.subRepo.On("Create", ctx, mock.AnythingOfType("*model.Subscription")).
			Run(func(args mock.Arguments) {
				createdSub = args.Get(1).(*model.Subscription)
			}).
			Return(nil)

		f.purchaseRepo.On("GetRedemptionByPurchase", ctx, purchase.ID).Return(nil, nil)

		var trialFlag bool
		f.periodRepo.On("CreateWithItems", ctx, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				trialFlag = args.Get(1).(*model.BillingPeriod).TrialPeriod
			}).
			Return(nil)
		f.runRepo.On("Create", ctx, mock.Anything).Return(nil)
		f.paymentRepo.On("NextInvoiceNumber", ctx, purchase.OrganizationID).Return("INV-2026-abc-000002", nil)
		f.paymentRepo.On("CreateInvoice", ctx, mock.Anything).Return(nil)
		f.paymentRepo.On("Update", ctx, mock.Anything).Return(nil)

		err := f.service.HandlePaymentSucceeded(ctx, succeededEvent(intentID))
		assert.NoError(t, err)

		assert.Equal(t, model.SubscriptionStatusTrialing, createdSub.Status)
		assert.NotNil(t, createdSub.TrialEnd)
		assert.True(t, createdSub.CurrentPeriodEnd.Equal(*createdSub.TrialEnd), "trial period ends at trial end")
		assert.True(t, trialFlag)
	})

	t.Run("charge without a purchase still settles its session", func(t *testing.T) {
		f := newReconcilerFixture()

		intentID := "pi_unattached"
		session := &model.PurchaseSession{
			ID:                    uuid.New(),
			OrganizationID:        uuid.New(),
			Status:                model.PurchaseSessionStatusOpen,
			StripePaymentIntentID: &intentID,
		}

		f.paymentRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(nil, nil)
		f.purchaseRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(nil, nil)
		f.runRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(nil, nil)
		f.checkoutRepo.On("GetSessionByPaymentIntentID", ctx, intentID).Return(session, nil)

		var createdPayment *model.Payment
		f.paymentRepo.On("Create", ctx, mock.AnythingOfType("*model.Payment")).
			Run(func(args mock.Arguments) {
				createdPayment = args.Get(1).(*model.Payment)
			}).
			Return(nil)
		f.checkoutRepo.On("MarkSessionStatus", ctx, session.ID, model.PurchaseSessionStatusSucceeded).Return(nil)

		err := f.service.HandlePaymentSucceeded(ctx, succeededEvent(intentID))
		assert.NoError(t, err)

		assert.Equal(t, session.OrganizationID, createdPayment.OrganizationID, "payment stays attributed to the org")
		f.checkoutRepo.AssertExpectations(t)
	})

	t.Run("renewal charge settles the run and recovers a past_due subscription", func(t *testing.T) {
		f := newReconcilerFixture()

		sub := testSubscription(model.SubscriptionStatusPastDue)
		period := &model.BillingPeriod{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			StartDate:      time.Now().Add(-30 * 24 * time.Hour),
			EndDate:        time.Now(),
			Status:         model.BillingPeriodStatusPastDue,
		}
		intentID := "pi_renewal"
		run := &model.BillingRun{
			ID:                    uuid.New(),
			BillingPeriodID:       period.ID,
			Status:                model.BillingRunStatusSubmitted,
			AttemptNumber:         1,
			StripePaymentIntentID: &intentID,
		}
		payment := &model.Payment{
			ID:                    uuid.New(),
			OrganizationID:        sub.OrganizationID,
			Status:                model.PaymentStatusProcessing,
			Amount:                2500,
			Currency:              "USD",
			StripePaymentIntentID: &intentID,
			BillingRunID:          &run.ID,
		}

		f.paymentRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(payment, nil)
		f.purchaseRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(nil, nil)
		f.runRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(run, nil)
		f.paymentRepo.On("Update", ctx, payment).Return(nil)

		f.periodRepo.On("GetByID", ctx, period.ID).Return(period, nil)
		f.subRepo.On("GetByID", ctx, sub.ID).Return(sub, nil)
		f.runRepo.On("MarkSucceeded", ctx, run.ID).Return(nil)
		f.subRepo.On("UpdateStatus", ctx, sub.ID, model.SubscriptionStatusPastDue, model.SubscriptionStatusActive).
			Return(nil)

		f.paymentRepo.On("NextInvoiceNumber", ctx, sub.OrganizationID).Return("INV-2026-abc-000003", nil)
		f.paymentRepo.On("CreateInvoice", ctx, mock.Anything).Return(nil)

		f.periodRepo.On("GetWithItems", ctx, period.ID).Return(period, nil)
		f.periodRepo.On("CompleteAndRollOver", ctx, period.ID, mock.Anything, mock.Anything, mock.Anything).
			Return(nil)

		err := f.service.HandlePaymentSucceeded(ctx, succeededEvent(intentID))
		assert.NoError(t, err)

		assert.Equal(t, model.PaymentStatusSucceeded, payment.Status)
		assert.NotNil(t, payment.PaidAt)
		f.subRepo.AssertExpectations(t)
		f.runRepo.AssertExpectations(t)
	})
}

func TestReconcilerService_HandlePaymentFailed(t *testing.T) {
	ctx := context.Background()

	failedEvent := func(intentID string) *usecase.PaymentFailedEvent {
		return &usecase.PaymentFailedEvent{
			EventID:         "evt_2",
			PaymentIntentID: intentID,
			FailureCode:     "card_declined",
			FailureMessage:  "Your card was declined.",
			Amount:          2500,
			Currency:        "USD",
			OccurredAt:      time.Now(),
		}
	}

	t.Run("a settled payment never regresses", func(t *testing.T) {
		f := newReconcilerFixture()

		intentID := "pi_settled"
		payment := &model.Payment{
			ID:                    uuid.New(),
			Status:                model.PaymentStatusSucceeded,
			StripePaymentIntentID: &intentID,
		}
		f.paymentRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(payment, nil)

		err := f.service.HandlePaymentFailed(ctx, failedEvent(intentID))
		assert.NoError(t, err)
		assert.Equal(t, model.PaymentStatusSucceeded, payment.Status)
		f.paymentRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("failure on a submitted run below the limit keeps it retryable", func(t *testing.T) {
		f := newReconcilerFixture()

		intentID := "pi_fail"
		period := &model.BillingPeriod{ID: uuid.New(), SubscriptionID: uuid.New(), Status: model.BillingPeriodStatusActive}
		run := &model.BillingRun{
			ID:              uuid.New(),
			BillingPeriodID: period.ID,
			Status:          model.BillingRunStatusSubmitted,
			AttemptNumber:   1,
		}
		payment := &model.Payment{
			ID:                    uuid.New(),
			Status:                model.PaymentStatusProcessing,
			StripePaymentIntentID: &intentID,
		}

		f.paymentRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(payment, nil)
		f.paymentRepo.On("Update", ctx, payment).Return(nil)
		f.runRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(run, nil)
		f.runRepo.On("RecordFailure", ctx, run.ID, "Your card was declined.", false).Return(nil)
		f.purchaseRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(nil, nil)

		err := f.service.HandlePaymentFailed(ctx, failedEvent(intentID))
		assert.NoError(t, err)

		assert.Equal(t, model.PaymentStatusFailed, payment.Status)
		assert.Equal(t, "card_declined", *payment.FailureCode)
		f.runRepo.AssertExpectations(t)
		f.periodRepo.AssertNotCalled(t, "MarkPastDue", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failure on the final attempt abandons the run and escalates", func(t *testing.T) {
		f := newReconcilerFixture()

		intentID := "pi_fail_final"
		sub := testSubscription(model.SubscriptionStatusActive)
		period := &model.BillingPeriod{ID: uuid.New(), SubscriptionID: sub.ID, Status: model.BillingPeriodStatusActive}
		run := &model.BillingRun{
			ID:              uuid.New(),
			BillingPeriodID: period.ID,
			Status:          model.BillingRunStatusSubmitted,
			AttemptNumber:   3,
		}

		f.paymentRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(nil, nil)
		f.paymentRepo.On("Create", ctx, mock.Anything).Return(nil)
		f.runRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(run, nil)
		f.runRepo.On("RecordFailure", ctx, run.ID, "Your card was declined.", true).Return(nil)
		f.periodRepo.On("GetByID", ctx, period.ID).Return(period, nil)
		f.subRepo.On("GetByID", ctx, sub.ID).Return(sub, nil)
		f.periodRepo.On("MarkPastDue", ctx, period.ID, model.SubscriptionStatusPastDue).Return(nil)
		f.purchaseRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(nil, nil)

		err := f.service.HandlePaymentFailed(ctx, failedEvent(intentID))
		assert.NoError(t, err)
		f.periodRepo.AssertExpectations(t)
	})

	t.Run("failed first charge marks the purchase failed", func(t *testing.T) {
		f := newReconcilerFixture()

		intentID := "pi_first_fail"
		purchase := recurringPurchase()
		purchase.StripePaymentIntentID = &intentID

		f.paymentRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(nil, nil)
		f.paymentRepo.On("Create", ctx, mock.Anything).Return(nil)
		f.runRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(nil, nil)
		f.purchaseRepo.On("GetByStripePaymentIntentID", ctx, intentID).Return(purchase, nil)
		f.purchaseRepo.On("Update", ctx, purchase).Return(nil)

		err := f.service.HandlePaymentFailed(ctx, failedEvent(intentID))
		assert.NoError(t, err)
		assert.Equal(t, model.PurchaseStatusFailed, purchase.Status)
		f.subRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestReconcilerService_HandleSetupSucceeded(t *testing.T) {
	ctx := context.Background()

	setupEvent := func(setupIntentID string) *usecase.SetupSucceededEvent {
		return &usecase.SetupSucceededEvent{
			EventID:          "evt_3",
			SetupIntentID:    setupIntentID,
			PaymentMethodID:  "pm_new",
			StripeCustomerID: "cus_123",
			OccurredAt:       time.Now(),
		}
	}

	t.Run("stores the payment method and starts the trial subscription", func(t *testing.T) {
		f := newReconcilerFixture()

		purchase := recurringPurchase()
		trialDays := 14
		purchase.TrialPeriodDays = &trialDays

		setupIntentID := "seti_1"
		session := &model.PurchaseSession{
			ID:         uuid.New(),
			Status:     model.PurchaseSessionStatusOpen,
			PurchaseID: &purchase.ID,
		}
		customer := &model.Customer{ID: purchase.CustomerID}

		f.checkoutRepo.On("GetSessionBySetupIntentID", ctx, setupIntentID).Return(session, nil)
		f.catalogRepo.On("GetCustomerByStripeID", ctx, "cus_123").Return(customer, nil)
		f.catalogRepo.On("UpdateCustomer", ctx, customer).Return(nil)
		f.checkoutRepo.On("MarkSessionStatus", ctx, session.ID, model.PurchaseSessionStatusSucceeded).Return(nil)
		f.purchaseRepo.On("GetByID", ctx, purchase.ID).Return(purchase, nil)

		var createdSub *model.Subscription
		f.subRepo.On("Create", ctx, mock.AnythingOfType("*model.Subscription")).
			Run(func(args mock.Arguments) {
				createdSub = args.Get(1).(*model.Subscription)
			}).
			Return(nil)
		f.purchaseRepo.On("GetRedemptionByPurchase", ctx, purchase.ID).Return(nil, nil)
		f.periodRepo.On("CreateWithItems", ctx, mock.Anything, mock.Anything).Return(nil)
		f.runRepo.On("Create", ctx, mock.Anything).Return(nil)

		err := f.service.HandleSetupSucceeded(ctx, setupEvent(setupIntentID))
		assert.NoError(t, err)

		assert.Equal(t, "pm_new", *customer.DefaultPaymentMethodID)
		assert.Equal(t, model.SubscriptionStatusTrialing, createdSub.Status)
		f.checkoutRepo.AssertExpectations(t)
	})

	t.Run("unknown setup intent is logged and dropped", func(t *testing.T) {
		f := newReconcilerFixture()

		f.checkoutRepo.On("GetSessionBySetupIntentID", ctx, "seti_unknown").Return(nil, nil)

		err := f.service.HandleSetupSucceeded(ctx, setupEvent("seti_unknown"))
		assert.NoError(t, err)
		f.subRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("finalized session is a no-op", func(t *testing.T) {
		f := newReconcilerFixture()

		session := &model.PurchaseSession{
			ID:     uuid.New(),
			Status: model.PurchaseSessionStatusSucceeded,
		}
		f.checkoutRepo.On("GetSessionBySetupIntentID", ctx, "seti_done").Return(session, nil)

		err := f.service.HandleSetupSucceeded(ctx, setupEvent("seti_done"))
		assert.NoError(t, err)
		f.checkoutRepo.AssertNotCalled(t, "MarkSessionStatus", mock.Anything, mock.Anything, mock.Anything)
	})
}
