package usecase_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/wekeepgrowing/billing-engine/internal/domain/dto"
	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
	"github.com/wekeepgrowing/billing-engine/internal/domain/provider"
)

// MockSubscriptionRepository is a mock implementation of SubscriptionRepository
type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) GetWithPeriods(ctx context.Context, id uuid.UUID) (*model.Subscription, []*model.BillingPeriod, error) {
	args := m.Called(ctx, id)
	var sub *model.Subscription
	if args.Get(0) != nil {
		sub = args.Get(0).(*model.Subscription)
	}
	var periods []*model.BillingPeriod
	if args.Get(1) != nil {
		periods = args.Get(1).([]*model.BillingPeriod)
	}
	return sub, periods, args.Error(2)
}

func (m *MockSubscriptionRepository) Create(ctx context.Context, subscription *model.Subscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) Update(ctx context.Context, subscription *model.Subscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.SubscriptionStatus) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) ApplyCancellation(ctx context.Context, change *dto.CancellationChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) ListScheduledForCancellation(ctx context.Context, from, to time.Time, livemode bool) ([]*model.Subscription, error) {
	args := m.Called(ctx, from, to, livemode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) ListPendingCancellations(ctx context.Context, before time.Time, livemode bool) ([]*model.Subscription, error) {
	args := m.Called(ctx, before, livemode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Subscription), args.Error(1)
}

// MockBillingPeriodRepository is a mock implementation of BillingPeriodRepository
type MockBillingPeriodRepository struct {
	mock.Mock
}

func (m *MockBillingPeriodRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.BillingPeriod, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BillingPeriod), args.Error(1)
}

func (m *MockBillingPeriodRepository) GetWithItems(ctx context.Context, id uuid.UUID) (*model.BillingPeriod, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BillingPeriod), args.Error(1)
}

func (m *MockBillingPeriodRepository) GetCurrent(ctx context.Context, subscriptionID uuid.UUID, at time.Time) (*model.BillingPeriod, error) {
	args := m.Called(ctx, subscriptionID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BillingPeriod), args.Error(1)
}

func (m *MockBillingPeriodRepository) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*model.BillingPeriod, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.BillingPeriod), args.Error(1)
}

func (m *MockBillingPeriodRepository) CreateWithItems(ctx context.Context, period *model.BillingPeriod, items []model.BillingPeriodItem) error {
	args := m.Called(ctx, period, items)
	return args.Error(0)
}

func (m *MockBillingPeriodRepository) CompleteAndRollOver(ctx context.Context, periodID uuid.UUID, next *model.BillingPeriod, nextItems []model.BillingPeriodItem, nextRun *model.BillingRun) error {
	args := m.Called(ctx, periodID, next, nextItems, nextRun)
	return args.Error(0)
}

func (m *MockBillingPeriodRepository) MarkPastDue(ctx context.Context, periodID uuid.UUID, subscriptionStatus model.SubscriptionStatus) error {
	args := m.Called(ctx, periodID, subscriptionStatus)
	return args.Error(0)
}

// MockBillingRunRepository is a mock implementation of BillingRunRepository
type MockBillingRunRepository struct {
	mock.Mock
}

func (m *MockBillingRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.BillingRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BillingRun), args.Error(1)
}

func (m *MockBillingRunRepository) GetByStripePaymentIntentID(ctx context.Context, intentID string) (*model.BillingRun, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BillingRun), args.Error(1)
}

func (m *MockBillingRunRepository) GetDue(ctx context.Context, before time.Time, livemode bool, limit int) ([]*model.BillingRun, error) {
	args := m.Called(ctx, before, livemode, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.BillingRun), args.Error(1)
}

func (m *MockBillingRunRepository) Create(ctx context.Context, run *model.BillingRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockBillingRunRepository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockBillingRunRepository) MarkSubmitted(ctx context.Context, id uuid.UUID, stripePaymentIntentID string) error {
	args := m.Called(ctx, id, stripePaymentIntentID)
	return args.Error(0)
}

func (m *MockBillingRunRepository) RecordFailure(ctx context.Context, id uuid.UUID, cause string, abandon bool) error {
	args := m.Called(ctx, id, cause, abandon)
	return args.Error(0)
}

// MockCheckoutRepository is a mock implementation of CheckoutRepository
type MockCheckoutRepository struct {
	mock.Mock
}

func (m *MockCheckoutRepository) GetSessionByID(ctx context.Context, id uuid.UUID) (*model.PurchaseSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PurchaseSession), args.Error(1)
}

func (m *MockCheckoutRepository) GetSessionBySetupIntentID(ctx context.Context, setupIntentID string) (*model.PurchaseSession, error) {
	args := m.Called(ctx, setupIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PurchaseSession), args.Error(1)
}

func (m *MockCheckoutRepository) GetSessionByPaymentIntentID(ctx context.Context, paymentIntentID string) (*model.PurchaseSession, error) {
	args := m.Called(ctx, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PurchaseSession), args.Error(1)
}

func (m *MockCheckoutRepository) FindOpenSession(ctx context.Context, criteria dto.SessionCriteria) (*model.PurchaseSession, error) {
	args := m.Called(ctx, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PurchaseSession), args.Error(1)
}

func (m *MockCheckoutRepository) CreateSession(ctx context.Context, session *model.PurchaseSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockCheckoutRepository) UpdateSession(ctx context.Context, session *model.PurchaseSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockCheckoutRepository) MarkSessionStatus(ctx context.Context, id uuid.UUID, status model.PurchaseSessionStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockCheckoutRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCheckoutRepository) CreateFeeCalculation(ctx context.Context, calc *model.FeeCalculation) error {
	args := m.Called(ctx, calc)
	return args.Error(0)
}

func (m *MockCheckoutRepository) LatestFeeCalculation(ctx context.Context, sessionID uuid.UUID) (*model.FeeCalculation, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FeeCalculation), args.Error(1)
}

func (m *MockCheckoutRepository) GetDiscountByCode(ctx context.Context, organizationID uuid.UUID, code string, livemode bool) (*model.Discount, error) {
	args := m.Called(ctx, organizationID, code, livemode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Discount), args.Error(1)
}

func (m *MockCheckoutRepository) GetDiscountByID(ctx context.Context, id uuid.UUID) (*model.Discount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Discount), args.Error(1)
}

// MockPurchaseRepository is a mock implementation of PurchaseRepository
type MockPurchaseRepository struct {
	mock.Mock
}

func (m *MockPurchaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Purchase, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Purchase), args.Error(1)
}

func (m *MockPurchaseRepository) GetByStripePaymentIntentID(ctx context.Context, intentID string) (*model.Purchase, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Purchase), args.Error(1)
}

func (m *MockPurchaseRepository) Create(ctx context.Context, purchase *model.Purchase) error {
	args := m.Called(ctx, purchase)
	return args.Error(0)
}

func (m *MockPurchaseRepository) Update(ctx context.Context, purchase *model.Purchase) error {
	args := m.Called(ctx, purchase)
	return args.Error(0)
}

func (m *MockPurchaseRepository) CreateRedemption(ctx context.Context, redemption *model.DiscountRedemption) error {
	args := m.Called(ctx, redemption)
	return args.Error(0)
}

func (m *MockPurchaseRepository) GetRedemption(ctx context.Context, id uuid.UUID) (*model.DiscountRedemption, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DiscountRedemption), args.Error(1)
}

func (m *MockPurchaseRepository) GetRedemptionByPurchase(ctx context.Context, purchaseID uuid.UUID) (*model.DiscountRedemption, error) {
	args := m.Called(ctx, purchaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DiscountRedemption), args.Error(1)
}

// MockPaymentRepository is a mock implementation of PaymentRepository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) GetByStripePaymentIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) Update(ctx context.Context, payment *model.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) CreateInvoice(ctx context.Context, invoice *model.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockPaymentRepository) NextInvoiceNumber(ctx context.Context, organizationID uuid.UUID) (string, error) {
	args := m.Called(ctx, organizationID)
	return args.String(0), args.Error(1)
}

// MockCatalogRepository is a mock implementation of CatalogRepository
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) GetVariant(ctx context.Context, id uuid.UUID) (*model.Variant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Variant), args.Error(1)
}

func (m *MockCatalogRepository) GetOrganization(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Organization), args.Error(1)
}

func (m *MockCatalogRepository) GetCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Customer), args.Error(1)
}

func (m *MockCatalogRepository) GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*model.Customer, error) {
	args := m.Called(ctx, stripeCustomerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Customer), args.Error(1)
}

func (m *MockCatalogRepository) UpdateCustomer(ctx context.Context, customer *model.Customer) error {
	args := m.Called(ctx, customer)
	return args.Error(0)
}

// MockPaymentProcessor is a mock implementation of PaymentProcessor
type MockPaymentProcessor struct {
	mock.Mock
}

func (m *MockPaymentProcessor) CreatePaymentIntent(ctx context.Context, req *provider.CreatePaymentIntentRequest) (*provider.PaymentIntent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.PaymentIntent), args.Error(1)
}

func (m *MockPaymentProcessor) UpdatePaymentIntent(ctx context.Context, intentID string, req *provider.UpdatePaymentIntentRequest) (*provider.PaymentIntent, error) {
	args := m.Called(ctx, intentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.PaymentIntent), args.Error(1)
}

func (m *MockPaymentProcessor) GetPaymentIntent(ctx context.Context, intentID string) (*provider.PaymentIntent, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.PaymentIntent), args.Error(1)
}

func (m *MockPaymentProcessor) CreateSetupIntent(ctx context.Context, req *provider.CreateSetupIntentRequest) (*provider.SetupIntent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.SetupIntent), args.Error(1)
}

func (m *MockPaymentProcessor) GetProviderName() string {
	return "stripe"
}

// MockTokenStore is a mock implementation of TokenStore
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Issue(ctx context.Context, key string, sessionID uuid.UUID, ttl time.Duration) error {
	args := m.Called(ctx, key, sessionID, ttl)
	return args.Error(0)
}

func (m *MockTokenStore) Lookup(ctx context.Context, key string) (uuid.UUID, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockTokenStore) Revoke(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
