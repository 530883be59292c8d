package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/billing-engine/internal/domain/dto"
	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
)

// CheckoutRepository persists purchase sessions, fee calculation snapshots,
// and discount lookups.
type CheckoutRepository interface {
	GetSessionByID(ctx context.Context, id uuid.UUID) (*model.PurchaseSession, error)
	GetSessionBySetupIntentID(ctx context.Context, setupIntentID string) (*model.PurchaseSession, error)
	GetSessionByPaymentIntentID(ctx context.Context, paymentIntentID string) (*model.PurchaseSession, error)
	// FindOpenSession returns the open, unexpired session matching the
	// checkout criteria, or nil when none exists.
	FindOpenSession(ctx context.Context, criteria dto.SessionCriteria) (*model.PurchaseSession, error)
	CreateSession(ctx context.Context, session *model.PurchaseSession) error
	UpdateSession(ctx context.Context, session *model.PurchaseSession) error
	MarkSessionStatus(ctx context.Context, id uuid.UUID, status model.PurchaseSessionStatus) error
	// PurgeExpired deletes expired open/abandoned sessions and their fee
	// calculation snapshots. Succeeded sessions are never purged.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)

	CreateFeeCalculation(ctx context.Context, calc *model.FeeCalculation) error
	// LatestFeeCalculation returns the most recent snapshot for the session,
	// or nil when none has been computed yet.
	LatestFeeCalculation(ctx context.Context, sessionID uuid.UUID) (*model.FeeCalculation, error)

	GetDiscountByCode(ctx context.Context, organizationID uuid.UUID, code string, livemode bool) (*model.Discount, error)
	GetDiscountByID(ctx context.Context, id uuid.UUID) (*model.Discount, error)
}
