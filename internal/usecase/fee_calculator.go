package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
)

// TaxPolicy resolves the tax owed on a taxable amount for a jurisdiction.
// Implementations return zero when no tax applies.
type TaxPolicy interface {
	TaxAmount(taxableAmount int64, jurisdiction string) int64
}

// NoTax is a TaxPolicy that never applies tax.
type NoTax struct{}

// TaxAmount always returns zero.
func (NoTax) TaxAmount(taxableAmount int64, jurisdiction string) int64 {
	return 0
}

// FlatRateTaxPolicy applies a per-jurisdiction flat rate in basis points,
// floored to whole minor units.
type FlatRateTaxPolicy struct {
	// RatesBasisPoints maps jurisdiction code to tax rate in basis points
	// (e.g. 2000 = 20%).
	RatesBasisPoints map[string]int64
}

// TaxAmount returns floor(taxable * rate / 10000) for the jurisdiction, or
// zero when the jurisdiction has no configured rate.
func (p FlatRateTaxPolicy) TaxAmount(taxableAmount int64, jurisdiction string) int64 {
	rate, ok := p.RatesBasisPoints[jurisdiction]
	if !ok || taxableAmount <= 0 {
		return 0
	}
	return taxableAmount * rate / 10000
}

// DiscountSnapshot is the frozen discount terms a calculation applies. It is
// deliberately detached from the Discount row so redeemed purchases keep their
// original terms.
type DiscountSnapshot struct {
	Type   model.DiscountAmountType
	Amount int64
}

// SnapshotFromDiscount copies the fields of a live discount.
func SnapshotFromDiscount(d *model.Discount) *DiscountSnapshot {
	if d == nil {
		return nil
	}
	return &DiscountSnapshot{Type: d.AmountType, Amount: d.Amount}
}

// SnapshotFromRedemption copies the frozen fields of a redemption.
func SnapshotFromRedemption(r *model.DiscountRedemption) *DiscountSnapshot {
	if r == nil {
		return nil
	}
	return &DiscountSnapshot{Type: r.DiscountAmountType, Amount: r.DiscountAmount}
}

// FeeBreakdown is the result of one fee calculation. All amounts are integer
// minor currency units.
type FeeBreakdown struct {
	BaseAmount     int64
	DiscountAmount int64
	TaxAmount      int64
	TotalDue       int64
	PlatformFee    int64
}

// FeeCalculator computes invoice amounts. It performs no I/O and uses exact
// integer arithmetic so reconciliation stays reproducible: discounts floor,
// the platform fee rounds half up.
type FeeCalculator struct{}

// NewFeeCalculator creates a fee calculator.
func NewFeeCalculator() *FeeCalculator {
	return &FeeCalculator{}
}

// Calculate produces the breakdown for a base amount under the given discount
// and tax policy. feePercentage is the organization's platform fee percentage
// (e.g. 0.65 = 0.65%); the fee is charged only when something is due.
func (c *FeeCalculator) Calculate(baseAmount int64, discount *DiscountSnapshot, tax TaxPolicy, jurisdiction string, feePercentage decimal.Decimal) FeeBreakdown {
	discountAmount := c.DiscountAmount(baseAmount, discount)

	taxable := baseAmount - discountAmount
	var taxAmount int64
	if tax != nil {
		taxAmount = tax.TaxAmount(taxable, jurisdiction)
	}

	totalDue := baseAmount - discountAmount + taxAmount
	if totalDue < 0 {
		totalDue = 0
	}

	var platformFee int64
	if totalDue > 0 && feePercentage.IsPositive() {
		platformFee = decimal.NewFromInt(totalDue).
			Mul(feePercentage).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	}

	return FeeBreakdown{
		BaseAmount:     baseAmount,
		DiscountAmount: discountAmount,
		TaxAmount:      taxAmount,
		TotalDue:       totalDue,
		PlatformFee:    platformFee,
	}
}

// DiscountAmount computes the discounted amount: fixed discounts are capped at
// the base (never negative, never exceeding it), percent discounts floor.
func (c *FeeCalculator) DiscountAmount(baseAmount int64, discount *DiscountSnapshot) int64 {
	if discount == nil || baseAmount <= 0 {
		return 0
	}

	switch discount.Type {
	case model.DiscountAmountTypeFixed:
		if discount.Amount < 0 {
			return 0
		}
		if discount.Amount > baseAmount {
			return baseAmount
		}
		return discount.Amount
	case model.DiscountAmountTypePercent:
		if discount.Amount <= 0 {
			return 0
		}
		pct := discount.Amount
		if pct > 100 {
			pct = 100
		}
		return baseAmount * pct / 100
	default:
		return 0
	}
}

// ItemsSubtotal sums the quantity-extended prices of a period's items.
func ItemsSubtotal(items []model.BillingPeriodItem) int64 {
	var total int64
	for i := range items {
		total += items[i].Subtotal()
	}
	return total
}

// Snapshot materializes a breakdown as an immutable FeeCalculation row.
func (b FeeBreakdown) Snapshot(session *model.PurchaseSession, currency string) *model.FeeCalculation {
	return &model.FeeCalculation{
		PurchaseSessionID:   session.ID,
		OrganizationID:      session.OrganizationID,
		DiscountID:          session.DiscountID,
		BaseAmount:          b.BaseAmount,
		DiscountAmountFixed: b.DiscountAmount,
		TaxAmountFixed:      b.TaxAmount,
		FeeAmount:           b.PlatformFee,
		Currency:            currency,
		Livemode:            session.Livemode,
	}
}
