package usecase_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
	"github.com/wekeepgrowing/billing-engine/internal/usecase"
)

func TestFeeCalculator_Calculate(t *testing.T) {
	calc := usecase.NewFeeCalculator()
	noFee := decimal.Zero

	t.Run("no discount no tax", func(t *testing.T) {
		result := calc.Calculate(1000, nil, usecase.NoTax{}, "", noFee)

		assert.Equal(t, int64(1000), result.BaseAmount)
		assert.Equal(t, int64(0), result.DiscountAmount)
		assert.Equal(t, int64(0), result.TaxAmount)
		assert.Equal(t, int64(1000), result.TotalDue)
		assert.Equal(t, int64(0), result.PlatformFee)
	})

	t.Run("fixed discount subtracts from base", func(t *testing.T) {
		discount := &usecase.DiscountSnapshot{Type: model.DiscountAmountTypeFixed, Amount: 300}
		result := calc.Calculate(1000, discount, usecase.NoTax{}, "", noFee)

		assert.Equal(t, int64(300), result.DiscountAmount)
		assert.Equal(t, int64(700), result.TotalDue)
	})

	t.Run("fixed discount larger than base caps at base", func(t *testing.T) {
		discount := &usecase.DiscountSnapshot{Type: model.DiscountAmountTypeFixed, Amount: 5000}
		result := calc.Calculate(1000, discount, usecase.NoTax{}, "", noFee)

		assert.Equal(t, int64(1000), result.DiscountAmount)
		assert.Equal(t, int64(0), result.TotalDue)
	})

	t.Run("percent discount floors", func(t *testing.T) {
		discount := &usecase.DiscountSnapshot{Type: model.DiscountAmountTypePercent, Amount: 10}
		result := calc.Calculate(999, discount, usecase.NoTax{}, "", noFee)

		// 10% of 999 is 99.9, floored to 99
		assert.Equal(t, int64(99), result.DiscountAmount)
		assert.Equal(t, int64(900), result.TotalDue)
	})

	t.Run("percent discount above 100 caps at full base", func(t *testing.T) {
		discount := &usecase.DiscountSnapshot{Type: model.DiscountAmountTypePercent, Amount: 150}
		result := calc.Calculate(1000, discount, usecase.NoTax{}, "", noFee)

		assert.Equal(t, int64(1000), result.DiscountAmount)
		assert.Equal(t, int64(0), result.TotalDue)
	})

	t.Run("tax applies to discounted amount", func(t *testing.T) {
		discount := &usecase.DiscountSnapshot{Type: model.DiscountAmountTypeFixed, Amount: 200}
		tax := usecase.FlatRateTaxPolicy{RatesBasisPoints: map[string]int64{"DE": 1900}}
		result := calc.Calculate(1000, discount, tax, "DE", noFee)

		// 19% of the discounted 800, floored
		assert.Equal(t, int64(152), result.TaxAmount)
		assert.Equal(t, int64(952), result.TotalDue)
	})

	t.Run("unknown jurisdiction gets no tax", func(t *testing.T) {
		tax := usecase.FlatRateTaxPolicy{RatesBasisPoints: map[string]int64{"DE": 1900}}
		result := calc.Calculate(1000, nil, tax, "FR", noFee)

		assert.Equal(t, int64(0), result.TaxAmount)
	})

	t.Run("platform fee rounds half up", func(t *testing.T) {
		fee := decimal.NewFromFloat(0.65)
		result := calc.Calculate(1000, nil, usecase.NoTax{}, "", fee)

		// 0.65% of 1000 is 6.5, rounds to 7
		assert.Equal(t, int64(7), result.PlatformFee)
		assert.Equal(t, int64(1000), result.TotalDue)
	})

	t.Run("no platform fee when nothing is due", func(t *testing.T) {
		discount := &usecase.DiscountSnapshot{Type: model.DiscountAmountTypePercent, Amount: 100}
		fee := decimal.NewFromFloat(2.5)
		result := calc.Calculate(1000, discount, usecase.NoTax{}, "", fee)

		assert.Equal(t, int64(0), result.TotalDue)
		assert.Equal(t, int64(0), result.PlatformFee)
	})

	t.Run("zero base yields zero everything", func(t *testing.T) {
		discount := &usecase.DiscountSnapshot{Type: model.DiscountAmountTypeFixed, Amount: 500}
		result := calc.Calculate(0, discount, usecase.NoTax{}, "", decimal.NewFromInt(1))

		assert.Equal(t, int64(0), result.DiscountAmount)
		assert.Equal(t, int64(0), result.TotalDue)
		assert.Equal(t, int64(0), result.PlatformFee)
	})
}

func TestItemsSubtotal(t *testing.T) {
	items := []model.BillingPeriodItem{
		{Quantity: 2, UnitPrice: 500},
		{Quantity: 1, UnitPrice: 250},
	}
	assert.Equal(t, int64(1250), usecase.ItemsSubtotal(items))

	assert.Equal(t, int64(0), usecase.ItemsSubtotal(nil))
}
