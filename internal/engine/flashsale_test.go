package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soukly/promotion/internal/domain"
)

func summerSale(now time.Time) domain.FlashSaleCampaign {
	return domain.FlashSaleCampaign{
		ID:        "camp-summer",
		Name:      "Summer Sale",
		IsActive:  true,
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
	}
}

func TestFlashSaleEvaluator_QuantityLimitCapsDiscountedUnits(t *testing.T) {
	now := time.Now()
	campaign := summerSale(now)
	entries := []domain.FlashSaleEntry{{
		ID:            "entry-1",
		CampaignID:    campaign.ID,
		ProductID:     "p1",
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: 1000, // 10%
		QuantityLimit: 5,
		SoldQuantity:  3,
	}}
	cart := []domain.CartItem{{ProductID: "p1", Quantity: 4, UnitPrice: 10000}}

	result := FlashSaleEvaluator{}.Evaluate(&campaign, entries, cart, now)
	require.NotNil(t, result)
	require.Len(t, result.Matches, 1)

	// remaining=2 caps the 4 requested units; discount = 2 x 10% of 100 EGP.
	assert.Equal(t, 2, result.Matches[0].Quantity)
	assert.Equal(t, int64(1000), result.Matches[0].UnitDiscount)
	assert.Equal(t, int64(2000), result.TotalDiscount)
	assert.Equal(t, int64(9000), result.Matches[0].DiscountedPrice)
}

func TestFlashSaleEvaluator_NotRunning(t *testing.T) {
	now := time.Now()
	campaign := summerSale(now)
	campaign.IsActive = false

	entries := []domain.FlashSaleEntry{{ProductID: "p1", DiscountType: domain.DiscountTypePercentage, DiscountValue: 1000}}
	cart := []domain.CartItem{{ProductID: "p1", Quantity: 1, UnitPrice: 10000}}

	assert.Nil(t, FlashSaleEvaluator{}.Evaluate(&campaign, entries, cart, now))
}

func TestFlashSaleEvaluator_NoMatchingItems(t *testing.T) {
	now := time.Now()
	campaign := summerSale(now)
	entries := []domain.FlashSaleEntry{{ProductID: "p1", DiscountType: domain.DiscountTypePercentage, DiscountValue: 1000}}
	cart := []domain.CartItem{{ProductID: "p9", Quantity: 1, UnitPrice: 10000}}

	assert.Nil(t, FlashSaleEvaluator{}.Evaluate(&campaign, entries, cart, now))
}

func TestFlashSaleEvaluator_ExhaustedEntrySkipped(t *testing.T) {
	now := time.Now()
	campaign := summerSale(now)
	entries := []domain.FlashSaleEntry{{
		ProductID:     "p1",
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: 500,
		QuantityLimit: 3,
		SoldQuantity:  3,
	}}
	cart := []domain.CartItem{{ProductID: "p1", Quantity: 2, UnitPrice: 10000}}

	assert.Nil(t, FlashSaleEvaluator{}.Evaluate(&campaign, entries, cart, now))
}

func TestFlashSaleEvaluator_MultipleItems(t *testing.T) {
	now := time.Now()
	campaign := summerSale(now)
	entries := []domain.FlashSaleEntry{
		{ProductID: "p1", DiscountType: domain.DiscountTypePercentage, DiscountValue: 2000}, // 20%
		{ProductID: "p2", DiscountType: domain.DiscountTypeFixed, DiscountValue: 1500},
	}
	cart := []domain.CartItem{
		{ProductID: "p1", Quantity: 2, UnitPrice: 5000},
		{ProductID: "p2", Quantity: 1, UnitPrice: 8000},
		{ProductID: "p3", Quantity: 4, UnitPrice: 2000}, // no entry
	}

	result := FlashSaleEvaluator{}.Evaluate(&campaign, entries, cart, now)
	require.NotNil(t, result)
	require.Len(t, result.Matches, 2)

	// p1: 2 x 1000, p2: 1 x 1500.
	assert.Equal(t, int64(2000), result.Matches[0].Discount)
	assert.Equal(t, int64(1500), result.Matches[1].Discount)
	assert.Equal(t, int64(3500), result.TotalDiscount)
	assert.Equal(t, time.Hour, result.RemainingTime)
}

func TestFlashSaleEvaluator_PureAndRepeatable(t *testing.T) {
	now := time.Now()
	campaign := summerSale(now)
	entries := []domain.FlashSaleEntry{{
		ProductID:     "p1",
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: 1000,
		QuantityLimit: 5,
		SoldQuantity:  3,
	}}
	cart := []domain.CartItem{{ProductID: "p1", Quantity: 4, UnitPrice: 10000}}

	first := FlashSaleEvaluator{}.Evaluate(&campaign, entries, cart, now)
	second := FlashSaleEvaluator{}.Evaluate(&campaign, entries, cart, now)

	assert.Equal(t, first, second)
	assert.Equal(t, 3, entries[0].SoldQuantity, "evaluation must not mutate counters")
	assert.Equal(t, 0, campaign.UsageCount)
}
