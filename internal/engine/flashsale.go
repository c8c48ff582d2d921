package engine

import (
	"time"

	"github.com/soukly/promotion/internal/domain"
)

// FlashSaleMatch is one cart line matched against an available flash-sale
// entry. Quantity holds the discounted units, which can be below the cart
// quantity when the entry's remaining promotional quantity is smaller.
type FlashSaleMatch struct {
	ProductID       string `json:"product_id"`
	Quantity        int    `json:"quantity"`
	UnitPrice       int64  `json:"unit_price"`
	UnitDiscount    int64  `json:"unit_discount"`
	DiscountedPrice int64  `json:"discounted_price"`
	Discount        int64  `json:"discount"`
}

// FlashSaleResult is one campaign's contribution to a cart evaluation.
type FlashSaleResult struct {
	CampaignID    string           `json:"campaign_id"`
	Name          string           `json:"name"`
	NameAr        string           `json:"name_ar,omitempty"`
	Priority      int              `json:"priority"`
	Matches       []FlashSaleMatch `json:"matches"`
	TotalDiscount int64            `json:"total_discount"`
	RemainingTime time.Duration    `json:"-"`
}

// FlashSaleEvaluator matches cart snapshots against running flash-sale
// campaigns. Evaluation is pure: it never mutates counters.
type FlashSaleEvaluator struct{}

// Evaluate computes the campaign's discount for the cart at the given
// instant. It returns nil when the campaign is not running or no cart
// item matches an available entry.
func (FlashSaleEvaluator) Evaluate(campaign *domain.FlashSaleCampaign, entries []domain.FlashSaleEntry, items []domain.CartItem, now time.Time) *FlashSaleResult {
	if !campaign.IsRunning(now) {
		return nil
	}

	byProduct := make(map[string]*domain.FlashSaleEntry, len(entries))
	for i := range entries {
		byProduct[entries[i].ProductID] = &entries[i]
	}

	result := &FlashSaleResult{
		CampaignID:    campaign.ID,
		Name:          campaign.Name,
		NameAr:        campaign.NameAr,
		Priority:      campaign.Priority,
		RemainingTime: campaign.RemainingTime(now),
	}

	for _, item := range items {
		entry, ok := byProduct[item.ProductID]
		if !ok || !entry.Available() {
			continue
		}

		availableQty := item.Quantity
		if entry.HasQuantityLimit() && entry.RemainingQuantity() < availableQty {
			availableQty = entry.RemainingQuantity()
		}
		if availableQty <= 0 {
			continue
		}

		unitDiscount := entry.UnitDiscount(item.UnitPrice)
		match := FlashSaleMatch{
			ProductID:       item.ProductID,
			Quantity:        availableQty,
			UnitPrice:       item.UnitPrice,
			UnitDiscount:    unitDiscount,
			DiscountedPrice: entry.DiscountedPrice(item.UnitPrice),
			Discount:        unitDiscount * int64(availableQty),
		}
		result.Matches = append(result.Matches, match)
		result.TotalDiscount += match.Discount
	}

	if len(result.Matches) == 0 {
		return nil
	}
	return result
}
