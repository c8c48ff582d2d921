package engine

import (
	"github.com/soukly/promotion/internal/domain"
)

// BestOffer identifies the single highest-value promotion for a cart.
type BestOffer struct {
	Kind           string            `json:"kind"`
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	OfferType      string            `json:"offer_type,omitempty"`
	DiscountAmount int64             `json:"discount_amount"`
	FreeItems      []domain.FreeItem `json:"free_items,omitempty"`
	FreeShipping   bool              `json:"free_shipping"`
	priority       int
}

// Selection is the combined outcome of a cart evaluation.
type Selection struct {
	FlashSales            []FlashSaleResult    `json:"flash_sales"`
	SpecialOffers         []SpecialOfferResult `json:"special_offers"`
	BestOffer             *BestOffer           `json:"best_offer"`
	TotalDiscount         int64                `json:"total_discount"`
	FreeShippingAvailable bool                 `json:"free_shipping_available"`
	CouponsBlocked        bool                 `json:"coupons_blocked"`
}

// SelectBest merges evaluator outputs: flash-sale results with a non-zero
// discount and special-offer results that granted anything (discount,
// free items, or free shipping). The best offer is the greatest discount;
// equal discounts break on higher priority, then on evaluation order
// (flash sales first, each family in repository order). Coupons are
// blocked whenever the combined result list is non-empty, even when the
// winning offer's discount is zero.
func SelectBest(flashSales []FlashSaleResult, specialOffers []SpecialOfferResult) Selection {
	sel := Selection{
		FlashSales:    make([]FlashSaleResult, 0, len(flashSales)),
		SpecialOffers: make([]SpecialOfferResult, 0, len(specialOffers)),
	}

	for _, fs := range flashSales {
		if fs.TotalDiscount <= 0 {
			continue
		}
		sel.FlashSales = append(sel.FlashSales, fs)
		sel.consider(&BestOffer{
			Kind:           domain.OfferKindFlashSale,
			ID:             fs.CampaignID,
			Name:           fs.Name,
			DiscountAmount: fs.TotalDiscount,
			priority:       fs.Priority,
		})
	}

	for _, so := range specialOffers {
		if !so.Granted() {
			continue
		}
		sel.SpecialOffers = append(sel.SpecialOffers, so)
		if so.FreeShipping {
			sel.FreeShippingAvailable = true
		}
		sel.consider(&BestOffer{
			Kind:           domain.OfferKindSpecialOffer,
			ID:             so.OfferID,
			Name:           so.Name,
			OfferType:      so.OfferType,
			DiscountAmount: so.DiscountAmount,
			FreeItems:      so.FreeItems,
			FreeShipping:   so.FreeShipping,
			priority:       so.Priority,
		})
	}

	if sel.BestOffer != nil {
		sel.TotalDiscount = sel.BestOffer.DiscountAmount
	}
	sel.CouponsBlocked = len(sel.FlashSales) > 0 || len(sel.SpecialOffers) > 0
	return sel
}

// consider keeps the candidate when it strictly beats the current best on
// discount, or matches it with a strictly higher priority.
func (s *Selection) consider(candidate *BestOffer) {
	if s.BestOffer == nil {
		s.BestOffer = candidate
		return
	}
	if candidate.DiscountAmount > s.BestOffer.DiscountAmount {
		s.BestOffer = candidate
		return
	}
	if candidate.DiscountAmount == s.BestOffer.DiscountAmount && candidate.priority > s.BestOffer.priority {
		s.BestOffer = candidate
	}
}
