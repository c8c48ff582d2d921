package domain

import (
	"errors"
	"time"
)

// Offer kind constants for the tagged offer reference.
const (
	OfferKindFlashSale    = "flash_sale"
	OfferKindSpecialOffer = "special_offer"
)

// ErrInvalidOfferRef is returned when an offer reference does not name
// exactly one offer.
var ErrInvalidOfferRef = errors.New("offer reference must name exactly one flash sale or special offer")

// OfferRef is a tagged reference to exactly one promotion. Construct it
// with FlashSaleRef or SpecialOfferRef so the variant stays consistent.
type OfferRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// FlashSaleRef builds a reference to a flash-sale campaign.
func FlashSaleRef(campaignID string) OfferRef {
	return OfferRef{Kind: OfferKindFlashSale, ID: campaignID}
}

// SpecialOfferRef builds a reference to a special offer.
func SpecialOfferRef(offerID string) OfferRef {
	return OfferRef{Kind: OfferKindSpecialOffer, ID: offerID}
}

// Validate checks that the reference names exactly one offer.
func (r OfferRef) Validate() error {
	if r.ID == "" {
		return ErrInvalidOfferRef
	}
	if r.Kind != OfferKindFlashSale && r.Kind != OfferKindSpecialOffer {
		return ErrInvalidOfferRef
	}
	return nil
}

// FreeItem is a unit grant produced by a buy-X-get-Y-free allocation.
type FreeItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// OfferUsageRecord is one committed redemption tied to an order.
type OfferUsageRecord struct {
	ID                  string     `json:"id"`
	Offer               OfferRef   `json:"offer"`
	UserID              string     `json:"user_id,omitempty"`
	OrderID             string     `json:"order_id"`
	DiscountAmount      int64      `json:"discount_amount"`
	FreeShippingApplied bool       `json:"free_shipping_applied"`
	FreeItems           []FreeItem `json:"free_items,omitempty"`
	OrderTotal          int64      `json:"order_total"`
	CreatedAt           time.Time  `json:"created_at"`
}
