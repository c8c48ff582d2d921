package domain

import (
	"time"
)

// Special offer type constants.
const (
	OfferTypeBuyXGetYFree     = "buy_x_get_y_free"
	OfferTypeBuyXGetDiscount  = "buy_x_get_discount"
	OfferTypeBuyXFreeShipping = "buy_x_free_shipping"
	OfferTypeBundleDiscount   = "bundle_discount"
)

// SpecialOffer is a rule-based promotion applicable to a configurable set
// of products and categories. An empty applicability set on both axes
// means the offer applies to every product.
type SpecialOffer struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	NameAr               string     `json:"name_ar"`
	Description          string     `json:"description"`
	DescriptionAr        string     `json:"description_ar"`
	Slug                 string     `json:"slug"`
	BannerURL            string     `json:"banner_url,omitempty"`
	Priority             int        `json:"priority"`
	OfferType            string     `json:"offer_type"`
	BuyQuantity          int        `json:"buy_quantity"`
	FreeQuantity         int        `json:"free_quantity"`
	DiscountType         string     `json:"discount_type,omitempty"`
	DiscountValue        int64      `json:"discount_value"`
	ApplicableProducts   []string   `json:"applicable_products"`
	ApplicableCategories []string   `json:"applicable_categories"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	PerUserCap           int        `json:"per_user_cap"`
	GlobalCap            int        `json:"global_cap"`
	UsageCount           int        `json:"usage_count"`
	MinOrderAmount       int64      `json:"min_order_amount"`
	IsActive             bool       `json:"is_active"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsRunning reports whether the offer accepts new matches at the given
// instant. A nil EndTime means the offer is open-ended; a zero GlobalCap
// means unlimited redemptions.
func (o *SpecialOffer) IsRunning(now time.Time) bool {
	if !o.IsActive {
		return false
	}
	if now.Before(o.StartTime) {
		return false
	}
	if o.EndTime != nil && now.After(*o.EndTime) {
		return false
	}
	if o.GlobalCap > 0 && o.UsageCount >= o.GlobalCap {
		return false
	}
	return true
}

// AppliesToAll reports whether the offer has no applicability restriction.
func (o *SpecialOffer) AppliesToAll() bool {
	return len(o.ApplicableProducts) == 0 && len(o.ApplicableCategories) == 0
}

// AppliesTo reports whether a product (with its resolved category) falls
// under the offer's applicability set.
func (o *SpecialOffer) AppliesTo(productID, categoryID string) bool {
	if o.AppliesToAll() {
		return true
	}
	for _, p := range o.ApplicableProducts {
		if p == productID {
			return true
		}
	}
	if categoryID != "" {
		for _, c := range o.ApplicableCategories {
			if c == categoryID {
				return true
			}
		}
	}
	return false
}

// ValidOfferTypes returns the set of valid special offer types.
func ValidOfferTypes() []string {
	return []string{
		OfferTypeBuyXGetYFree,
		OfferTypeBuyXGetDiscount,
		OfferTypeBuyXFreeShipping,
		OfferTypeBundleDiscount,
	}
}

// IsValidOfferType checks whether the given string is a valid offer type.
func IsValidOfferType(t string) bool {
	for _, v := range ValidOfferTypes() {
		if v == t {
			return true
		}
	}
	return false
}
