package domain

import (
	"time"
)

// Discount type constants shared by flash-sale entries and special offers.
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

// FlashSaleCampaign is a time-boxed promotion with per-product entries.
// Percentage discount values are expressed in basis points (1000 = 10%);
// fixed values and all prices are in minor currency units (piastres).
type FlashSaleCampaign struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	NameAr        string    `json:"name_ar"`
	Description   string    `json:"description"`
	DescriptionAr string    `json:"description_ar"`
	Slug          string    `json:"slug"`
	BannerURL     string    `json:"banner_url,omitempty"`
	Priority      int       `json:"priority"`
	IsActive      bool      `json:"is_active"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	PerUserCap    int       `json:"per_user_cap"`
	GlobalCap     int       `json:"global_cap"`
	UsageCount    int       `json:"usage_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsRunning reports whether the campaign accepts new matches at the given
// instant: active, inside its window, and under its global usage cap.
// A zero GlobalCap means unlimited.
func (c *FlashSaleCampaign) IsRunning(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if now.Before(c.StartTime) || now.After(c.EndTime) {
		return false
	}
	if c.GlobalCap > 0 && c.UsageCount >= c.GlobalCap {
		return false
	}
	return true
}

// RemainingTime returns how long the campaign window stays open, zero if
// it already ended.
func (c *FlashSaleCampaign) RemainingTime(now time.Time) time.Duration {
	if now.After(c.EndTime) {
		return 0
	}
	return c.EndTime.Sub(now)
}

// FlashSaleEntry discounts one product inside a campaign. SoldQuantity is
// monotonic and never exceeds QuantityLimit; a zero QuantityLimit means
// the entry is not quantity-limited.
type FlashSaleEntry struct {
	ID            string    `json:"id"`
	CampaignID    string    `json:"campaign_id"`
	ProductID     string    `json:"product_id"`
	DiscountType  string    `json:"discount_type"`
	DiscountValue int64     `json:"discount_value"`
	QuantityLimit int       `json:"quantity_limit"`
	SoldQuantity  int       `json:"sold_quantity"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasQuantityLimit reports whether the entry carries a promotional
// quantity cap.
func (e *FlashSaleEntry) HasQuantityLimit() bool {
	return e.QuantityLimit > 0
}

// RemainingQuantity returns how many promotional units are left, clamped
// at zero. Only meaningful when HasQuantityLimit is true.
func (e *FlashSaleEntry) RemainingQuantity() int {
	if !e.HasQuantityLimit() {
		return 0
	}
	remaining := e.QuantityLimit - e.SoldQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Available reports whether the entry can still grant discounts: either
// unlimited or with promotional quantity remaining. Campaign running state
// is checked separately by the evaluator.
func (e *FlashSaleEntry) Available() bool {
	return !e.HasQuantityLimit() || e.RemainingQuantity() > 0
}

// UnitDiscount computes the per-unit discount for the given unit price.
// Fixed discounts clamp at the price so the discounted price never drops
// below zero.
func (e *FlashSaleEntry) UnitDiscount(unitPrice int64) int64 {
	switch e.DiscountType {
	case DiscountTypePercentage:
		return unitPrice * e.DiscountValue / 10000
	case DiscountTypeFixed:
		if e.DiscountValue > unitPrice {
			return unitPrice
		}
		return e.DiscountValue
	default:
		return 0
	}
}

// DiscountedPrice returns the unit price after the entry's discount.
func (e *FlashSaleEntry) DiscountedPrice(unitPrice int64) int64 {
	return unitPrice - e.UnitDiscount(unitPrice)
}

// ValidDiscountTypes returns the set of valid discount types.
func ValidDiscountTypes() []string {
	return []string{DiscountTypePercentage, DiscountTypeFixed}
}

// IsValidDiscountType checks whether the given string is a valid discount type.
func IsValidDiscountType(t string) bool {
	for _, v := range ValidDiscountTypes() {
		if v == t {
			return true
		}
	}
	return false
}
