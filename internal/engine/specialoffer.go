package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/soukly/promotion/internal/domain"
)

// SpecialOfferResult is one offer's contribution to a cart evaluation.
// A result with zero discount, no free items, and no free shipping carries
// a message explaining why the offer did not fire (shown on product pages).
type SpecialOfferResult struct {
	OfferID        string            `json:"offer_id"`
	Name           string            `json:"name"`
	NameAr         string            `json:"name_ar,omitempty"`
	OfferType      string            `json:"offer_type"`
	Priority       int               `json:"priority"`
	DiscountAmount int64             `json:"discount_amount"`
	FreeItems      []domain.FreeItem `json:"free_items,omitempty"`
	FreeShipping   bool              `json:"free_shipping"`
	Message        string            `json:"message,omitempty"`
}

// Granted reports whether the result carries any value for the cart.
func (r *SpecialOfferResult) Granted() bool {
	return r.DiscountAmount > 0 || len(r.FreeItems) > 0 || r.FreeShipping
}

// offerOutcome is the per-algorithm evaluation output.
type offerOutcome struct {
	discount     int64
	freeItems    []domain.FreeItem
	freeShipping bool
	message      string
}

type strategyFunc func(offer *domain.SpecialOffer, applicable []domain.CartItem) offerOutcome

// SpecialOfferEvaluator dispatches each offer to the algorithm for its
// type. The strategy set is closed and chosen at construction, not per
// call. Evaluation is pure.
type SpecialOfferEvaluator struct {
	strategies map[string]strategyFunc
}

// NewSpecialOfferEvaluator builds an evaluator with one strategy per
// offer type.
func NewSpecialOfferEvaluator() *SpecialOfferEvaluator {
	return &SpecialOfferEvaluator{
		strategies: map[string]strategyFunc{
			domain.OfferTypeBuyXGetYFree:     evaluateBuyXGetYFree,
			domain.OfferTypeBuyXGetDiscount:  evaluateBuyXGetDiscount,
			domain.OfferTypeBuyXFreeShipping: evaluateBuyXFreeShipping,
			domain.OfferTypeBundleDiscount:   evaluateBundleDiscount,
		},
	}
}

// Evaluate computes the offer's outcome for the cart at the given instant.
// priorUsage is the acting customer's redemption count for this offer,
// supplied by the caller. It returns nil when the offer is not running,
// the customer exhausted their cap, or the offer type is unknown.
func (e *SpecialOfferEvaluator) Evaluate(offer *domain.SpecialOffer, items []domain.CartItem, priorUsage int, now time.Time) *SpecialOfferResult {
	if !offer.IsRunning(now) {
		return nil
	}
	if offer.PerUserCap > 0 && priorUsage >= offer.PerUserCap {
		return nil
	}

	strategy, ok := e.strategies[offer.OfferType]
	if !ok {
		return nil
	}

	result := &SpecialOfferResult{
		OfferID:   offer.ID,
		Name:      offer.Name,
		NameAr:    offer.NameAr,
		OfferType: offer.OfferType,
		Priority:  offer.Priority,
	}

	applicable := applicableItems(offer, items)
	if len(applicable) == 0 {
		result.Message = "offer does not apply to any item in the cart"
		return result
	}

	if offer.MinOrderAmount > 0 && domain.CartSubtotal(applicable) < offer.MinOrderAmount {
		result.Message = "minimum order amount not met"
		return result
	}

	outcome := strategy(offer, applicable)
	result.DiscountAmount = outcome.discount
	result.FreeItems = outcome.freeItems
	result.FreeShipping = outcome.freeShipping
	result.Message = outcome.message
	return result
}

// applicableItems filters the cart to items inside the offer's
// applicability set.
func applicableItems(offer *domain.SpecialOffer, items []domain.CartItem) []domain.CartItem {
	applicable := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		if offer.AppliesTo(item.ProductID, item.CategoryID) {
			applicable = append(applicable, item)
		}
	}
	return applicable
}

func totalQuantity(items []domain.CartItem) int {
	var total int
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

func needMoreMessage(have, need int) string {
	return fmt.Sprintf("add %d more qualifying items to unlock this offer", need-have)
}

// evaluateBuyXGetYFree grants sets of free units, allocated to the
// cheapest applicable items first so the summed discount never exceeds
// the applicable subtotal.
func evaluateBuyXGetYFree(offer *domain.SpecialOffer, applicable []domain.CartItem) offerOutcome {
	totalQty := totalQuantity(applicable)
	if totalQty < offer.BuyQuantity {
		return offerOutcome{message: needMoreMessage(totalQty, offer.BuyQuantity)}
	}

	sets := totalQty / offer.BuyQuantity
	freeUnits := sets * offer.FreeQuantity

	// Stable sort keeps input order for equal prices, so allocation is
	// deterministic.
	sorted := make([]domain.CartItem, len(applicable))
	copy(sorted, applicable)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UnitPrice < sorted[j].UnitPrice
	})

	var outcome offerOutcome
	for _, item := range sorted {
		if freeUnits == 0 {
			break
		}
		take := item.Quantity
		if take > freeUnits {
			take = freeUnits
		}
		outcome.freeItems = append(outcome.freeItems, domain.FreeItem{
			ProductID: item.ProductID,
			Quantity:  take,
			UnitPrice: item.UnitPrice,
		})
		outcome.discount += item.UnitPrice * int64(take)
		freeUnits -= take
	}
	return outcome
}

// evaluateBuyXGetDiscount discounts the applicable subtotal once the
// summed quantity reaches the gate. Fixed discounts clamp to the subtotal
// so the discount never exceeds what the items cost.
func evaluateBuyXGetDiscount(offer *domain.SpecialOffer, applicable []domain.CartItem) offerOutcome {
	totalQty := totalQuantity(applicable)
	if totalQty < offer.BuyQuantity {
		return offerOutcome{message: needMoreMessage(totalQty, offer.BuyQuantity)}
	}
	return offerOutcome{discount: subtotalDiscount(offer, domain.CartSubtotal(applicable))}
}

// evaluateBuyXFreeShipping grants free shipping with a zero discount once
// the quantity gate is met.
func evaluateBuyXFreeShipping(offer *domain.SpecialOffer, applicable []domain.CartItem) offerOutcome {
	totalQty := totalQuantity(applicable)
	if totalQty < offer.BuyQuantity {
		return offerOutcome{message: needMoreMessage(totalQty, offer.BuyQuantity)}
	}
	return offerOutcome{freeShipping: true}
}

// evaluateBundleDiscount gates on the count of distinct applicable line
// items, not the summed quantity.
func evaluateBundleDiscount(offer *domain.SpecialOffer, applicable []domain.CartItem) offerOutcome {
	if len(applicable) < offer.BuyQuantity {
		return offerOutcome{
			message: fmt.Sprintf("bundle requires %d different qualifying products", offer.BuyQuantity),
		}
	}
	return offerOutcome{discount: subtotalDiscount(offer, domain.CartSubtotal(applicable))}
}

func subtotalDiscount(offer *domain.SpecialOffer, subtotal int64) int64 {
	switch offer.DiscountType {
	case domain.DiscountTypePercentage:
		return subtotal * offer.DiscountValue / 10000
	case domain.DiscountTypeFixed:
		if offer.DiscountValue > subtotal {
			return subtotal
		}
		return offer.DiscountValue
	default:
		return 0
	}
}
