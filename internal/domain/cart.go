package domain

// CartItem is one line of the cart snapshot submitted for evaluation.
// CategoryID is resolved from the catalog when available; it is empty when
// the caller did not supply it and the catalog lookup degraded.
type CartItem struct {
	ProductID  string `json:"product_id"`
	CategoryID string `json:"category_id,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
}

// Subtotal returns the undiscounted line total.
func (i CartItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// CartSubtotal sums line totals over the snapshot.
func CartSubtotal(items []CartItem) int64 {
	var total int64
	for _, item := range items {
		total += item.Subtotal()
	}
	return total
}
