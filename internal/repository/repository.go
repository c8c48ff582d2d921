package repository

import (
	"context"
	"time"

	"github.com/soukly/promotion/internal/domain"
)

// FlashSaleFilter defines filter criteria for listing flash-sale campaigns.
type FlashSaleFilter struct {
	Active  *bool
	Page    int
	PerPage int
}

// SpecialOfferFilter defines filter criteria for listing special offers.
type SpecialOfferFilter struct {
	Active    *bool
	OfferType *string
	Page      int
	PerPage   int
}

// ConsumedItem is the per-product quantity a flash-sale usage consumes
// from an entry's promotional quantity.
type ConsumedItem struct {
	ProductID string
	Quantity  int
}

// FlashSaleRepository defines persistence operations for flash-sale
// campaigns and their entries.
type FlashSaleRepository interface {
	// CreateCampaign inserts a new campaign into the store.
	CreateCampaign(ctx context.Context, campaign *domain.FlashSaleCampaign) error

	// CreateEntry inserts a new per-product entry for a campaign.
	CreateEntry(ctx context.Context, entry *domain.FlashSaleEntry) error

	// GetCampaign retrieves a campaign by its unique identifier.
	GetCampaign(ctx context.Context, id string) (*domain.FlashSaleCampaign, error)

	// ListCampaigns returns campaigns matching the filter with the total count.
	ListCampaigns(ctx context.Context, filter FlashSaleFilter) ([]domain.FlashSaleCampaign, int, error)

	// ListRunning returns campaigns that are active and inside their window
	// at the given instant, ordered by priority then creation time.
	ListRunning(ctx context.Context, now time.Time) ([]domain.FlashSaleCampaign, error)

	// ListEntries returns the entries of the given campaigns keyed by
	// campaign ID.
	ListEntries(ctx context.Context, campaignIDs []string) (map[string][]domain.FlashSaleEntry, error)

	// SetActive toggles a campaign's active flag.
	SetActive(ctx context.Context, id string, active bool) error
}

// SpecialOfferRepository defines persistence operations for special offers.
type SpecialOfferRepository interface {
	// Create inserts a new special offer into the store.
	Create(ctx context.Context, offer *domain.SpecialOffer) error

	// GetByID retrieves an offer by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.SpecialOffer, error)

	// List returns offers matching the filter with the total count.
	List(ctx context.Context, filter SpecialOfferFilter) ([]domain.SpecialOffer, int, error)

	// ListRunning returns offers that are active and inside their window at
	// the given instant, ordered by priority then creation time.
	ListRunning(ctx context.Context, now time.Time) ([]domain.SpecialOffer, error)

	// SetActive toggles an offer's active flag.
	SetActive(ctx context.Context, id string, active bool) error
}

// UsageRepository is the ledger: the only writer of usage counters and
// usage records. All mutations for one order run in a single transaction
// with guarded counter updates, so caps are never exceeded under
// concurrent order placement.
type UsageRepository interface {
	// RecordFlashSaleUsage increments the campaign usage counter and each
	// consumed entry's sold quantity, then inserts the usage record. It
	// returns ErrDuplicateOrder when the order already has a flash-sale
	// usage, ErrUsageLimitReached when the campaign cap is exhausted, and
	// ErrQuantityExhausted when an entry cannot cover the consumption.
	RecordFlashSaleUsage(ctx context.Context, usage *domain.OfferUsageRecord, consumed []ConsumedItem) error

	// RecordSpecialOfferUsage increments the offer usage counter and
	// inserts the usage record, with the same duplicate and cap semantics.
	RecordSpecialOfferUsage(ctx context.Context, usage *domain.OfferUsageRecord) error

	// ReleaseUsage compensates a rolled-back order: reverses the counters
	// touched by the order's usages and deletes the records, in one
	// transaction. It returns the released records.
	ReleaseUsage(ctx context.Context, orderID string) ([]domain.OfferUsageRecord, error)

	// GetByOrder returns the usage records committed for an order.
	GetByOrder(ctx context.Context, orderID string) ([]domain.OfferUsageRecord, error)

	// CountByUser returns how many times a user redeemed the given offer.
	CountByUser(ctx context.Context, offer domain.OfferRef, userID string) (int, error)
}
