package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/soukly/promotion/pkg/errors"

	"github.com/soukly/promotion/internal/cache"
	"github.com/soukly/promotion/internal/client"
	"github.com/soukly/promotion/internal/domain"
	"github.com/soukly/promotion/internal/engine"
	"github.com/soukly/promotion/internal/repository"
)

// ProductResolver resolves product details from the catalog service.
// *client.CatalogClient satisfies this.
type ProductResolver interface {
	GetProducts(ctx context.Context, productIDs []string) (map[string]*client.Product, error)
}

// EvaluationService computes which promotions apply to a cart. Evaluation
// is read-only: it never mutates usage counters.
type EvaluationService struct {
	flashRepo repository.FlashSaleRepository
	offerRepo repository.SpecialOfferRepository
	usageRepo repository.UsageRepository
	cache     *cache.RunningCache
	catalog   ProductResolver
	flashEval engine.FlashSaleEvaluator
	offerEval *engine.SpecialOfferEvaluator
	logger    *slog.Logger
}

// NewEvaluationService creates a new evaluation service. The cache and
// catalog resolver are optional; a nil cache reads straight from the
// repositories and a nil resolver skips product enrichment.
func NewEvaluationService(
	flashRepo repository.FlashSaleRepository,
	offerRepo repository.SpecialOfferRepository,
	usageRepo repository.UsageRepository,
	runningCache *cache.RunningCache,
	catalog ProductResolver,
	logger *slog.Logger,
) *EvaluationService {
	return &EvaluationService{
		flashRepo: flashRepo,
		offerRepo: offerRepo,
		usageRepo: usageRepo,
		cache:     runningCache,
		catalog:   catalog,
		offerEval: engine.NewSpecialOfferEvaluator(),
		logger:    logger,
	}
}

// CartItemInput is one cart line in an evaluation request.
type CartItemInput struct {
	ProductID  string `json:"product_id" validate:"required"`
	CategoryID string `json:"category_id"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice  int64  `json:"unit_price" validate:"gte=0"`
}

// EvaluateInput holds the parameters for a cart evaluation.
type EvaluateInput struct {
	UserID string          `json:"user_id"`
	Items  []CartItemInput `json:"items" validate:"required,min=1,dive"`
}

// Evaluate runs every running promotion against the cart and selects the
// best one. A failure inside a single campaign or offer is logged and
// skipped so one broken promotion cannot take down checkout pricing.
func (s *EvaluationService) Evaluate(ctx context.Context, input *EvaluateInput) (*engine.Selection, error) {
	if input == nil || len(input.Items) == 0 {
		return nil, apperrors.InvalidInput("at least one cart item is required")
	}
	for i, item := range input.Items {
		if item.ProductID == "" {
			return nil, apperrors.InvalidInput(fmt.Sprintf("item %d: product_id is required", i))
		}
		if item.Quantity <= 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if item.UnitPrice < 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("item %d: unit_price must not be negative", i))
		}
	}

	items := s.resolveItems(ctx, input.Items)
	now := time.Now().UTC()

	flashResults := s.evaluateFlashSales(ctx, input.UserID, items, now)
	offerResults := s.evaluateSpecialOffers(ctx, input.UserID, items, now)

	selection := engine.SelectBest(flashResults, offerResults)

	s.logger.InfoContext(ctx, "cart evaluated",
		slog.String("user_id", input.UserID),
		slog.Int("items", len(items)),
		slog.Int("flash_sales", len(selection.FlashSales)),
		slog.Int("special_offers", len(selection.SpecialOffers)),
		slog.Int64("total_discount", selection.TotalDiscount),
	)

	return &selection, nil
}

// resolveItems fills in missing category and price details from the
// catalog. When the catalog is unreachable the items are evaluated as
// given; an unknown category simply matches fewer offers.
func (s *EvaluationService) resolveItems(ctx context.Context, inputs []CartItemInput) []domain.CartItem {
	items := make([]domain.CartItem, 0, len(inputs))

	var missing []string
	for _, in := range inputs {
		if in.CategoryID == "" || in.UnitPrice == 0 {
			missing = append(missing, in.ProductID)
		}
	}

	var products map[string]*client.Product
	if len(missing) > 0 && s.catalog != nil {
		resolved, err := s.catalog.GetProducts(ctx, missing)
		if err != nil {
			s.logger.WarnContext(ctx, "catalog enrichment failed, evaluating items as given",
				slog.String("error", err.Error()),
			)
		} else {
			products = resolved
		}
	}

	for _, in := range inputs {
		item := domain.CartItem{
			ProductID:  in.ProductID,
			CategoryID: in.CategoryID,
			Quantity:   in.Quantity,
			UnitPrice:  in.UnitPrice,
		}
		if p, ok := products[in.ProductID]; ok {
			if item.CategoryID == "" {
				item.CategoryID = p.CategoryID
			}
			if item.UnitPrice == 0 {
				item.UnitPrice = p.Price
			}
		}
		items = append(items, item)
	}

	return items
}

func (s *EvaluationService) evaluateFlashSales(ctx context.Context, userID string, items []domain.CartItem, now time.Time) []engine.FlashSaleResult {
	snapshot, err := s.loadFlashSales(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load running flash sales",
			slog.String("error", err.Error()),
		)
		return nil
	}

	return s.runFlashSales(ctx, userID, snapshot, items, now)
}

// runFlashSales evaluates the cart against an already-loaded campaign
// snapshot, applying per-user caps for the acting user.
func (s *EvaluationService) runFlashSales(ctx context.Context, userID string, snapshot *cache.RunningFlashSales, items []domain.CartItem, now time.Time) []engine.FlashSaleResult {
	var results []engine.FlashSaleResult
	for i := range snapshot.Campaigns {
		campaign := &snapshot.Campaigns[i]

		if campaign.PerUserCap > 0 && userID != "" {
			count, err := s.usageRepo.CountByUser(ctx, domain.FlashSaleRef(campaign.ID), userID)
			if err != nil {
				s.logger.ErrorContext(ctx, "failed to count flash sale usage, skipping campaign",
					slog.String("campaign_id", campaign.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if count >= campaign.PerUserCap {
				continue
			}
		}

		result := s.flashEval.Evaluate(campaign, snapshot.Entries[campaign.ID], items, now)
		if result != nil {
			results = append(results, *result)
		}
	}

	return results
}

func (s *EvaluationService) evaluateSpecialOffers(ctx context.Context, userID string, items []domain.CartItem, now time.Time) []engine.SpecialOfferResult {
	offers, err := s.loadSpecialOffers(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load running special offers",
			slog.String("error", err.Error()),
		)
		return nil
	}

	return s.runSpecialOffers(ctx, userID, offers, items, now)
}

// runSpecialOffers evaluates the cart against already-loaded offers,
// applying per-user caps for the acting user.
func (s *EvaluationService) runSpecialOffers(ctx context.Context, userID string, offers []domain.SpecialOffer, items []domain.CartItem, now time.Time) []engine.SpecialOfferResult {
	var results []engine.SpecialOfferResult
	for i := range offers {
		offer := &offers[i]

		priorUsage := 0
		if offer.PerUserCap > 0 && userID != "" {
			count, err := s.usageRepo.CountByUser(ctx, domain.SpecialOfferRef(offer.ID), userID)
			if err != nil {
				s.logger.ErrorContext(ctx, "failed to count special offer usage, skipping offer",
					slog.String("offer_id", offer.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			priorUsage = count
		}

		result := s.offerEval.Evaluate(offer, items, priorUsage, now)
		if result != nil {
			results = append(results, *result)
		}
	}

	return results
}

// runningFlashSales loads the running campaign snapshot, preferring the
// cache. Cache errors fall through to the repository. Cart evaluation
// calls loadFlashSales instead: cached sold counters can lag behind the
// ledger within the TTL.
func (s *EvaluationService) runningFlashSales(ctx context.Context, now time.Time) (*cache.RunningFlashSales, error) {
	if s.cache != nil {
		snapshot, err := s.cache.GetFlashSales(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "flash sale cache read failed",
				slog.String("error", err.Error()),
			)
		} else if snapshot != nil {
			return snapshot, nil
		}
	}

	return s.loadFlashSales(ctx, now)
}

// loadFlashSales reads the running snapshot straight from the
// repositories and refreshes the cache on the way out.
func (s *EvaluationService) loadFlashSales(ctx context.Context, now time.Time) (*cache.RunningFlashSales, error) {
	campaigns, err := s.flashRepo.ListRunning(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list running flash sales: %w", err)
	}

	ids := make([]string, 0, len(campaigns))
	for _, c := range campaigns {
		ids = append(ids, c.ID)
	}

	entries, err := s.flashRepo.ListEntries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list flash sale entries: %w", err)
	}

	snapshot := &cache.RunningFlashSales{Campaigns: campaigns, Entries: entries}

	if s.cache != nil {
		if err := s.cache.SetFlashSales(ctx, snapshot); err != nil {
			s.logger.WarnContext(ctx, "flash sale cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return snapshot, nil
}

// runningSpecialOffers loads the running offers, preferring the cache.
func (s *EvaluationService) runningSpecialOffers(ctx context.Context, now time.Time) ([]domain.SpecialOffer, error) {
	if s.cache != nil {
		offers, err := s.cache.GetSpecialOffers(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "special offer cache read failed",
				slog.String("error", err.Error()),
			)
		} else if offers != nil {
			return offers, nil
		}
	}

	return s.loadSpecialOffers(ctx, now)
}

// loadSpecialOffers reads the running offers straight from the repository
// and refreshes the cache on the way out.
func (s *EvaluationService) loadSpecialOffers(ctx context.Context, now time.Time) ([]domain.SpecialOffer, error) {
	offers, err := s.offerRepo.ListRunning(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list running special offers: %w", err)
	}

	if offers == nil {
		offers = []domain.SpecialOffer{}
	}

	if s.cache != nil {
		if err := s.cache.SetSpecialOffers(ctx, offers); err != nil {
			s.logger.WarnContext(ctx, "special offer cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return offers, nil
}

// ProductFlashSale pairs a running campaign with its entry for a product.
type ProductFlashSale struct {
	Campaign domain.FlashSaleCampaign `json:"campaign"`
	Entry    domain.FlashSaleEntry    `json:"entry"`
}

// ProductOffers lists the promotions currently attached to one product,
// with the best discount the requested quantity would earn.
type ProductOffers struct {
	ProductID     string                `json:"product_id"`
	FlashSales    []ProductFlashSale    `json:"flash_sales"`
	SpecialOffers []domain.SpecialOffer `json:"special_offers"`
	BestDiscount  int64                 `json:"best_discount"`
	HasOffers     bool                  `json:"has_offers"`
}

// CheckProductInput identifies the product and purchase context for a
// product-page offer lookup. Quantity defaults to 1; UserID is optional
// and enables per-user cap checks on the computed discount.
type CheckProductInput struct {
	ProductID  string
	CategoryID string
	Quantity   int
	UserID     string
}

// CheckProductOffers returns the running promotions that mention a
// product: flash-sale entries with remaining quantity and special offers
// whose applicability covers it. BestDiscount is the winning discount for
// a cart holding Quantity units of the product at its catalog price.
func (s *EvaluationService) CheckProductOffers(ctx context.Context, input *CheckProductInput) (*ProductOffers, error) {
	if input == nil || input.ProductID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	quantity := input.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	now := time.Now().UTC()

	categoryID := input.CategoryID
	var unitPrice int64
	if s.catalog != nil {
		products, err := s.catalog.GetProducts(ctx, []string{input.ProductID})
		if err == nil {
			if p, ok := products[input.ProductID]; ok {
				if categoryID == "" {
					categoryID = p.CategoryID
				}
				unitPrice = p.Price
			}
		}
	}

	result := &ProductOffers{
		ProductID:     input.ProductID,
		FlashSales:    []ProductFlashSale{},
		SpecialOffers: []domain.SpecialOffer{},
	}

	snapshot, err := s.runningFlashSales(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, campaign := range snapshot.Campaigns {
		if !campaign.IsRunning(now) {
			continue
		}
		for _, entry := range snapshot.Entries[campaign.ID] {
			if entry.ProductID == input.ProductID && entry.Available() {
				result.FlashSales = append(result.FlashSales, ProductFlashSale{
					Campaign: campaign,
					Entry:    entry,
				})
			}
		}
	}

	offers, err := s.runningSpecialOffers(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, offer := range offers {
		if !offer.IsRunning(now) {
			continue
		}
		if offer.AppliesTo(input.ProductID, categoryID) {
			result.SpecialOffers = append(result.SpecialOffers, offer)
		}
	}

	// Price the requested quantity as a one-line cart so the page can
	// show the discount the shopper would actually get.
	item := domain.CartItem{
		ProductID:  input.ProductID,
		CategoryID: categoryID,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
	}
	selection := engine.SelectBest(
		s.runFlashSales(ctx, input.UserID, snapshot, []domain.CartItem{item}, now),
		s.runSpecialOffers(ctx, input.UserID, offers, []domain.CartItem{item}, now),
	)
	result.BestDiscount = selection.TotalDiscount

	result.HasOffers = len(result.FlashSales) > 0 || len(result.SpecialOffers) > 0
	return result, nil
}

// ListRunningFlashSales returns the currently running campaigns with
// their entries, served from the cache when it is warm.
func (s *EvaluationService) ListRunningFlashSales(ctx context.Context) (*cache.RunningFlashSales, error) {
	return s.runningFlashSales(ctx, time.Now().UTC())
}

// ListRunningSpecialOffers returns the currently running special offers.
func (s *EvaluationService) ListRunningSpecialOffers(ctx context.Context) ([]domain.SpecialOffer, error) {
	return s.runningSpecialOffers(ctx, time.Now().UTC())
}

// HasActiveOffers reports whether any running promotion mentions the product.
func (s *EvaluationService) HasActiveOffers(ctx context.Context, productID, categoryID string) (bool, error) {
	offers, err := s.CheckProductOffers(ctx, &CheckProductInput{
		ProductID:  productID,
		CategoryID: categoryID,
	})
	if err != nil {
		return false, err
	}
	return offers.HasOffers, nil
}
