package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/soukly/promotion/pkg/errors"
	"github.com/soukly/promotion/pkg/slug"

	"github.com/soukly/promotion/internal/cache"
	"github.com/soukly/promotion/internal/domain"
	"github.com/soukly/promotion/internal/event"
	"github.com/soukly/promotion/internal/repository"
)

// AdminService manages the promotion catalog: creating campaigns, entries
// and offers, and toggling them on and off.
type AdminService struct {
	flashRepo repository.FlashSaleRepository
	offerRepo repository.SpecialOfferRepository
	cache     *cache.RunningCache
	producer  *event.Producer
	logger    *slog.Logger
}

// NewAdminService creates a new admin service. The cache is optional.
func NewAdminService(
	flashRepo repository.FlashSaleRepository,
	offerRepo repository.SpecialOfferRepository,
	runningCache *cache.RunningCache,
	producer *event.Producer,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		flashRepo: flashRepo,
		offerRepo: offerRepo,
		cache:     runningCache,
		producer:  producer,
		logger:    logger,
	}
}

// CreateFlashSaleInput holds the parameters for creating a campaign.
type CreateFlashSaleInput struct {
	Name          string    `json:"name" validate:"required"`
	NameAr        string    `json:"name_ar"`
	Description   string    `json:"description"`
	DescriptionAr string    `json:"description_ar"`
	BannerURL     string    `json:"banner_url"`
	Priority      int       `json:"priority"`
	StartTime     time.Time `json:"start_time" validate:"required"`
	EndTime       time.Time `json:"end_time" validate:"required"`
	PerUserCap    int       `json:"per_user_cap" validate:"gte=0"`
	GlobalCap     int       `json:"global_cap" validate:"gte=0"`
}

// CreateFlashSale creates a campaign in the inactive state; entries are
// added separately and the campaign is switched on with SetFlashSaleActive.
func (s *AdminService) CreateFlashSale(ctx context.Context, input *CreateFlashSaleInput) (*domain.FlashSaleCampaign, error) {
	if input.Name == "" {
		return nil, apperrors.InvalidInput("campaign name is required")
	}
	if !input.EndTime.After(input.StartTime) {
		return nil, apperrors.InvalidInput("end time must be after start time")
	}
	if input.PerUserCap < 0 || input.GlobalCap < 0 {
		return nil, apperrors.InvalidInput("caps must not be negative")
	}

	now := time.Now().UTC()
	campaign := &domain.FlashSaleCampaign{
		ID:            uuid.New().String(),
		Name:          input.Name,
		NameAr:        input.NameAr,
		Description:   input.Description,
		DescriptionAr: input.DescriptionAr,
		Slug:          slug.Generate(input.Name),
		BannerURL:     input.BannerURL,
		Priority:      input.Priority,
		IsActive:      false,
		StartTime:     input.StartTime.UTC(),
		EndTime:       input.EndTime.UTC(),
		PerUserCap:    input.PerUserCap,
		GlobalCap:     input.GlobalCap,
		UsageCount:    0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.flashRepo.CreateCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("create flash sale campaign: %w", err)
	}

	s.logger.InfoContext(ctx, "flash sale campaign created",
		slog.String("campaign_id", campaign.ID),
		slog.String("slug", campaign.Slug),
	)

	return campaign, nil
}

// AddFlashSaleEntryInput holds the parameters for adding an entry.
type AddFlashSaleEntryInput struct {
	ProductID     string `json:"product_id" validate:"required"`
	DiscountType  string `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue int64  `json:"discount_value" validate:"required,gt=0"`
	QuantityLimit int    `json:"quantity_limit" validate:"gte=0"`
}

// AddFlashSaleEntry attaches a per-product discount to a campaign.
func (s *AdminService) AddFlashSaleEntry(ctx context.Context, campaignID string, input *AddFlashSaleEntryInput) (*domain.FlashSaleEntry, error) {
	if input.ProductID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if !domain.IsValidDiscountType(input.DiscountType) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid discount type %q, must be one of: %s",
			input.DiscountType, strings.Join(domain.ValidDiscountTypes(), ", ")))
	}
	if input.DiscountValue <= 0 {
		return nil, apperrors.InvalidInput("discount value must be positive")
	}
	if input.DiscountType == domain.DiscountTypePercentage && input.DiscountValue > 10000 {
		return nil, apperrors.InvalidInput("percentage discount must not exceed 10000 basis points")
	}
	if input.QuantityLimit < 0 {
		return nil, apperrors.InvalidInput("quantity limit must not be negative")
	}

	// The campaign must exist before an entry can reference it.
	campaign, err := s.flashRepo.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("get campaign for entry: %w", err)
	}

	now := time.Now().UTC()
	entry := &domain.FlashSaleEntry{
		ID:            uuid.New().String(),
		CampaignID:    campaign.ID,
		ProductID:     input.ProductID,
		DiscountType:  input.DiscountType,
		DiscountValue: input.DiscountValue,
		QuantityLimit: input.QuantityLimit,
		SoldQuantity:  0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.flashRepo.CreateEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("create flash sale entry: %w", err)
	}

	s.invalidateFlashSaleCache(ctx)

	s.logger.InfoContext(ctx, "flash sale entry added",
		slog.String("campaign_id", campaign.ID),
		slog.String("product_id", entry.ProductID),
	)

	return entry, nil
}

// GetFlashSale retrieves a campaign with its entries.
func (s *AdminService) GetFlashSale(ctx context.Context, id string) (*domain.FlashSaleCampaign, []domain.FlashSaleEntry, error) {
	campaign, err := s.flashRepo.GetCampaign(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get flash sale campaign: %w", err)
	}

	entries, err := s.flashRepo.ListEntries(ctx, []string{campaign.ID})
	if err != nil {
		return nil, nil, fmt.Errorf("list campaign entries: %w", err)
	}

	campaignEntries := entries[campaign.ID]
	if campaignEntries == nil {
		campaignEntries = []domain.FlashSaleEntry{}
	}

	return campaign, campaignEntries, nil
}

// ListFlashSales returns a filtered, paginated list of campaigns.
func (s *AdminService) ListFlashSales(ctx context.Context, filter repository.FlashSaleFilter) ([]domain.FlashSaleCampaign, int, error) {
	normalizePaging(&filter.Page, &filter.PerPage)

	campaigns, total, err := s.flashRepo.ListCampaigns(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list flash sale campaigns: %w", err)
	}

	return campaigns, total, nil
}

// SetFlashSaleActive toggles a campaign and invalidates the running cache
// so the change is visible within one evaluation cycle.
func (s *AdminService) SetFlashSaleActive(ctx context.Context, id string, active bool) (*domain.FlashSaleCampaign, error) {
	if err := s.flashRepo.SetActive(ctx, id, active); err != nil {
		return nil, fmt.Errorf("set flash sale active: %w", err)
	}

	campaign, err := s.flashRepo.GetCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get campaign after toggle: %w", err)
	}

	s.invalidateFlashSaleCache(ctx)

	if err := s.producer.PublishFlashSaleUpdated(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish flash_sale_updated event",
			slog.String("campaign_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "flash sale campaign toggled",
		slog.String("campaign_id", id),
		slog.Bool("is_active", active),
	)

	return campaign, nil
}

// CreateSpecialOfferInput holds the parameters for creating an offer.
type CreateSpecialOfferInput struct {
	Name                 string     `json:"name" validate:"required"`
	NameAr               string     `json:"name_ar"`
	Description          string     `json:"description"`
	DescriptionAr        string     `json:"description_ar"`
	BannerURL            string     `json:"banner_url"`
	Priority             int        `json:"priority"`
	OfferType            string     `json:"offer_type" validate:"required"`
	BuyQuantity          int        `json:"buy_quantity" validate:"gte=0"`
	FreeQuantity         int        `json:"free_quantity" validate:"gte=0"`
	DiscountType         string     `json:"discount_type"`
	DiscountValue        int64      `json:"discount_value" validate:"gte=0"`
	ApplicableProducts   []string   `json:"applicable_products"`
	ApplicableCategories []string   `json:"applicable_categories"`
	StartTime            time.Time  `json:"start_time" validate:"required"`
	EndTime              *time.Time `json:"end_time"`
	PerUserCap           int        `json:"per_user_cap" validate:"gte=0"`
	GlobalCap            int        `json:"global_cap" validate:"gte=0"`
	MinOrderAmount       int64      `json:"min_order_amount" validate:"gte=0"`
}

// CreateSpecialOffer creates an offer in the inactive state.
func (s *AdminService) CreateSpecialOffer(ctx context.Context, input *CreateSpecialOfferInput) (*domain.SpecialOffer, error) {
	if input.Name == "" {
		return nil, apperrors.InvalidInput("offer name is required")
	}
	if !domain.IsValidOfferType(input.OfferType) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid offer type %q, must be one of: %s",
			input.OfferType, strings.Join(domain.ValidOfferTypes(), ", ")))
	}
	if input.EndTime != nil && !input.EndTime.After(input.StartTime) {
		return nil, apperrors.InvalidInput("end time must be after start time")
	}
	if err := validateOfferShape(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	offer := &domain.SpecialOffer{
		ID:                   uuid.New().String(),
		Name:                 input.Name,
		NameAr:               input.NameAr,
		Description:          input.Description,
		DescriptionAr:        input.DescriptionAr,
		Slug:                 slug.Generate(input.Name),
		BannerURL:            input.BannerURL,
		Priority:             input.Priority,
		OfferType:            input.OfferType,
		BuyQuantity:          input.BuyQuantity,
		FreeQuantity:         input.FreeQuantity,
		DiscountType:         input.DiscountType,
		DiscountValue:        input.DiscountValue,
		ApplicableProducts:   input.ApplicableProducts,
		ApplicableCategories: input.ApplicableCategories,
		StartTime:            input.StartTime.UTC(),
		PerUserCap:           input.PerUserCap,
		GlobalCap:            input.GlobalCap,
		UsageCount:           0,
		MinOrderAmount:       input.MinOrderAmount,
		IsActive:             false,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if input.EndTime != nil {
		end := input.EndTime.UTC()
		offer.EndTime = &end
	}
	if offer.ApplicableProducts == nil {
		offer.ApplicableProducts = []string{}
	}
	if offer.ApplicableCategories == nil {
		offer.ApplicableCategories = []string{}
	}

	if err := s.offerRepo.Create(ctx, offer); err != nil {
		return nil, fmt.Errorf("create special offer: %w", err)
	}

	s.logger.InfoContext(ctx, "special offer created",
		slog.String("offer_id", offer.ID),
		slog.String("offer_type", offer.OfferType),
		slog.String("slug", offer.Slug),
	)

	return offer, nil
}

// validateOfferShape checks the type-specific parameters.
func validateOfferShape(input *CreateSpecialOfferInput) error {
	switch input.OfferType {
	case domain.OfferTypeBuyXGetYFree:
		if input.BuyQuantity <= 0 || input.FreeQuantity <= 0 {
			return apperrors.InvalidInput("buy_x_get_y_free requires positive buy and free quantities")
		}
	case domain.OfferTypeBuyXGetDiscount:
		if input.BuyQuantity <= 0 {
			return apperrors.InvalidInput("buy_x_get_discount requires a positive buy quantity")
		}
		if !domain.IsValidDiscountType(input.DiscountType) || input.DiscountValue <= 0 {
			return apperrors.InvalidInput("buy_x_get_discount requires a discount type and a positive value")
		}
	case domain.OfferTypeBuyXFreeShipping:
		if input.BuyQuantity <= 0 {
			return apperrors.InvalidInput("buy_x_free_shipping requires a positive buy quantity")
		}
	case domain.OfferTypeBundleDiscount:
		if input.BuyQuantity <= 0 {
			return apperrors.InvalidInput("bundle_discount requires a positive bundle size")
		}
		if !domain.IsValidDiscountType(input.DiscountType) || input.DiscountValue <= 0 {
			return apperrors.InvalidInput("bundle_discount requires a discount type and a positive value")
		}
	}
	if input.DiscountType == domain.DiscountTypePercentage && input.DiscountValue > 10000 {
		return apperrors.InvalidInput("percentage discount must not exceed 10000 basis points")
	}
	return nil
}

// GetSpecialOffer retrieves an offer by ID.
func (s *AdminService) GetSpecialOffer(ctx context.Context, id string) (*domain.SpecialOffer, error) {
	offer, err := s.offerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get special offer: %w", err)
	}
	return offer, nil
}

// ListSpecialOffers returns a filtered, paginated list of offers.
func (s *AdminService) ListSpecialOffers(ctx context.Context, filter repository.SpecialOfferFilter) ([]domain.SpecialOffer, int, error) {
	if filter.OfferType != nil && !domain.IsValidOfferType(*filter.OfferType) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid offer type %q", *filter.OfferType))
	}
	normalizePaging(&filter.Page, &filter.PerPage)

	offers, total, err := s.offerRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list special offers: %w", err)
	}

	return offers, total, nil
}

// SetSpecialOfferActive toggles an offer and invalidates the running cache.
func (s *AdminService) SetSpecialOfferActive(ctx context.Context, id string, active bool) (*domain.SpecialOffer, error) {
	if err := s.offerRepo.SetActive(ctx, id, active); err != nil {
		return nil, fmt.Errorf("set special offer active: %w", err)
	}

	offer, err := s.offerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get offer after toggle: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateSpecialOffers(ctx); err != nil {
			s.logger.WarnContext(ctx, "special offer cache invalidation failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.producer.PublishSpecialOfferUpdated(ctx, offer); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish special_offer_updated event",
			slog.String("offer_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "special offer toggled",
		slog.String("offer_id", id),
		slog.Bool("is_active", active),
	)

	return offer, nil
}

func (s *AdminService) invalidateFlashSaleCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFlashSales(ctx); err != nil {
		s.logger.WarnContext(ctx, "flash sale cache invalidation failed",
			slog.String("error", err.Error()),
		)
	}
}

func normalizePaging(page, perPage *int) {
	if *page <= 0 {
		*page = 1
	}
	if *perPage <= 0 {
		*perPage = 20
	}
	if *perPage > 100 {
		*perPage = 100
	}
}
