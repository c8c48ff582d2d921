package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/soukly/promotion/pkg/kafka"

	"github.com/soukly/promotion/internal/domain"
)

// Kafka topics for promotion domain events.
var (
	TopicUsageRecorded       = pkgkafka.Topic("promotion", "usage_recorded")
	TopicUsageReleased       = pkgkafka.Topic("promotion", "usage_released")
	TopicFlashSaleUpdated    = pkgkafka.Topic("promotion", "flash_sale_updated")
	TopicSpecialOfferUpdated = pkgkafka.Topic("promotion", "special_offer_updated")
)

// Aggregate type constants.
const (
	AggregateTypeFlashSale    = "flash_sale_campaign"
	AggregateTypeSpecialOffer = "special_offer"
	AggregateTypeUsage        = "offer_usage"
)

// SourcePromotionService identifies events originating from this service.
const SourcePromotionService = "promotion-service"

// UsageRecordedData is the payload for a promotion.usage_recorded event.
type UsageRecordedData struct {
	UsageID        string `json:"usage_id"`
	OfferKind      string `json:"offer_kind"`
	OfferID        string `json:"offer_id"`
	UserID         string `json:"user_id"`
	OrderID        string `json:"order_id"`
	DiscountAmount int64  `json:"discount_amount"`
	FreeShipping   bool   `json:"free_shipping"`
	OrderTotal     int64  `json:"order_total"`
}

// UsageReleasedData is the payload for a promotion.usage_released event.
type UsageReleasedData struct {
	OrderID        string `json:"order_id"`
	OfferKind      string `json:"offer_kind"`
	OfferID        string `json:"offer_id"`
	UserID         string `json:"user_id"`
	DiscountAmount int64  `json:"discount_amount"`
}

// OfferUpdatedData is the payload for flash_sale_updated and
// special_offer_updated events.
type OfferUpdatedData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	IsActive bool   `json:"is_active"`
}

// Producer publishes promotion domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the promotion service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUsageRecorded publishes a promotion.usage_recorded event.
func (p *Producer) PublishUsageRecorded(ctx context.Context, usage *domain.OfferUsageRecord) error {
	data := UsageRecordedData{
		UsageID:        usage.ID,
		OfferKind:      usage.Offer.Kind,
		OfferID:        usage.Offer.ID,
		UserID:         usage.UserID,
		OrderID:        usage.OrderID,
		DiscountAmount: usage.DiscountAmount,
		FreeShipping:   usage.FreeShippingApplied,
		OrderTotal:     usage.OrderTotal,
	}

	event, err := pkgkafka.NewEvent(TopicUsageRecorded, usage.ID, AggregateTypeUsage, SourcePromotionService, data)
	if err != nil {
		return fmt.Errorf("create usage_recorded event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUsageRecorded, event); err != nil {
		return fmt.Errorf("publish usage_recorded event: %w", err)
	}

	p.logger.DebugContext(ctx, "published usage_recorded event",
		slog.String("usage_id", usage.ID),
		slog.String("order_id", usage.OrderID),
	)

	return nil
}

// PublishUsageReleased publishes a promotion.usage_released event for each
// released record.
func (p *Producer) PublishUsageReleased(ctx context.Context, record *domain.OfferUsageRecord) error {
	data := UsageReleasedData{
		OrderID:        record.OrderID,
		OfferKind:      record.Offer.Kind,
		OfferID:        record.Offer.ID,
		UserID:         record.UserID,
		DiscountAmount: record.DiscountAmount,
	}

	event, err := pkgkafka.NewEvent(TopicUsageReleased, record.ID, AggregateTypeUsage, SourcePromotionService, data)
	if err != nil {
		return fmt.Errorf("create usage_released event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUsageReleased, event); err != nil {
		return fmt.Errorf("publish usage_released event: %w", err)
	}

	p.logger.DebugContext(ctx, "published usage_released event",
		slog.String("order_id", record.OrderID),
		slog.String("offer_id", record.Offer.ID),
	)

	return nil
}

// PublishFlashSaleUpdated publishes a promotion.flash_sale_updated event.
func (p *Producer) PublishFlashSaleUpdated(ctx context.Context, campaign *domain.FlashSaleCampaign) error {
	data := OfferUpdatedData{
		ID:       campaign.ID,
		Name:     campaign.Name,
		Slug:     campaign.Slug,
		IsActive: campaign.IsActive,
	}

	event, err := pkgkafka.NewEvent(TopicFlashSaleUpdated, campaign.ID, AggregateTypeFlashSale, SourcePromotionService, data)
	if err != nil {
		return fmt.Errorf("create flash_sale_updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicFlashSaleUpdated, event); err != nil {
		return fmt.Errorf("publish flash_sale_updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published flash_sale_updated event",
		slog.String("campaign_id", campaign.ID),
		slog.Bool("is_active", campaign.IsActive),
	)

	return nil
}

// PublishSpecialOfferUpdated publishes a promotion.special_offer_updated event.
func (p *Producer) PublishSpecialOfferUpdated(ctx context.Context, offer *domain.SpecialOffer) error {
	data := OfferUpdatedData{
		ID:       offer.ID,
		Name:     offer.Name,
		Slug:     offer.Slug,
		IsActive: offer.IsActive,
	}

	event, err := pkgkafka.NewEvent(TopicSpecialOfferUpdated, offer.ID, AggregateTypeSpecialOffer, SourcePromotionService, data)
	if err != nil {
		return fmt.Errorf("create special_offer_updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicSpecialOfferUpdated, event); err != nil {
		return fmt.Errorf("publish special_offer_updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published special_offer_updated event",
		slog.String("offer_id", offer.ID),
		slog.Bool("is_active", offer.IsActive),
	)

	return nil
}
