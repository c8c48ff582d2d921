package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/soukly/promotion/pkg/errors"

	"github.com/soukly/promotion/internal/domain"
	"github.com/soukly/promotion/internal/event"
	"github.com/soukly/promotion/internal/repository"
)

// UsageService owns the usage ledger: recording redemptions when orders
// complete and releasing them when orders are rolled back.
type UsageService struct {
	usageRepo repository.UsageRepository
	producer  *event.Producer
	logger    *slog.Logger
}

// NewUsageService creates a new usage service.
func NewUsageService(usageRepo repository.UsageRepository, producer *event.Producer, logger *slog.Logger) *UsageService {
	return &UsageService{
		usageRepo: usageRepo,
		producer:  producer,
		logger:    logger,
	}
}

// ConsumedItemInput is the per-product quantity a flash-sale redemption
// consumed.
type ConsumedItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// RecordUsageInput holds the parameters for recording a redemption.
type RecordUsageInput struct {
	OfferKind      string              `json:"offer_kind" validate:"required,oneof=flash_sale special_offer"`
	OfferID        string              `json:"offer_id" validate:"required"`
	UserID         string              `json:"user_id" validate:"required"`
	OrderID        string              `json:"order_id" validate:"required"`
	DiscountAmount int64               `json:"discount_amount" validate:"gte=0"`
	FreeShipping   bool                `json:"free_shipping"`
	FreeItems      []domain.FreeItem   `json:"free_items"`
	OrderTotal     int64               `json:"order_total" validate:"gte=0"`
	ConsumedItems  []ConsumedItemInput `json:"consumed_items"`
}

// RecordUsage commits a redemption to the ledger. Recording is idempotent
// per (offer kind, order): a repeat of an already-recorded order returns
// the existing record without moving any counter.
func (s *UsageService) RecordUsage(ctx context.Context, input *RecordUsageInput) (*domain.OfferUsageRecord, error) {
	if input == nil {
		return nil, apperrors.InvalidInput("usage input is required")
	}
	if input.OrderID == "" {
		return nil, apperrors.InvalidInput("order id is required")
	}
	if input.UserID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if input.DiscountAmount < 0 {
		return nil, apperrors.InvalidInput("discount amount must not be negative")
	}

	offer := domain.OfferRef{Kind: input.OfferKind, ID: input.OfferID}
	if err := offer.Validate(); err != nil {
		return nil, apperrors.InvalidInput("offer kind must be flash_sale or special_offer and offer id is required")
	}

	usage := &domain.OfferUsageRecord{
		ID:                  uuid.New().String(),
		Offer:               offer,
		UserID:              input.UserID,
		OrderID:             input.OrderID,
		DiscountAmount:      input.DiscountAmount,
		FreeShippingApplied: input.FreeShipping,
		FreeItems:           input.FreeItems,
		OrderTotal:          input.OrderTotal,
		CreatedAt:           time.Now().UTC(),
	}

	var err error
	switch offer.Kind {
	case domain.OfferKindFlashSale:
		consumed := make([]repository.ConsumedItem, 0, len(input.ConsumedItems))
		for _, item := range input.ConsumedItems {
			if item.ProductID == "" || item.Quantity <= 0 {
				return nil, apperrors.InvalidInput("consumed items need a product id and a positive quantity")
			}
			consumed = append(consumed, repository.ConsumedItem{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			})
		}
		err = s.usageRepo.RecordFlashSaleUsage(ctx, usage, consumed)
	case domain.OfferKindSpecialOffer:
		err = s.usageRepo.RecordSpecialOfferUsage(ctx, usage)
	}

	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicateOrder) {
			existing, lookupErr := s.existingUsage(ctx, offer.Kind, input.OrderID)
			if lookupErr != nil {
				return nil, fmt.Errorf("load existing usage for order %s: %w", input.OrderID, lookupErr)
			}
			s.logger.InfoContext(ctx, "usage already recorded, returning existing record",
				slog.String("order_id", input.OrderID),
				slog.String("offer_id", offer.ID),
			)
			return existing, nil
		}
		return nil, fmt.Errorf("record %s usage: %w", offer.Kind, err)
	}

	if err := s.producer.PublishUsageRecorded(ctx, usage); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish usage_recorded event",
			slog.String("usage_id", usage.ID),
			slog.String("error", err.Error()),
		)
		// The ledger write is the source of truth; do not fail on publish.
	}

	s.logger.InfoContext(ctx, "offer usage recorded",
		slog.String("usage_id", usage.ID),
		slog.String("offer_kind", offer.Kind),
		slog.String("offer_id", offer.ID),
		slog.String("order_id", input.OrderID),
		slog.Int64("discount_amount", input.DiscountAmount),
	)

	return usage, nil
}

// existingUsage finds the already-committed record that caused a
// duplicate-order conflict.
func (s *UsageService) existingUsage(ctx context.Context, offerKind, orderID string) (*domain.OfferUsageRecord, error) {
	records, err := s.usageRepo.GetByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Offer.Kind == offerKind {
			return &records[i], nil
		}
	}
	return nil, apperrors.NotFound("offer usage for order", orderID)
}

// ReleaseUsage compensates a rolled-back order: counters are reversed and
// the ledger rows removed. The released records are returned.
func (s *UsageService) ReleaseUsage(ctx context.Context, orderID string) ([]domain.OfferUsageRecord, error) {
	if orderID == "" {
		return nil, apperrors.InvalidInput("order id is required")
	}

	records, err := s.usageRepo.ReleaseUsage(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("release usage for order %s: %w", orderID, err)
	}

	for i := range records {
		if err := s.producer.PublishUsageReleased(ctx, &records[i]); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish usage_released event",
				slog.String("order_id", orderID),
				slog.String("offer_id", records[i].Offer.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "offer usage released",
		slog.String("order_id", orderID),
		slog.Int("records", len(records)),
	)

	return records, nil
}

// GetOrderUsages returns the usage records committed for an order.
func (s *UsageService) GetOrderUsages(ctx context.Context, orderID string) ([]domain.OfferUsageRecord, error) {
	if orderID == "" {
		return nil, apperrors.InvalidInput("order id is required")
	}

	records, err := s.usageRepo.GetByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get usages for order %s: %w", orderID, err)
	}

	if records == nil {
		records = []domain.OfferUsageRecord{}
	}

	return records, nil
}
