package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/soukly/promotion/pkg/errors"
	pkgkafka "github.com/soukly/promotion/pkg/kafka"

	"github.com/soukly/promotion/internal/domain"
	"github.com/soukly/promotion/internal/service"
)

// Kafka topics consumed by the promotion service.
var (
	TopicOrderCompleted = pkgkafka.Topic("order", "completed")
	TopicOrderCanceled  = pkgkafka.Topic("order", "canceled")
)

// UsageRecorder is the slice of the usage service the consumer needs.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, input *service.RecordUsageInput) (*domain.OfferUsageRecord, error)
	ReleaseUsage(ctx context.Context, orderID string) ([]domain.OfferUsageRecord, error)
}

// AppliedPromotion is one promotion the order service settled the order with.
type AppliedPromotion struct {
	OfferKind      string            `json:"offer_kind"`
	OfferID        string            `json:"offer_id"`
	DiscountAmount int64             `json:"discount_amount"`
	FreeShipping   bool              `json:"free_shipping"`
	FreeItems      []domain.FreeItem `json:"free_items,omitempty"`
	ConsumedItems  []ConsumedItem    `json:"consumed_items,omitempty"`
}

// ConsumedItem is a per-product flash-sale consumption in an order event.
type ConsumedItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// OrderCompletedData is the expected payload of an order.completed event.
type OrderCompletedData struct {
	OrderID     string             `json:"order_id"`
	UserID      string             `json:"user_id"`
	TotalAmount int64              `json:"total_amount"`
	Promotions  []AppliedPromotion `json:"promotions"`
}

// OrderCanceledData is the expected payload of an order.canceled event.
type OrderCanceledData struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

// Consumer processes incoming order events for the promotion service.
// Processing is idempotent twice over: replayed events are dropped by the
// idempotency store, and replayed orders are absorbed by the ledger's
// per-order uniqueness.
type Consumer struct {
	usage     UsageRecorder
	processed pkgkafka.IdempotencyStore
	logger    *slog.Logger
}

// NewConsumer creates a new event consumer for the promotion service.
func NewConsumer(usage UsageRecorder, processed pkgkafka.IdempotencyStore, logger *slog.Logger) *Consumer {
	return &Consumer{
		usage:     usage,
		processed: processed,
		logger:    logger,
	}
}

// HandleOrderCompleted records the usage of every promotion the completed
// order carried.
func (c *Consumer) HandleOrderCompleted(ctx context.Context, event *pkgkafka.Event) error {
	if c.seen(ctx, event.EventID) {
		c.logger.DebugContext(ctx, "skipping already processed event",
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	var data OrderCompletedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal order.completed data: %w", err)
	}
	if data.OrderID == "" {
		return fmt.Errorf("order.completed event %s has no order_id", event.EventID)
	}

	c.logger.InfoContext(ctx, "processing order.completed event",
		slog.String("order_id", data.OrderID),
		slog.Int("promotions", len(data.Promotions)),
	)

	for _, promo := range data.Promotions {
		input := &service.RecordUsageInput{
			OfferKind:      promo.OfferKind,
			OfferID:        promo.OfferID,
			UserID:         data.UserID,
			OrderID:        data.OrderID,
			DiscountAmount: promo.DiscountAmount,
			FreeShipping:   promo.FreeShipping,
			FreeItems:      promo.FreeItems,
			OrderTotal:     data.TotalAmount,
		}
		for _, item := range promo.ConsumedItems {
			input.ConsumedItems = append(input.ConsumedItems, service.ConsumedItemInput{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			})
		}

		if _, err := c.usage.RecordUsage(ctx, input); err != nil {
			// Cap conflicts on replayed or late events are final; retrying
			// cannot make the order fit under the cap again.
			if errors.Is(err, apperrors.ErrUsageLimitReached) || errors.Is(err, apperrors.ErrQuantityExhausted) {
				c.logger.WarnContext(ctx, "usage rejected by cap, skipping promotion",
					slog.String("order_id", data.OrderID),
					slog.String("offer_id", promo.OfferID),
					slog.String("error", err.Error()),
				)
				continue
			}
			return fmt.Errorf("record usage for order %s offer %s: %w", data.OrderID, promo.OfferID, err)
		}
	}

	c.markSeen(ctx, event.EventID)
	return nil
}

// HandleOrderCanceled releases any usage the canceled order had committed.
func (c *Consumer) HandleOrderCanceled(ctx context.Context, event *pkgkafka.Event) error {
	if c.seen(ctx, event.EventID) {
		c.logger.DebugContext(ctx, "skipping already processed event",
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	var data OrderCanceledData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal order.canceled data: %w", err)
	}
	if data.OrderID == "" {
		return fmt.Errorf("order.canceled event %s has no order_id", event.EventID)
	}

	c.logger.InfoContext(ctx, "processing order.canceled event",
		slog.String("order_id", data.OrderID),
	)

	if _, err := c.usage.ReleaseUsage(ctx, data.OrderID); err != nil {
		// Orders that never redeemed a promotion have nothing to release.
		if errors.Is(err, apperrors.ErrNotFound) {
			c.logger.DebugContext(ctx, "no usage to release for canceled order",
				slog.String("order_id", data.OrderID),
			)
			c.markSeen(ctx, event.EventID)
			return nil
		}
		return fmt.Errorf("release usage for order %s: %w", data.OrderID, err)
	}

	c.markSeen(ctx, event.EventID)
	return nil
}

// seen checks the idempotency store; a store failure is treated as not
// seen and the ledger's per-order uniqueness backstops the replay.
func (c *Consumer) seen(ctx context.Context, eventID string) bool {
	if c.processed == nil {
		return false
	}
	ok, err := c.processed.Contains(ctx, eventID)
	if err != nil {
		c.logger.WarnContext(ctx, "idempotency store read failed",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ok
}

func (c *Consumer) markSeen(ctx context.Context, eventID string) {
	if c.processed == nil {
		return
	}
	if err := c.processed.Add(ctx, eventID); err != nil {
		c.logger.WarnContext(ctx, "idempotency store write failed",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
	}
}
