package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soukly/promotion/internal/domain"
)

const (
	keyRunningFlashSales    = "promotion:flash_sales:running"
	keyRunningSpecialOffers = "promotion:special_offers:running"
)

// RunningFlashSales is the cached snapshot of currently running campaigns
// with their entries keyed by campaign ID.
type RunningFlashSales struct {
	Campaigns []domain.FlashSaleCampaign         `json:"campaigns"`
	Entries   map[string][]domain.FlashSaleEntry `json:"entries"`
}

// RunningCache caches the running flash-sale and special-offer lists in
// Redis. The TTL is short; admin mutations invalidate eagerly so stale
// windows stay within one evaluation cycle.
type RunningCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunningCache creates a Redis-backed running-offers cache.
func NewRunningCache(client *redis.Client, ttl time.Duration) *RunningCache {
	return &RunningCache{
		client: client,
		ttl:    ttl,
	}
}

// GetFlashSales returns the cached running flash sales, or nil on a miss.
func (c *RunningCache) GetFlashSales(ctx context.Context) (*RunningFlashSales, error) {
	data, err := c.client.Get(ctx, keyRunningFlashSales).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get running flash sales: %w", err)
	}

	var snapshot RunningFlashSales
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal running flash sales: %w", err)
	}

	return &snapshot, nil
}

// SetFlashSales stores the running flash-sale snapshot with the configured TTL.
func (c *RunningCache) SetFlashSales(ctx context.Context, snapshot *RunningFlashSales) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal running flash sales: %w", err)
	}

	if err := c.client.Set(ctx, keyRunningFlashSales, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set running flash sales: %w", err)
	}

	return nil
}

// GetSpecialOffers returns the cached running offers, or nil on a miss.
func (c *RunningCache) GetSpecialOffers(ctx context.Context) ([]domain.SpecialOffer, error) {
	data, err := c.client.Get(ctx, keyRunningSpecialOffers).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get running special offers: %w", err)
	}

	var offers []domain.SpecialOffer
	if err := json.Unmarshal(data, &offers); err != nil {
		return nil, fmt.Errorf("unmarshal running special offers: %w", err)
	}

	return offers, nil
}

// SetSpecialOffers stores the running special-offer list with the configured TTL.
func (c *RunningCache) SetSpecialOffers(ctx context.Context, offers []domain.SpecialOffer) error {
	data, err := json.Marshal(offers)
	if err != nil {
		return fmt.Errorf("marshal running special offers: %w", err)
	}

	if err := c.client.Set(ctx, keyRunningSpecialOffers, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set running special offers: %w", err)
	}

	return nil
}

// InvalidateFlashSales drops the cached flash-sale snapshot.
func (c *RunningCache) InvalidateFlashSales(ctx context.Context) error {
	if err := c.client.Del(ctx, keyRunningFlashSales).Err(); err != nil {
		return fmt.Errorf("redis del running flash sales: %w", err)
	}
	return nil
}

// InvalidateSpecialOffers drops the cached special-offer list.
func (c *RunningCache) InvalidateSpecialOffers(ctx context.Context) error {
	if err := c.client.Del(ctx, keyRunningSpecialOffers).Err(); err != nil {
		return fmt.Errorf("redis del running special offers: %w", err)
	}
	return nil
}
