package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/soukly/promotion/pkg/errors"

	"github.com/soukly/promotion/internal/domain"
	"github.com/soukly/promotion/internal/repository"
)

// UsageRepository implements repository.UsageRepository using PostgreSQL.
// It is the only writer of usage counters; every order's mutations run in
// a single transaction with guarded counter updates.
type UsageRepository struct {
	db DBTX
}

// NewUsageRepository creates a new PostgreSQL-backed usage ledger.
func NewUsageRepository(db DBTX) *UsageRepository {
	return &UsageRepository{db: db}
}

// RecordFlashSaleUsage commits a flash-sale redemption for an order.
func (r *UsageRepository) RecordFlashSaleUsage(ctx context.Context, usage *domain.OfferUsageRecord, consumed []repository.ConsumedItem) error {
	if err := usage.Offer.Validate(); err != nil {
		return err
	}
	if usage.Offer.Kind != domain.OfferKindFlashSale {
		return domain.ErrInvalidOfferRef
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin flash sale usage tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertUsage(ctx, tx, usage, consumed); err != nil {
		return err
	}

	// Guarded increment: zero rows means the global cap is exhausted.
	campaignQuery := `
		UPDATE flash_sale_campaigns
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1 AND (global_cap = 0 OR usage_count < global_cap)`

	ct, err := tx.Exec(ctx, campaignQuery, usage.Offer.ID)
	if err != nil {
		return fmt.Errorf("increment flash sale campaign usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.UsageLimitReached("flash sale campaign", usage.Offer.ID)
	}

	entryQuery := `
		UPDATE flash_sale_entries
		SET sold_quantity = sold_quantity + $3, updated_at = NOW()
		WHERE campaign_id = $1 AND product_id = $2
		  AND (quantity_limit = 0 OR sold_quantity + $3 <= quantity_limit)`

	for _, item := range consumed {
		ct, err := tx.Exec(ctx, entryQuery, usage.Offer.ID, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("increment flash sale entry sold quantity: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return apperrors.QuantityExhausted(item.ProductID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit flash sale usage tx: %w", err)
	}

	return nil
}

// RecordSpecialOfferUsage commits a special-offer redemption for an order.
func (r *UsageRepository) RecordSpecialOfferUsage(ctx context.Context, usage *domain.OfferUsageRecord) error {
	if err := usage.Offer.Validate(); err != nil {
		return err
	}
	if usage.Offer.Kind != domain.OfferKindSpecialOffer {
		return domain.ErrInvalidOfferRef
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin special offer usage tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertUsage(ctx, tx, usage, nil); err != nil {
		return err
	}

	offerQuery := `
		UPDATE special_offers
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1 AND (global_cap = 0 OR usage_count < global_cap)`

	ct, err := tx.Exec(ctx, offerQuery, usage.Offer.ID)
	if err != nil {
		return fmt.Errorf("increment special offer usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.UsageLimitReached("special offer", usage.Offer.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit special offer usage tx: %w", err)
	}

	return nil
}

// insertUsage writes the ledger row. The unique (offer_kind, order_id)
// index makes recording idempotent per order: a conflicting insert
// affects zero rows and surfaces as ErrDuplicateOrder before any counter
// moves.
func insertUsage(ctx context.Context, tx pgx.Tx, usage *domain.OfferUsageRecord, consumed []repository.ConsumedItem) error {
	freeItemsJSON, err := json.Marshal(usage.FreeItems)
	if err != nil {
		return fmt.Errorf("marshal free_items: %w", err)
	}
	consumedJSON, err := json.Marshal(consumed)
	if err != nil {
		return fmt.Errorf("marshal consumed_items: %w", err)
	}

	query := `
		INSERT INTO offer_usages (
			id, offer_kind, offer_id, user_id, order_id, discount_amount,
			free_shipping_applied, free_items, consumed_items, order_total, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (offer_kind, order_id) DO NOTHING`

	ct, err := tx.Exec(ctx, query,
		usage.ID,
		usage.Offer.Kind,
		usage.Offer.ID,
		usage.UserID,
		usage.OrderID,
		usage.DiscountAmount,
		usage.FreeShippingApplied,
		freeItemsJSON,
		consumedJSON,
		usage.OrderTotal,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert offer usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.DuplicateOrder(usage.OrderID)
	}

	return nil
}

// ReleaseUsage compensates a rolled-back order: reverses every counter
// the order's usages touched and deletes the ledger rows, in one
// transaction.
func (r *UsageRepository) ReleaseUsage(ctx context.Context, orderID string) ([]domain.OfferUsageRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin release usage tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		SELECT id, offer_kind, offer_id, user_id, order_id, discount_amount,
			   free_shipping_applied, free_items, consumed_items, order_total, created_at
		FROM offer_usages
		WHERE order_id = $1`

	rows, err := tx.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("load usages for order: %w", err)
	}

	type releasedUsage struct {
		record   domain.OfferUsageRecord
		consumed []repository.ConsumedItem
	}

	var releases []releasedUsage
	for rows.Next() {
		var (
			ru           releasedUsage
			freeJSON     []byte
			consumedJSON []byte
		)
		if err := rows.Scan(
			&ru.record.ID,
			&ru.record.Offer.Kind,
			&ru.record.Offer.ID,
			&ru.record.UserID,
			&ru.record.OrderID,
			&ru.record.DiscountAmount,
			&ru.record.FreeShippingApplied,
			&freeJSON,
			&consumedJSON,
			&ru.record.OrderTotal,
			&ru.record.CreatedAt,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		if freeJSON != nil {
			if err := json.Unmarshal(freeJSON, &ru.record.FreeItems); err != nil {
				rows.Close()
				return nil, fmt.Errorf("unmarshal free_items: %w", err)
			}
		}
		if consumedJSON != nil {
			if err := json.Unmarshal(consumedJSON, &ru.consumed); err != nil {
				rows.Close()
				return nil, fmt.Errorf("unmarshal consumed_items: %w", err)
			}
		}
		releases = append(releases, ru)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage rows: %w", err)
	}

	if len(releases) == 0 {
		return nil, apperrors.NotFound("offer usage for order", orderID)
	}

	for _, ru := range releases {
		switch ru.record.Offer.Kind {
		case domain.OfferKindFlashSale:
			if _, err := tx.Exec(ctx, `
				UPDATE flash_sale_campaigns
				SET usage_count = GREATEST(usage_count - 1, 0), updated_at = NOW()
				WHERE id = $1`, ru.record.Offer.ID); err != nil {
				return nil, fmt.Errorf("release flash sale campaign usage: %w", err)
			}
			for _, item := range ru.consumed {
				if _, err := tx.Exec(ctx, `
					UPDATE flash_sale_entries
					SET sold_quantity = GREATEST(sold_quantity - $3, 0), updated_at = NOW()
					WHERE campaign_id = $1 AND product_id = $2`,
					ru.record.Offer.ID, item.ProductID, item.Quantity); err != nil {
					return nil, fmt.Errorf("release flash sale entry quantity: %w", err)
				}
			}
		case domain.OfferKindSpecialOffer:
			if _, err := tx.Exec(ctx, `
				UPDATE special_offers
				SET usage_count = GREATEST(usage_count - 1, 0), updated_at = NOW()
				WHERE id = $1`, ru.record.Offer.ID); err != nil {
				return nil, fmt.Errorf("release special offer usage: %w", err)
			}
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM offer_usages WHERE order_id = $1`, orderID); err != nil {
		return nil, fmt.Errorf("delete usages for order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit release usage tx: %w", err)
	}

	records := make([]domain.OfferUsageRecord, 0, len(releases))
	for _, ru := range releases {
		records = append(records, ru.record)
	}
	return records, nil
}

// GetByOrder returns the usage records committed for an order.
func (r *UsageRepository) GetByOrder(ctx context.Context, orderID string) ([]domain.OfferUsageRecord, error) {
	query := `
		SELECT id, offer_kind, offer_id, user_id, order_id, discount_amount,
			   free_shipping_applied, free_items, order_total, created_at
		FROM offer_usages
		WHERE order_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get usages by order: %w", err)
	}
	defer rows.Close()

	var records []domain.OfferUsageRecord
	for rows.Next() {
		var (
			rec      domain.OfferUsageRecord
			freeJSON []byte
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Offer.Kind,
			&rec.Offer.ID,
			&rec.UserID,
			&rec.OrderID,
			&rec.DiscountAmount,
			&rec.FreeShippingApplied,
			&freeJSON,
			&rec.OrderTotal,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		if freeJSON != nil {
			if err := json.Unmarshal(freeJSON, &rec.FreeItems); err != nil {
				return nil, fmt.Errorf("unmarshal free_items: %w", err)
			}
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage rows: %w", err)
	}

	return records, nil
}

// CountByUser returns how many times a user redeemed the given offer.
func (r *UsageRepository) CountByUser(ctx context.Context, offer domain.OfferRef, userID string) (int, error) {
	if err := offer.Validate(); err != nil {
		return 0, err
	}

	query := `
		SELECT count(*)
		FROM offer_usages
		WHERE offer_kind = $1 AND offer_id = $2 AND user_id = $3`

	var count int
	if err := r.db.QueryRow(ctx, query, offer.Kind, offer.ID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count usages by user: %w", err)
	}

	return count, nil
}
