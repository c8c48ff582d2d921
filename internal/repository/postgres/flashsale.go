package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/soukly/promotion/pkg/errors"

	"github.com/soukly/promotion/internal/domain"
	"github.com/soukly/promotion/internal/repository"
)

// FlashSaleRepository implements repository.FlashSaleRepository using PostgreSQL.
type FlashSaleRepository struct {
	db DBTX
}

// NewFlashSaleRepository creates a new PostgreSQL-backed flash-sale repository.
func NewFlashSaleRepository(db DBTX) *FlashSaleRepository {
	return &FlashSaleRepository{db: db}
}

const campaignColumns = `id, name, name_ar, description, description_ar, slug, banner_url,
	   priority, is_active, start_time, end_time, per_user_cap, global_cap,
	   usage_count, created_at, updated_at`

// CreateCampaign inserts a new campaign into the database.
func (r *FlashSaleRepository) CreateCampaign(ctx context.Context, c *domain.FlashSaleCampaign) error {
	query := `
		INSERT INTO flash_sale_campaigns (
			id, name, name_ar, description, description_ar, slug, banner_url,
			priority, is_active, start_time, end_time, per_user_cap, global_cap,
			usage_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.Exec(ctx, query,
		c.ID,
		c.Name,
		c.NameAr,
		c.Description,
		c.DescriptionAr,
		c.Slug,
		c.BannerURL,
		c.Priority,
		c.IsActive,
		c.StartTime,
		c.EndTime,
		c.PerUserCap,
		c.GlobalCap,
		c.UsageCount,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("flash sale campaign", "slug", c.Slug)
		}
		return fmt.Errorf("insert flash sale campaign: %w", err)
	}

	return nil
}

// CreateEntry inserts a new per-product entry for a campaign.
func (r *FlashSaleRepository) CreateEntry(ctx context.Context, e *domain.FlashSaleEntry) error {
	query := `
		INSERT INTO flash_sale_entries (
			id, campaign_id, product_id, discount_type, discount_value,
			quantity_limit, sold_quantity, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		e.ID,
		e.CampaignID,
		e.ProductID,
		e.DiscountType,
		e.DiscountValue,
		e.QuantityLimit,
		e.SoldQuantity,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("flash sale entry", "product_id", e.ProductID)
		}
		return fmt.Errorf("insert flash sale entry: %w", err)
	}

	return nil
}

// GetCampaign retrieves a campaign by its ID.
func (r *FlashSaleRepository) GetCampaign(ctx context.Context, id string) (*domain.FlashSaleCampaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM flash_sale_campaigns WHERE id = $1`, campaignColumns)

	var c domain.FlashSaleCampaign
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&c.NameAr,
		&c.Description,
		&c.DescriptionAr,
		&c.Slug,
		&c.BannerURL,
		&c.Priority,
		&c.IsActive,
		&c.StartTime,
		&c.EndTime,
		&c.PerUserCap,
		&c.GlobalCap,
		&c.UsageCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("flash sale campaign", id)
		}
		return nil, fmt.Errorf("scan flash sale campaign: %w", err)
	}

	return &c, nil
}

// ListCampaigns returns campaigns matching the given filter with the total count.
func (r *FlashSaleRepository) ListCampaigns(ctx context.Context, filter repository.FlashSaleFilter) ([]domain.FlashSaleCampaign, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argIndex))
		args = append(args, *filter.Active)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM flash_sale_campaigns
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		campaignColumns, whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list flash sale campaigns: %w", err)
	}
	defer rows.Close()

	var (
		campaigns  []domain.FlashSaleCampaign
		totalCount int
	)

	for rows.Next() {
		var c domain.FlashSaleCampaign
		if err := rows.Scan(
			&c.ID,
			&c.Name,
			&c.NameAr,
			&c.Description,
			&c.DescriptionAr,
			&c.Slug,
			&c.BannerURL,
			&c.Priority,
			&c.IsActive,
			&c.StartTime,
			&c.EndTime,
			&c.PerUserCap,
			&c.GlobalCap,
			&c.UsageCount,
			&c.CreatedAt,
			&c.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan flash sale campaign row: %w", err)
		}
		campaigns = append(campaigns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate flash sale campaign rows: %w", err)
	}

	if campaigns == nil {
		campaigns = []domain.FlashSaleCampaign{}
	}

	return campaigns, totalCount, nil
}

// ListRunning returns campaigns active and inside their window at the
// given instant. The global-cap check stays in domain.IsRunning so the
// query and the evaluator agree on one definition.
func (r *FlashSaleRepository) ListRunning(ctx context.Context, now time.Time) ([]domain.FlashSaleCampaign, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM flash_sale_campaigns
		WHERE is_active = true AND start_time <= $1 AND end_time >= $1
		ORDER BY priority DESC, created_at ASC`,
		campaignColumns,
	)

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list running flash sales: %w", err)
	}
	defer rows.Close()

	var campaigns []domain.FlashSaleCampaign
	for rows.Next() {
		var c domain.FlashSaleCampaign
		if err := rows.Scan(
			&c.ID,
			&c.Name,
			&c.NameAr,
			&c.Description,
			&c.DescriptionAr,
			&c.Slug,
			&c.BannerURL,
			&c.Priority,
			&c.IsActive,
			&c.StartTime,
			&c.EndTime,
			&c.PerUserCap,
			&c.GlobalCap,
			&c.UsageCount,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan running flash sale row: %w", err)
		}
		campaigns = append(campaigns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate running flash sale rows: %w", err)
	}

	return campaigns, nil
}

// ListEntries returns the entries of the given campaigns keyed by campaign ID.
func (r *FlashSaleRepository) ListEntries(ctx context.Context, campaignIDs []string) (map[string][]domain.FlashSaleEntry, error) {
	entries := make(map[string][]domain.FlashSaleEntry, len(campaignIDs))
	if len(campaignIDs) == 0 {
		return entries, nil
	}

	query := `
		SELECT id, campaign_id, product_id, discount_type, discount_value,
			   quantity_limit, sold_quantity, created_at, updated_at
		FROM flash_sale_entries
		WHERE campaign_id = ANY($1)
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, campaignIDs)
	if err != nil {
		return nil, fmt.Errorf("list flash sale entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.FlashSaleEntry
		if err := rows.Scan(
			&e.ID,
			&e.CampaignID,
			&e.ProductID,
			&e.DiscountType,
			&e.DiscountValue,
			&e.QuantityLimit,
			&e.SoldQuantity,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan flash sale entry row: %w", err)
		}
		entries[e.CampaignID] = append(entries[e.CampaignID], e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flash sale entry rows: %w", err)
	}

	return entries, nil
}

// SetActive toggles a campaign's active flag.
func (r *FlashSaleRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE flash_sale_campaigns
		SET is_active = $1, updated_at = NOW()
		WHERE id = $2`

	ct, err := r.db.Exec(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("set flash sale campaign active: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("flash sale campaign", id)
	}

	return nil
}
