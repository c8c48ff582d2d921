package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/soukly/promotion/pkg/errors"

	"github.com/soukly/promotion/internal/domain"
	"github.com/soukly/promotion/internal/repository"
)

// SpecialOfferRepository implements repository.SpecialOfferRepository using PostgreSQL.
type SpecialOfferRepository struct {
	db DBTX
}

// NewSpecialOfferRepository creates a new PostgreSQL-backed special-offer repository.
func NewSpecialOfferRepository(db DBTX) *SpecialOfferRepository {
	return &SpecialOfferRepository{db: db}
}

const offerColumns = `id, name, name_ar, description, description_ar, slug, banner_url,
	   priority, offer_type, buy_quantity, free_quantity, discount_type,
	   discount_value, applicable_products, applicable_categories,
	   start_time, end_time, per_user_cap, global_cap, usage_count,
	   min_order_amount, is_active, created_at, updated_at`

// Create inserts a new special offer into the database.
func (r *SpecialOfferRepository) Create(ctx context.Context, o *domain.SpecialOffer) error {
	productsJSON, err := json.Marshal(o.ApplicableProducts)
	if err != nil {
		return fmt.Errorf("marshal applicable_products: %w", err)
	}
	categoriesJSON, err := json.Marshal(o.ApplicableCategories)
	if err != nil {
		return fmt.Errorf("marshal applicable_categories: %w", err)
	}

	query := `
		INSERT INTO special_offers (
			id, name, name_ar, description, description_ar, slug, banner_url,
			priority, offer_type, buy_quantity, free_quantity, discount_type,
			discount_value, applicable_products, applicable_categories,
			start_time, end_time, per_user_cap, global_cap, usage_count,
			min_order_amount, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		          $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`

	_, err = r.db.Exec(ctx, query,
		o.ID,
		o.Name,
		o.NameAr,
		o.Description,
		o.DescriptionAr,
		o.Slug,
		o.BannerURL,
		o.Priority,
		o.OfferType,
		o.BuyQuantity,
		o.FreeQuantity,
		o.DiscountType,
		o.DiscountValue,
		productsJSON,
		categoriesJSON,
		o.StartTime,
		o.EndTime,
		o.PerUserCap,
		o.GlobalCap,
		o.UsageCount,
		o.MinOrderAmount,
		o.IsActive,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("special offer", "slug", o.Slug)
		}
		return fmt.Errorf("insert special offer: %w", err)
	}

	return nil
}

// GetByID retrieves an offer by its ID.
func (r *SpecialOfferRepository) GetByID(ctx context.Context, id string) (*domain.SpecialOffer, error) {
	query := fmt.Sprintf(`SELECT %s FROM special_offers WHERE id = $1`, offerColumns)

	row := r.db.QueryRow(ctx, query, id)
	offer, err := scanOffer(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("special offer", id)
		}
		return nil, fmt.Errorf("scan special offer: %w", err)
	}

	return offer, nil
}

// List returns offers matching the given filter with the total count.
func (r *SpecialOfferRepository) List(ctx context.Context, filter repository.SpecialOfferFilter) ([]domain.SpecialOffer, int, error) {
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

	if filter.OfferType != nil {
		conditions = append(conditions, fmt.Sprintf("offer_type = $%d", argIndex))
		args = append(args, *filter.OfferType)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM special_offers
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		offerColumns, whereClause, argIndex, argIndex+1,
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
		return nil, 0, fmt.Errorf("list special offers: %w", err)
	}
	defer rows.Close()

	var (
		offers     []domain.SpecialOffer
		totalCount int
	)

	for rows.Next() {
		offer, err := scanOfferWithCount(rows.Scan, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("scan special offer row: %w", err)
		}
		offers = append(offers, *offer)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate special offer rows: %w", err)
	}

	if offers == nil {
		offers = []domain.SpecialOffer{}
	}

	return offers, totalCount, nil
}

// ListRunning returns offers active and inside their window at the given
// instant. The global-cap check stays in domain.IsRunning.
func (r *SpecialOfferRepository) ListRunning(ctx context.Context, now time.Time) ([]domain.SpecialOffer, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM special_offers
		WHERE is_active = true AND start_time <= $1 AND (end_time IS NULL OR end_time >= $1)
		ORDER BY priority DESC, created_at ASC`,
		offerColumns,
	)

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list running special offers: %w", err)
	}
	defer rows.Close()

	var offers []domain.SpecialOffer
	for rows.Next() {
		offer, err := scanOffer(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan running special offer row: %w", err)
		}
		offers = append(offers, *offer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate running special offer rows: %w", err)
	}

	return offers, nil
}

// SetActive toggles an offer's active flag.
func (r *SpecialOfferRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE special_offers
		SET is_active = $1, updated_at = NOW()
		WHERE id = $2`

	ct, err := r.db.Exec(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("set special offer active: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("special offer", id)
	}

	return nil
}

type scanFunc func(dest ...any) error

// scanOffer scans one offer row, decoding the JSON applicability sets.
func scanOffer(scan scanFunc) (*domain.SpecialOffer, error) {
	return scanOfferInto(scan, nil)
}

// scanOfferWithCount scans one offer row followed by a count(*) OVER() column.
func scanOfferWithCount(scan scanFunc, totalCount *int) (*domain.SpecialOffer, error) {
	return scanOfferInto(scan, totalCount)
}

func scanOfferInto(scan scanFunc, totalCount *int) (*domain.SpecialOffer, error) {
	var (
		o              domain.SpecialOffer
		productsJSON   []byte
		categoriesJSON []byte
	)

	dest := []any{
		&o.ID,
		&o.Name,
		&o.NameAr,
		&o.Description,
		&o.DescriptionAr,
		&o.Slug,
		&o.BannerURL,
		&o.Priority,
		&o.OfferType,
		&o.BuyQuantity,
		&o.FreeQuantity,
		&o.DiscountType,
		&o.DiscountValue,
		&productsJSON,
		&categoriesJSON,
		&o.StartTime,
		&o.EndTime,
		&o.PerUserCap,
		&o.GlobalCap,
		&o.UsageCount,
		&o.MinOrderAmount,
		&o.IsActive,
		&o.CreatedAt,
		&o.UpdatedAt,
	}
	if totalCount != nil {
		dest = append(dest, totalCount)
	}

	if err := scan(dest...); err != nil {
		return nil, err
	}

	if productsJSON != nil {
		if err := json.Unmarshal(productsJSON, &o.ApplicableProducts); err != nil {
			return nil, fmt.Errorf("unmarshal applicable_products: %w", err)
		}
	}
	if o.ApplicableProducts == nil {
		o.ApplicableProducts = []string{}
	}

	if categoriesJSON != nil {
		if err := json.Unmarshal(categoriesJSON, &o.ApplicableCategories); err != nil {
			return nil, fmt.Errorf("unmarshal applicable_categories: %w", err)
		}
	}
	if o.ApplicableCategories == nil {
		o.ApplicableCategories = []string{}
	}

	return &o, nil
}
