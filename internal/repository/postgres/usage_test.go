package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soukly/promotion/pkg/database"
	apperrors "github.com/soukly/promotion/pkg/errors"

	"github.com/soukly/promotion/internal/domain"
	"github.com/soukly/promotion/internal/repository"
)

func setupUsageRepo(t *testing.T) (*UsageRepository, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewUsageRepository(mock), mock
}

func sampleFlashSaleUsage() *domain.OfferUsageRecord {
	return &domain.OfferUsageRecord{
		ID:             "usage-1",
		Offer:          domain.FlashSaleRef("camp-1"),
		UserID:         "user-1",
		OrderID:        "order-1",
		DiscountAmount: 2000,
		OrderTotal:     38000,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
}

func expectUsageInsert(mock pgxmock.PgxPoolIface, u *domain.OfferUsageRecord, rows int64) {
	mock.ExpectExec("INSERT INTO offer_usages").
		WithArgs(
			u.ID, u.Offer.Kind, u.Offer.ID, u.UserID, u.OrderID, u.DiscountAmount,
			u.FreeShippingApplied, pgxmock.AnyArg(), pgxmock.AnyArg(),
			u.OrderTotal, u.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", rows))
}

func TestUsageRepository_RecordFlashSaleUsage_Success(t *testing.T) {
	repo, mock := setupUsageRepo(t)

	u := sampleFlashSaleUsage()
	consumed := []repository.ConsumedItem{
		{ProductID: "prod-1", Quantity: 2},
		{ProductID: "prod-2", Quantity: 1},
	}

	mock.ExpectBegin()
	expectUsageInsert(mock, u, 1)

	mock.ExpectExec("UPDATE flash_sale_campaigns").
		WithArgs(u.Offer.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	for _, item := range consumed {
		mock.ExpectExec("UPDATE flash_sale_entries").
			WithArgs(u.Offer.ID, item.ProductID, item.Quantity).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}

	mock.ExpectCommit()

	err := repo.RecordFlashSaleUsage(context.Background(), u, consumed)
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_RecordFlashSaleUsage_DuplicateOrder(t *testing.T) {
	repo, mock := setupUsageRepo(t)

	u := sampleFlashSaleUsage()

	mock.ExpectBegin()
	// Zero rows from the conflict-free insert means the order already has
	// a flash-sale usage. No counter moves.
	expectUsageInsert(mock, u, 0)
	mock.ExpectRollback()

	err := repo.RecordFlashSaleUsage(context.Background(), u, nil)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateOrder)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_RecordFlashSaleUsage_GlobalCapReached(t *testing.T) {
	repo, mock := setupUsageRepo(t)

	u := sampleFlashSaleUsage()

	mock.ExpectBegin()
	expectUsageInsert(mock, u, 1)

	mock.ExpectExec("UPDATE flash_sale_campaigns").
		WithArgs(u.Offer.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.RecordFlashSaleUsage(context.Background(), u, nil)
	assert.ErrorIs(t, err, apperrors.ErrUsageLimitReached)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_RecordFlashSaleUsage_QuantityExhausted(t *testing.T) {
	repo, mock := setupUsageRepo(t)

	u := sampleFlashSaleUsage()
	consumed := []repository.ConsumedItem{{ProductID: "prod-1", Quantity: 5}}

	mock.ExpectBegin()
	expectUsageInsert(mock, u, 1)

	mock.ExpectExec("UPDATE flash_sale_campaigns").
		WithArgs(u.Offer.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	mock.ExpectExec("UPDATE flash_sale_entries").
		WithArgs(u.Offer.ID, "prod-1", 5).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.RecordFlashSaleUsage(context.Background(), u, consumed)
	assert.ErrorIs(t, err, apperrors.ErrQuantityExhausted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_RecordFlashSaleUsage_WrongKind(t *testing.T) {
	repo, mock := setupUsageRepo(t)

	u := sampleFlashSaleUsage()
	u.Offer = domain.SpecialOfferRef("offer-1")

	err := repo.RecordFlashSaleUsage(context.Background(), u, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidOfferRef)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_RecordSpecialOfferUsage_Success(t *testing.T) {
	repo, mock := setupUsageRepo(t)

	u := &domain.OfferUsageRecord{
		ID:             "usage-2",
		Offer:          domain.SpecialOfferRef("offer-1"),
		UserID:         "user-1",
		OrderID:        "order-2",
		DiscountAmount: 5000,
		FreeItems:      []domain.FreeItem{{ProductID: "prod-9", Quantity: 1, UnitPrice: 5000}},
		OrderTotal:     20000,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}

	mock.ExpectBegin()
	expectUsageInsert(mock, u, 1)

	mock.ExpectExec("UPDATE special_offers").
		WithArgs(u.Offer.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	mock.ExpectCommit()

	err := repo.RecordSpecialOfferUsage(context.Background(), u)
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_RecordSpecialOfferUsage_GlobalCapReached(t *testing.T) {
	repo, mock := setupUsageRepo(t)

	u := &domain.OfferUsageRecord{
		ID:        "usage-2",
		Offer:     domain.SpecialOfferRef("offer-1"),
		UserID:    "user-1",
		OrderID:   "order-2",
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectBegin()
	expectUsageInsert(mock, u, 1)

	mock.ExpectExec("UPDATE special_offers").
		WithArgs(u.Offer.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.RecordSpecialOfferUsage(context.Background(), u)
	assert.ErrorIs(t, err, apperrors.ErrUsageLimitReached)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func usageCols() []string {
	return []string{
		"id", "offer_kind", "offer_id", "user_id", "order_id", "discount_amount",
		"free_shipping_applied", "free_items", "consumed_items", "order_total", "created_at",
	}
}

func TestUsageRepository_ReleaseUsage_ReversesCounters(t *testing.T) {
	repo, mock := setupUsageRepo(t)

	now := time.Now().UTC().Truncate(time.Second)
	consumed, err := json.Marshal([]repository.ConsumedItem{{ProductID: "prod-1", Quantity: 2}})
	require.NoError(t, err)

	rows := pgxmock.NewRows(usageCols()).
		AddRow("usage-1", domain.OfferKindFlashSale, "camp-1", "user-1", "order-1",
			int64(2000), false, []byte("null"), consumed, int64(38000), now).
		AddRow("usage-2", domain.OfferKindSpecialOffer, "offer-1", "user-1", "order-1",
			int64(5000), false, []byte("null"), []byte("null"), int64(38000), now)

	mock.ExpectBegin()

	mock.ExpectQuery("SELECT .+ FROM offer_usages").
		WithArgs("order-1").
		WillReturnRows(rows)

	mock.ExpectExec("UPDATE flash_sale_campaigns").
		WithArgs("camp-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE flash_sale_entries").
		WithArgs("camp-1", "prod-1", 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE special_offers").
		WithArgs("offer-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	mock.ExpectExec("DELETE FROM offer_usages").
		WithArgs("order-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	mock.ExpectCommit()

	records, err := repo.ReleaseUsage(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.OfferKindFlashSale, records[0].Offer.Kind)
	assert.Equal(t, domain.OfferKindSpecialOffer, records[1].Offer.Kind)
	assert.Equal(t, int64(2000), records[0].DiscountAmount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_ReleaseUsage_NotFound(t *testing.T) {
	repo, mock := setupUsageRepo(t)

	mock.ExpectBegin()

	mock.ExpectQuery("SELECT .+ FROM offer_usages").
		WithArgs("order-x").
		WillReturnRows(pgxmock.NewRows(usageCols()))
	mock.ExpectRollback()

	records, err := repo.ReleaseUsage(context.Background(), "order-x")
	assert.Nil(t, records)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_GetByOrder(t *testing.T) {
	repo, mock := setupUsageRepo(t)

	now := time.Now().UTC().Truncate(time.Second)
	free, err := json.Marshal([]domain.FreeItem{{ProductID: "prod-9", Quantity: 1, UnitPrice: 5000}})
	require.NoError(t, err)

	cols := []string{
		"id", "offer_kind", "offer_id", "user_id", "order_id", "discount_amount",
		"free_shipping_applied", "free_items", "order_total", "created_at",
	}
	rows := pgxmock.NewRows(cols).
		AddRow("usage-2", domain.OfferKindSpecialOffer, "offer-1", "user-1", "order-2",
			int64(5000), false, free, int64(20000), now)

	mock.ExpectQuery("SELECT .+ FROM offer_usages").
		WithArgs("order-2").
		WillReturnRows(rows)

	records, err := repo.GetByOrder(context.Background(), "order-2")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "offer-1", records[0].Offer.ID)
	require.Len(t, records[0].FreeItems, 1)
	assert.Equal(t, "prod-9", records[0].FreeItems[0].ProductID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_GetByOrder_Empty(t *testing.T) {
	repo, mock := setupUsageRepo(t)

	cols := []string{
		"id", "offer_kind", "offer_id", "user_id", "order_id", "discount_amount",
		"free_shipping_applied", "free_items", "order_total", "created_at",
	}

	mock.ExpectQuery("SELECT .+ FROM offer_usages").
		WithArgs("order-x").
		WillReturnRows(pgxmock.NewRows(cols))

	records, err := repo.GetByOrder(context.Background(), "order-x")
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_CountByUser(t *testing.T) {
	repo, mock := setupUsageRepo(t)

	mock.ExpectQuery("SELECT count").
		WithArgs(domain.OfferKindSpecialOffer, "offer-1", "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountByUser(context.Background(), domain.SpecialOfferRef("offer-1"), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_CountByUser_InvalidRef(t *testing.T) {
	repo, mock := setupUsageRepo(t)

	_, err := repo.CountByUser(context.Background(), domain.OfferRef{Kind: "coupon", ID: "x"}, "user-1")
	assert.ErrorIs(t, err, domain.ErrInvalidOfferRef)

	assert.NoError(t, mock.ExpectationsWereMet())
}
