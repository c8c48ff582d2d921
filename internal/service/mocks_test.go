package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	pkgkafka "github.com/soukly/promotion/pkg/kafka"

	"github.com/soukly/promotion/internal/cache"
	"github.com/soukly/promotion/internal/client"
	"github.com/soukly/promotion/internal/domain"
	"github.com/soukly/promotion/internal/event"
	"github.com/soukly/promotion/internal/repository"
)

// --- Mock Repositories ---

type mockFlashSaleRepository struct {
	mock.Mock
}

func (m *mockFlashSaleRepository) CreateCampaign(ctx context.Context, campaign *domain.FlashSaleCampaign) error {
	args := m.Called(ctx, campaign)
	return args.Error(0)
}

func (m *mockFlashSaleRepository) CreateEntry(ctx context.Context, entry *domain.FlashSaleEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockFlashSaleRepository) GetCampaign(ctx context.Context, id string) (*domain.FlashSaleCampaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FlashSaleCampaign), args.Error(1)
}

func (m *mockFlashSaleRepository) ListCampaigns(ctx context.Context, filter repository.FlashSaleFilter) ([]domain.FlashSaleCampaign, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.FlashSaleCampaign), args.Int(1), args.Error(2)
}

func (m *mockFlashSaleRepository) ListRunning(ctx context.Context, now time.Time) ([]domain.FlashSaleCampaign, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FlashSaleCampaign), args.Error(1)
}

func (m *mockFlashSaleRepository) ListEntries(ctx context.Context, campaignIDs []string) (map[string][]domain.FlashSaleEntry, error) {
	args := m.Called(ctx, campaignIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]domain.FlashSaleEntry), args.Error(1)
}

func (m *mockFlashSaleRepository) SetActive(ctx context.Context, id string, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

type mockSpecialOfferRepository struct {
	mock.Mock
}

func (m *mockSpecialOfferRepository) Create(ctx context.Context, offer *domain.SpecialOffer) error {
	args := m.Called(ctx, offer)
	return args.Error(0)
}

func (m *mockSpecialOfferRepository) GetByID(ctx context.Context, id string) (*domain.SpecialOffer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SpecialOffer), args.Error(1)
}

func (m *mockSpecialOfferRepository) List(ctx context.Context, filter repository.SpecialOfferFilter) ([]domain.SpecialOffer, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.SpecialOffer), args.Int(1), args.Error(2)
}

func (m *mockSpecialOfferRepository) ListRunning(ctx context.Context, now time.Time) ([]domain.SpecialOffer, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SpecialOffer), args.Error(1)
}

func (m *mockSpecialOfferRepository) SetActive(ctx context.Context, id string, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

type mockUsageRepository struct {
	mock.Mock
}

func (m *mockUsageRepository) RecordFlashSaleUsage(ctx context.Context, usage *domain.OfferUsageRecord, consumed []repository.ConsumedItem) error {
	args := m.Called(ctx, usage, consumed)
	return args.Error(0)
}

func (m *mockUsageRepository) RecordSpecialOfferUsage(ctx context.Context, usage *domain.OfferUsageRecord) error {
	args := m.Called(ctx, usage)
	return args.Error(0)
}

func (m *mockUsageRepository) ReleaseUsage(ctx context.Context, orderID string) ([]domain.OfferUsageRecord, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OfferUsageRecord), args.Error(1)
}

func (m *mockUsageRepository) GetByOrder(ctx context.Context, orderID string) ([]domain.OfferUsageRecord, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OfferUsageRecord), args.Error(1)
}

func (m *mockUsageRepository) CountByUser(ctx context.Context, offer domain.OfferRef, userID string) (int, error) {
	args := m.Called(ctx, offer, userID)
	return args.Int(0), args.Error(1)
}

// --- Stub Catalog ---

type stubCatalog struct {
	products map[string]*client.Product
	err      error
}

func (s *stubCatalog) GetProducts(_ context.Context, productIDs []string) (map[string]*client.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]*client.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestProducer returns an event producer pointed at a broker that does
// not exist; publish failures are logged and swallowed by the services.
func newTestProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	return event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)
}

func newTestCache(t *testing.T) (*cache.RunningCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return cache.NewRunningCache(rdb, time.Minute), mr
}
