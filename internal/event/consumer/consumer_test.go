package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/soukly/promotion/pkg/errors"
	pkgkafka "github.com/soukly/promotion/pkg/kafka"

	"github.com/soukly/promotion/internal/domain"
	"github.com/soukly/promotion/internal/service"
)

// --- Mock UsageRecorder ---

type mockUsageRecorder struct {
	mock.Mock
}

func (m *mockUsageRecorder) RecordUsage(ctx context.Context, input *service.RecordUsageInput) (*domain.OfferUsageRecord, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OfferUsageRecord), args.Error(1)
}

func (m *mockUsageRecorder) ReleaseUsage(ctx context.Context, orderID string) ([]domain.OfferUsageRecord, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OfferUsageRecord), args.Error(1)
}

// --- Test helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEvent(eventID, eventType string, data any) *pkgkafka.Event {
	dataBytes, _ := json.Marshal(data)
	return &pkgkafka.Event{
		EventID:       eventID,
		EventType:     eventType,
		AggregateID:   "order-1",
		AggregateType: "order",
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Source:        "order-service",
		Data:          dataBytes,
	}
}

func completedData() OrderCompletedData {
	return OrderCompletedData{
		OrderID:     "order-1",
		UserID:      "user-1",
		TotalAmount: 38000,
		Promotions: []AppliedPromotion{
			{
				OfferKind:      domain.OfferKindFlashSale,
				OfferID:        "camp-1",
				DiscountAmount: 2000,
				ConsumedItems:  []ConsumedItem{{ProductID: "prod-1", Quantity: 2}},
			},
		},
	}
}

func TestHandleOrderCompleted_RecordsUsage(t *testing.T) {
	usage := new(mockUsageRecorder)
	store := pkgkafka.NewMemoryIdempotencyStore(time.Hour)
	consumer := NewConsumer(usage, store, newTestLogger())

	usage.On("RecordUsage", mock.Anything, mock.MatchedBy(func(in *service.RecordUsageInput) bool {
		return in.OfferKind == domain.OfferKindFlashSale &&
			in.OfferID == "camp-1" &&
			in.OrderID == "order-1" &&
			in.OrderTotal == 38000 &&
			len(in.ConsumedItems) == 1
	})).Return(&domain.OfferUsageRecord{ID: "usage-1"}, nil).Once()

	evt := newTestEvent("evt-1", TopicOrderCompleted, completedData())
	err := consumer.HandleOrderCompleted(context.Background(), evt)
	require.NoError(t, err)

	usage.AssertExpectations(t)
}

func TestHandleOrderCompleted_SkipsReplayedEvent(t *testing.T) {
	usage := new(mockUsageRecorder)
	store := pkgkafka.NewMemoryIdempotencyStore(time.Hour)
	consumer := NewConsumer(usage, store, newTestLogger())

	usage.On("RecordUsage", mock.Anything, mock.Anything).
		Return(&domain.OfferUsageRecord{ID: "usage-1"}, nil).Once()

	evt := newTestEvent("evt-1", TopicOrderCompleted, completedData())
	require.NoError(t, consumer.HandleOrderCompleted(context.Background(), evt))

	// The exact same event again: the Once() expectation above would fail
	// if the recorder were called a second time.
	require.NoError(t, consumer.HandleOrderCompleted(context.Background(), evt))

	usage.AssertExpectations(t)
}

func TestHandleOrderCompleted_CapConflictIsSkippedNotRetried(t *testing.T) {
	usage := new(mockUsageRecorder)
	consumer := NewConsumer(usage, pkgkafka.NewMemoryIdempotencyStore(time.Hour), newTestLogger())

	usage.On("RecordUsage", mock.Anything, mock.Anything).
		Return(nil, apperrors.UsageLimitReached("flash sale campaign", "camp-1"))

	evt := newTestEvent("evt-1", TopicOrderCompleted, completedData())
	err := consumer.HandleOrderCompleted(context.Background(), evt)
	assert.NoError(t, err)
}

func TestHandleOrderCompleted_TransientErrorPropagates(t *testing.T) {
	usage := new(mockUsageRecorder)
	consumer := NewConsumer(usage, pkgkafka.NewMemoryIdempotencyStore(time.Hour), newTestLogger())

	usage.On("RecordUsage", mock.Anything, mock.Anything).
		Return(nil, errors.New("db connection refused"))

	evt := newTestEvent("evt-1", TopicOrderCompleted, completedData())
	err := consumer.HandleOrderCompleted(context.Background(), evt)
	assert.Error(t, err)
}

func TestHandleOrderCompleted_MalformedPayload(t *testing.T) {
	usage := new(mockUsageRecorder)
	consumer := NewConsumer(usage, nil, newTestLogger())

	evt := &pkgkafka.Event{
		EventID: "evt-bad",
		Data:    json.RawMessage(`{not json`),
	}
	err := consumer.HandleOrderCompleted(context.Background(), evt)
	assert.Error(t, err)
}

func TestHandleOrderCompleted_MissingOrderID(t *testing.T) {
	usage := new(mockUsageRecorder)
	consumer := NewConsumer(usage, nil, newTestLogger())

	evt := newTestEvent("evt-1", TopicOrderCompleted, OrderCompletedData{UserID: "user-1"})
	err := consumer.HandleOrderCompleted(context.Background(), evt)
	assert.Error(t, err)
}

func TestHandleOrderCompleted_NoPromotionsIsNoop(t *testing.T) {
	usage := new(mockUsageRecorder)
	consumer := NewConsumer(usage, nil, newTestLogger())

	evt := newTestEvent("evt-1", TopicOrderCompleted, OrderCompletedData{
		OrderID: "order-1",
		UserID:  "user-1",
	})
	err := consumer.HandleOrderCompleted(context.Background(), evt)
	assert.NoError(t, err)

	usage.AssertNotCalled(t, "RecordUsage", mock.Anything, mock.Anything)
}

func TestHandleOrderCanceled_ReleasesUsage(t *testing.T) {
	usage := new(mockUsageRecorder)
	consumer := NewConsumer(usage, pkgkafka.NewMemoryIdempotencyStore(time.Hour), newTestLogger())

	usage.On("ReleaseUsage", mock.Anything, "order-1").
		Return([]domain.OfferUsageRecord{{ID: "usage-1", OrderID: "order-1"}}, nil)

	evt := newTestEvent("evt-2", TopicOrderCanceled, OrderCanceledData{OrderID: "order-1", UserID: "user-1"})
	err := consumer.HandleOrderCanceled(context.Background(), evt)
	assert.NoError(t, err)

	usage.AssertExpectations(t)
}

func TestHandleOrderCanceled_NothingToReleaseIsFine(t *testing.T) {
	usage := new(mockUsageRecorder)
	consumer := NewConsumer(usage, pkgkafka.NewMemoryIdempotencyStore(time.Hour), newTestLogger())

	usage.On("ReleaseUsage", mock.Anything, "order-1").
		Return(nil, apperrors.NotFound("offer usage for order", "order-1"))

	evt := newTestEvent("evt-2", TopicOrderCanceled, OrderCanceledData{OrderID: "order-1"})
	err := consumer.HandleOrderCanceled(context.Background(), evt)
	assert.NoError(t, err)
}

func TestHandleOrderCanceled_TransientErrorPropagates(t *testing.T) {
	usage := new(mockUsageRecorder)
	consumer := NewConsumer(usage, nil, newTestLogger())

	usage.On("ReleaseUsage", mock.Anything, "order-1").
		Return(nil, errors.New("db down"))

	evt := newTestEvent("evt-2", TopicOrderCanceled, OrderCanceledData{OrderID: "order-1"})
	err := consumer.HandleOrderCanceled(context.Background(), evt)
	assert.Error(t, err)
}
