package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopic(t *testing.T) {
	assert.Equal(t, "soukly.promotion.usage_recorded", Topic("promotion", "usage_recorded"))
	assert.Equal(t, "soukly.order.completed", Topic("order", "completed"))
}

func TestDLQTopic(t *testing.T) {
	assert.Equal(t, "soukly.dlq.soukly.order.completed", DLQTopic("soukly.order.completed"))
}

func TestNewEvent(t *testing.T) {
	payload := map[string]string{"order_id": "ord-1"}

	event, err := NewEvent("promotion.usage_recorded", "ord-1", "usage", "promotion-service", payload)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "promotion.usage_recorded", event.EventType)
	assert.Equal(t, "ord-1", event.AggregateID)
	assert.Equal(t, "usage", event.AggregateType)
	assert.Equal(t, "promotion-service", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, time.Second)
}

func TestNewEvent_UnmarshalableData(t *testing.T) {
	_, err := NewEvent("promotion.usage_recorded", "ord-1", "usage", "promotion-service", make(chan int))
	assert.Error(t, err)
}

func TestEvent_RoundTrip(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
		Count   int    `json:"count"`
	}

	event, err := NewEvent("promotion.usage_recorded", "ord-42", "usage", "promotion-service", payload{OrderID: "ord-42", Count: 3})
	require.NoError(t, err)
	event.WithCorrelationID("corr-1")

	data, err := event.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, "corr-1", decoded.CorrelationID)

	var p payload
	require.NoError(t, decoded.UnmarshalData(&p))
	assert.Equal(t, "ord-42", p.OrderID)
	assert.Equal(t, 3, p.Count)
}

func TestUnmarshalEvent_Invalid(t *testing.T) {
	_, err := UnmarshalEvent([]byte("not json"))
	assert.Error(t, err)
}
