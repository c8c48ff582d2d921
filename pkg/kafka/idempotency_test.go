package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(time.Minute)

	seen, err := store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Add(ctx, "evt-1"))

	seen, err = store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(10 * time.Millisecond)

	require.NoError(t, store.Add(ctx, "evt-1"))
	time.Sleep(20 * time.Millisecond)

	seen, err := store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryIdempotencyStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(time.Minute)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				_ = store.Add(ctx, "evt-shared")
				_, _ = store.Contains(ctx, "evt-shared")
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	seen, err := store.Contains(ctx, "evt-shared")
	require.NoError(t, err)
	assert.True(t, seen)
}
