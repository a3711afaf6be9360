package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppob-wallet-ledger/internal/domain/idempotency"
)

// unreachableClient fails every command without retrying.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIdempotencyStore_GetPropagatesErrors(t *testing.T) {
	store := NewIdempotencyStore(unreachableClient(t))

	resp, err := store.Get(context.Background(), "user-1:abc")
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "failed to get idempotency key")
}

func TestIdempotencyStore_SavePropagatesErrors(t *testing.T) {
	store := NewIdempotencyStore(unreachableClient(t))

	err := store.Save(context.Background(), "user-1:abc", idempotency.CachedResponse{StatusCode: 201, Body: []byte(`{}`)}, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save idempotency key")
}
