// Package idempotency describes replayable responses keyed by the client's
// Idempotency-Key header.
package idempotency

import (
	"context"
	"time"
)

// CachedResponse is what a replay writes back to the client.
type CachedResponse struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
}

// Store keeps responses for a bounded time.
type Store interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) (*CachedResponse, error)
	Save(ctx context.Context, key string, resp CachedResponse, ttl time.Duration) error
}
