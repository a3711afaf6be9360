package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ppob-wallet-ledger/internal/domain/idempotency"
	"github.com/ppob-wallet-ledger/internal/domain/webhook"
)

// WebhookLogRepository is an in-memory webhook.LogRepository
type WebhookLogRepository struct {
	mu   sync.Mutex
	logs map[string]webhook.Log

	// FailCreate makes Create return this error.
	FailCreate error
}

var _ webhook.LogRepository = (*WebhookLogRepository)(nil)

func NewWebhookLogRepository() *WebhookLogRepository {
	return &WebhookLogRepository{logs: make(map[string]webhook.Log)}
}

func (r *WebhookLogRepository) Create(_ context.Context, log *webhook.Log) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreate != nil {
		return r.FailCreate
	}
	if log.ID == "" {
		log.ID = ulid.Make().String()
	}
	if log.ReceivedAt.IsZero() {
		log.ReceivedAt = time.Now().UTC()
	}
	if log.Outcome == "" {
		log.Outcome = webhook.OutcomeReceived
	}
	r.logs[log.ID] = *log
	return nil
}

func (r *WebhookLogRepository) UpdateOutcome(_ context.Context, id string, outcome webhook.Outcome, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok {
		return webhook.ErrLogNotFound{ID: id}
	}
	now := time.Now().UTC()
	log.Outcome = outcome
	log.Detail = detail
	log.ProcessedAt = &now
	r.logs[id] = log
	return nil
}

func (r *WebhookLogRepository) GetByID(_ context.Context, id string) (*webhook.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok {
		return nil, webhook.ErrLogNotFound{ID: id}
	}
	return &log, nil
}

func (r *WebhookLogRepository) List(_ context.Context, f webhook.LogFilter) ([]*webhook.Log, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []webhook.Log
	for _, log := range r.logs {
		if f.Source != "" && log.Source != f.Source {
			continue
		}
		if f.Outcome != "" && log.Outcome != f.Outcome {
			continue
		}
		all = append(all, log)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	var page []*webhook.Log
	for i := f.Offset; i < len(all) && len(page) < limit; i++ {
		log := all[i]
		page = append(page, &log)
	}
	return page, int64(len(all)), nil
}

// IdempotencyStore is an in-memory idempotency.Store that ignores TTLs.
type IdempotencyStore struct {
	mu    sync.Mutex
	items map[string]idempotency.CachedResponse
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{items: make(map[string]idempotency.CachedResponse)}
}

func (s *IdempotencyStore) Get(_ context.Context, key string) (*idempotency.CachedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	return &resp, nil
}

func (s *IdempotencyStore) Save(_ context.Context, key string, resp idempotency.CachedResponse, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = resp
	return nil
}
