package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ppob-wallet-ledger/internal/domain/margin"
	"github.com/ppob-wallet-ledger/internal/domain/provider"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
)

// MarginRepository is an in-memory margin.Repository
type MarginRepository struct {
	mu    sync.Mutex
	rules map[uuid.UUID]margin.Rule
}

var _ margin.Repository = (*MarginRepository)(nil)

func NewMarginRepository() *MarginRepository {
	return &MarginRepository{rules: make(map[uuid.UUID]margin.Rule)}
}

func (r *MarginRepository) Create(_ context.Context, rule *margin.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.ID] = *rule
	return nil
}

func (r *MarginRepository) GetByID(_ context.Context, id uuid.UUID) (*margin.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, margin.ErrRuleNotFound{ID: id}
	}
	return &rule, nil
}

func (r *MarginRepository) Update(_ context.Context, rule *margin.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rules[rule.ID]
	if !ok {
		return margin.ErrRuleNotFound{ID: rule.ID}
	}
	if cur.Status != shared.ReviewPending {
		return shared.ErrAlreadyTerminal
	}
	r.rules[rule.ID] = *rule
	return nil
}

func (r *MarginRepository) ListApproved(ctx context.Context) ([]*margin.Rule, error) {
	rules, _ := r.List(ctx, shared.ReviewApproved)
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i].ReviewedAt, rules[j].ReviewedAt
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	return rules, nil
}

func (r *MarginRepository) List(_ context.Context, status shared.ReviewStatus) ([]*margin.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*margin.Rule
	for _, rule := range r.rules {
		if status == "" || rule.Status == status {
			rule := rule
			out = append(out, &rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ProviderChangeRepository is an in-memory provider.ChangeRepository
type ProviderChangeRepository struct {
	mu      sync.Mutex
	changes map[uuid.UUID]provider.ConfigChange
}

var _ provider.ChangeRepository = (*ProviderChangeRepository)(nil)

func NewProviderChangeRepository() *ProviderChangeRepository {
	return &ProviderChangeRepository{changes: make(map[uuid.UUID]provider.ConfigChange)}
}

func (r *ProviderChangeRepository) Create(_ context.Context, c *provider.ConfigChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes[c.ID] = *c
	return nil
}

func (r *ProviderChangeRepository) GetByID(_ context.Context, id uuid.UUID) (*provider.ConfigChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.changes[id]
	if !ok {
		return nil, provider.ErrChangeNotFound{ID: id}
	}
	return &c, nil
}

func (r *ProviderChangeRepository) Update(_ context.Context, c *provider.ConfigChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.changes[c.ID]
	if !ok {
		return provider.ErrChangeNotFound{ID: c.ID}
	}
	if cur.Status != shared.ReviewPending {
		return shared.ErrAlreadyTerminal
	}
	r.changes[c.ID] = *c
	return nil
}

func (r *ProviderChangeRepository) List(_ context.Context, status shared.ReviewStatus) ([]*provider.ConfigChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*provider.ConfigChange
	for _, c := range r.changes {
		if status == "" || c.Status == status {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// RegistrationStore keeps the last snapshot written by the orchestrator.
type RegistrationStore struct {
	mu   sync.Mutex
	regs map[string]provider.Registration
}

var _ provider.RegistrationStore = (*RegistrationStore)(nil)

func NewRegistrationStore() *RegistrationStore {
	return &RegistrationStore{regs: make(map[string]provider.Registration)}
}

func (r *RegistrationStore) Upsert(_ context.Context, regs []provider.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range regs {
		r.regs[reg.Name] = reg
	}
	return nil
}

func (r *RegistrationStore) List(_ context.Context) ([]provider.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]provider.Registration, 0, len(r.regs))
	for _, reg := range r.regs {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
