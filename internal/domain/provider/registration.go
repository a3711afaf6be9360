package provider

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
)

// HealthState of a registered provider
type HealthState string

const (
	StateHealthy   HealthState = "healthy"
	StateUnhealthy HealthState = "unhealthy"
	StateDisabled  HealthState = "disabled"
)

// Registration is the orchestrator's view of one provider.
type Registration struct {
	Name          string      `json:"name"`
	Kind          string      `json:"kind"`
	Priority      int         `json:"priority"`
	Active        bool        `json:"is_active"`
	Status        HealthState `json:"status"`
	ErrorCount    int         `json:"error_count"`
	MaxErrors     int         `json:"max_errors"`
	LastError     string      `json:"last_error,omitempty"`
	LastCheckedAt *time.Time  `json:"last_checked_at,omitempty"`
	Categories    []string    `json:"categories"`
}

// Supports reports whether the provider serves category.
func (r Registration) Supports(category string) bool {
	for _, c := range r.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Eligible reports whether the provider can take traffic.
func (r Registration) Eligible() bool {
	return r.Active && r.Status == StateHealthy
}

// RegistrationStore persists registration snapshots.
type RegistrationStore interface {
	Upsert(ctx context.Context, regs []Registration) error
	List(ctx context.Context) ([]Registration, error)
}

// NoopRegistrationStore keeps nothing; used when persistence is not wired.
type NoopRegistrationStore struct{}

var _ RegistrationStore = NoopRegistrationStore{}

func (NoopRegistrationStore) Upsert(context.Context, []Registration) error { return nil }

func (NoopRegistrationStore) List(context.Context) ([]Registration, error) { return nil, nil }

// ConfigChange is an admin proposal to change a provider's routing settings.
// Nil fields are left as they are.
type ConfigChange struct {
	ID           uuid.UUID           `json:"id"`
	ProviderName string              `json:"provider_name"`
	Priority     *int                `json:"priority,omitempty"`
	Active       *bool               `json:"is_active,omitempty"`
	MaxErrors    *int                `json:"max_errors,omitempty"`
	Status       shared.ReviewStatus `json:"status"`
	RequestedBy  uuid.UUID           `json:"requested_by"`
	ReviewedBy   *uuid.UUID          `json:"reviewed_by,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	ReviewedAt   *time.Time          `json:"reviewed_at,omitempty"`
}

// Apply overlays the proposed fields onto reg.
func (c ConfigChange) Apply(reg *Registration) {
	if c.Priority != nil {
		reg.Priority = *c.Priority
	}
	if c.MaxErrors != nil {
		reg.MaxErrors = *c.MaxErrors
	}
	if c.Active != nil {
		reg.Active = *c.Active
		if !reg.Active {
			reg.Status = StateDisabled
		} else if reg.Status == StateDisabled {
			reg.Status = StateHealthy
			reg.ErrorCount = 0
		}
	}
}

// ChangeRepository persists provider configuration proposals
type ChangeRepository interface {
	Create(ctx context.Context, c *ConfigChange) error
	GetByID(ctx context.Context, id uuid.UUID) (*ConfigChange, error)
	Update(ctx context.Context, c *ConfigChange) error
	List(ctx context.Context, status shared.ReviewStatus) ([]*ConfigChange, error)
}

// ErrChangeNotFound indicates a missing configuration proposal
type ErrChangeNotFound struct {
	ID uuid.UUID
}

func (e ErrChangeNotFound) Error() string {
	return "provider config change not found: " + e.ID.String()
}

func (e ErrChangeNotFound) Unwrap() error {
	return shared.ErrNotFound
}
