package margin

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Scope a rule applies to. Product beats category beats global.
type Scope string

const (
	ScopeProduct  Scope = "product"
	ScopeCategory Scope = "category"
	ScopeGlobal   Scope = "global"
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

var (
	ErrInvalidScope      = errors.New("margin scope must be product, category or global")
	ErrMissingScopeValue = errors.New("margin scope value is required for product and category rules")
	ErrInvalidType       = errors.New("margin type must be percentage or fixed")
	ErrInvalidPercentage = errors.New("percentage margin must be between 0 and 100")
	ErrNegativeFixed     = errors.New("fixed margin cannot be negative")
)

var hundred = decimal.NewFromInt(100)

// Rule is a markup applied to a provider's base price.
type Rule struct {
	ID          uuid.UUID           `json:"id"`
	Scope       Scope               `json:"scope"`
	ScopeValue  string              `json:"scope_value,omitempty"`
	Type        Type                `json:"margin_type"`
	Value       decimal.Decimal     `json:"value"`
	Status      shared.ReviewStatus `json:"status"`
	RequestedBy uuid.UUID           `json:"requested_by"`
	ReviewedBy  *uuid.UUID          `json:"reviewed_by,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	ReviewedAt  *time.Time          `json:"reviewed_at,omitempty"`
}

func (r Rule) Validate() error {
	switch r.Scope {
	case ScopeProduct, ScopeCategory:
		if r.ScopeValue == "" {
			return ErrMissingScopeValue
		}
	case ScopeGlobal:
	default:
		return ErrInvalidScope
	}

	switch r.Type {
	case TypePercentage:
		if r.Value.IsNegative() || r.Value.GreaterThan(hundred) {
			return ErrInvalidPercentage
		}
	case TypeFixed:
		if r.Value.IsNegative() {
			return ErrNegativeFixed
		}
	default:
		return ErrInvalidType
	}
	return nil
}

// Amount is the markup on base. Percentages are taken of base only and rounded
// to two places.
func (r Rule) Amount(base decimal.Decimal) decimal.Decimal {
	if r.Type == TypeFixed {
		return r.Value.Round(2)
	}
	return base.Mul(r.Value).Div(hundred).Round(2)
}

// Key identifies the slot a rule occupies; a newer approved rule replaces the
// older one in the same slot.
func (r Rule) Key() string {
	if r.Scope == ScopeGlobal {
		return string(ScopeGlobal)
	}
	return string(r.Scope) + ":" + r.ScopeValue
}

// Repository persists margin rules and their review state
type Repository interface {
	Create(ctx context.Context, r *Rule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	Update(ctx context.Context, r *Rule) error

	// ListApproved returns approved rules ordered by review time, oldest first
	ListApproved(ctx context.Context) ([]*Rule, error)
	List(ctx context.Context, status shared.ReviewStatus) ([]*Rule, error)
}

// ErrRuleNotFound indicates a missing margin rule
type ErrRuleNotFound struct {
	ID uuid.UUID
}

func (e ErrRuleNotFound) Error() string {
	return "margin rule not found: " + e.ID.String()
}

func (e ErrRuleNotFound) Unwrap() error {
	return shared.ErrNotFound
}
