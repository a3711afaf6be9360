package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ppob-wallet-ledger/internal/domain/margin"
	"github.com/ppob-wallet-ledger/internal/domain/provider"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
)

// Admin runs the review workflow for provider configuration changes and
// margin rules. Approved proposals take effect on the live orchestrator.
type Admin struct {
	orch    *Orchestrator
	changes provider.ChangeRepository
	margins margin.Repository
	logger  *slog.Logger
}

func NewAdmin(orch *Orchestrator, changes provider.ChangeRepository, margins margin.Repository, logger *slog.Logger) *Admin {
	return &Admin{
		orch:    orch,
		changes: changes,
		margins: margins,
		logger:  logger.With("component", "orchestrator_admin"),
	}
}

// ProposeProviderChange records a pending change for a known provider.
func (a *Admin) ProposeProviderChange(ctx context.Context, change provider.ConfigChange, requestedBy uuid.UUID) (*provider.ConfigChange, error) {
	if _, ok := a.orch.Registration(change.ProviderName); !ok {
		return nil, fmt.Errorf("provider %q: %w", change.ProviderName, shared.ErrNotFound)
	}
	if change.Priority == nil && change.Active == nil && change.MaxErrors == nil {
		return nil, fmt.Errorf("change proposes nothing: %w", shared.ErrInvalidRequest)
	}
	if change.MaxErrors != nil && *change.MaxErrors <= 0 {
		return nil, fmt.Errorf("max errors must be positive: %w", shared.ErrInvalidRequest)
	}

	change.ID = uuid.New()
	change.Status = shared.ReviewPending
	change.RequestedBy = requestedBy
	change.ReviewedBy = nil
	change.ReviewedAt = nil
	change.CreatedAt = time.Now().UTC()

	if err := a.changes.Create(ctx, &change); err != nil {
		return nil, err
	}
	a.logger.Info("Provider change proposed", "change_id", change.ID, "provider", change.ProviderName, "requested_by", requestedBy)
	return &change, nil
}

// ReviewProviderChange approves or rejects a pending change. Repeating the
// decision already taken is a no-op; reversing it is ErrAlreadyTerminal.
func (a *Admin) ReviewProviderChange(ctx context.Context, id, reviewer uuid.UUID, decision shared.ReviewStatus) (*provider.ConfigChange, error) {
	if !decision.IsTerminal() {
		return nil, fmt.Errorf("review decision %q: %w", decision, shared.ErrInvalidRequest)
	}
	change, err := a.changes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if change.Status != shared.ReviewPending {
		if change.Status == decision {
			return change, nil
		}
		return nil, shared.ErrAlreadyTerminal
	}

	now := time.Now().UTC()
	change.Status = decision
	change.ReviewedBy = &reviewer
	change.ReviewedAt = &now
	if err := a.changes.Update(ctx, change); err != nil {
		return nil, err
	}

	if decision == shared.ReviewApproved {
		if err := a.orch.ApplyChange(*change); err != nil {
			return nil, err
		}
		if err := a.orch.Persist(ctx); err != nil {
			a.logger.Error("Applied provider change not saved", "change_id", id, "error", err)
		}
	}
	a.logger.Info("Provider change reviewed", "change_id", id, "provider", change.ProviderName, "decision", decision, "reviewed_by", reviewer)
	return change, nil
}

func (a *Admin) ListProviderChanges(ctx context.Context, status shared.ReviewStatus) ([]*provider.ConfigChange, error) {
	return a.changes.List(ctx, status)
}

// ProposeMargin records a pending margin rule.
func (a *Admin) ProposeMargin(ctx context.Context, rule margin.Rule, requestedBy uuid.UUID) (*margin.Rule, error) {
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidRequest, err)
	}
	if rule.Scope == margin.ScopeGlobal {
		rule.ScopeValue = ""
	}

	rule.ID = uuid.New()
	rule.Status = shared.ReviewPending
	rule.RequestedBy = requestedBy
	rule.ReviewedBy = nil
	rule.ReviewedAt = nil
	rule.CreatedAt = time.Now().UTC()

	if err := a.margins.Create(ctx, &rule); err != nil {
		return nil, err
	}
	a.logger.Info("Margin rule proposed", "rule_id", rule.ID, "slot", rule.Key(), "requested_by", requestedBy)
	return &rule, nil
}

// ReviewMargin approves or rejects a pending margin rule with the same
// replay semantics as ReviewProviderChange.
func (a *Admin) ReviewMargin(ctx context.Context, id, reviewer uuid.UUID, decision shared.ReviewStatus) (*margin.Rule, error) {
	if !decision.IsTerminal() {
		return nil, fmt.Errorf("review decision %q: %w", decision, shared.ErrInvalidRequest)
	}
	rule, err := a.margins.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.Status != shared.ReviewPending {
		if rule.Status == decision {
			return rule, nil
		}
		return nil, shared.ErrAlreadyTerminal
	}

	now := time.Now().UTC()
	rule.Status = decision
	rule.ReviewedBy = &reviewer
	rule.ReviewedAt = &now
	if err := a.margins.Update(ctx, rule); err != nil {
		return nil, err
	}

	if decision == shared.ReviewApproved {
		a.orch.ApplyMargin(*rule)
	}
	a.logger.Info("Margin rule reviewed", "rule_id", id, "slot", rule.Key(), "decision", decision, "reviewed_by", reviewer)
	return rule, nil
}

func (a *Admin) ListMargins(ctx context.Context, status shared.ReviewStatus) ([]*margin.Rule, error) {
	return a.margins.List(ctx, status)
}
