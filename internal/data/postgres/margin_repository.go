package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ppob-wallet-ledger/internal/domain/margin"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/platform/persistence"
)

const marginColumns = `id, scope, scope_value, margin_type, value, status, requested_by, reviewed_by, created_at, reviewed_at`

// MarginRepository implements margin.Repository for PostgreSQL
type MarginRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewMarginRepository(logger *slog.Logger, db *persistence.PostgresDB) margin.Repository {
	return &MarginRepository{querier: db.Pool(), logger: logger}
}

func (r *MarginRepository) Create(ctx context.Context, rule *margin.Rule) error {
	query := `
		INSERT INTO margin_rules (id, scope, scope_value, margin_type, value, status, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		rule.ID,
		string(rule.Scope),
		rule.ScopeValue,
		string(rule.Type),
		rule.Value,
		string(rule.Status),
		rule.RequestedBy,
		rule.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create margin rule", "scope", rule.Scope, "error", err)
		return fmt.Errorf("failed to create margin rule: %w", err)
	}
	return nil
}

func (r *MarginRepository) GetByID(ctx context.Context, id uuid.UUID) (*margin.Rule, error) {
	query := `SELECT ` + marginColumns + ` FROM margin_rules WHERE id = $1`

	rule, err := scanMargin(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, margin.ErrRuleNotFound{ID: id}
		}
		r.logger.Error("Failed to get margin rule", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get margin rule: %w", err)
	}
	return rule, nil
}

// Update records a review decision on a pending rule.
func (r *MarginRepository) Update(ctx context.Context, rule *margin.Rule) error {
	query := `
		UPDATE margin_rules
		SET status = $1, reviewed_by = $2, reviewed_at = $3
		WHERE id = $4 AND status = 'pending'
	`

	result, err := r.querier.Exec(ctx, query, string(rule.Status), rule.ReviewedBy, rule.ReviewedAt, rule.ID)
	if err != nil {
		r.logger.Error("Failed to update margin rule", "id", rule.ID.String(), "error", err)
		return fmt.Errorf("failed to update margin rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("margin rule %s: %w", rule.ID, shared.ErrAlreadyTerminal)
	}
	return nil
}

func (r *MarginRepository) ListApproved(ctx context.Context) ([]*margin.Rule, error) {
	query := `
		SELECT ` + marginColumns + `
		FROM margin_rules
		WHERE status = 'approved'
		ORDER BY reviewed_at ASC
	`
	return r.list(ctx, query)
}

func (r *MarginRepository) List(ctx context.Context, status shared.ReviewStatus) ([]*margin.Rule, error) {
	query := `
		SELECT ` + marginColumns + `
		FROM margin_rules
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, string(status))
}

func (r *MarginRepository) list(ctx context.Context, query string, args ...interface{}) ([]*margin.Rule, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list margin rules", "error", err)
		return nil, fmt.Errorf("failed to list margin rules: %w", err)
	}
	defer rows.Close()

	var out []*margin.Rule
	for rows.Next() {
		rule, err := scanMargin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan margin rule: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating margin rules: %w", err)
	}
	return out, nil
}

func scanMargin(row pgx.Row) (*margin.Rule, error) {
	var (
		rule     margin.Rule
		scope    string
		ruleType string
		status   string
	)
	err := row.Scan(
		&rule.ID,
		&scope,
		&rule.ScopeValue,
		&ruleType,
		&rule.Value,
		&status,
		&rule.RequestedBy,
		&rule.ReviewedBy,
		&rule.CreatedAt,
		&rule.ReviewedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.Scope = margin.Scope(scope)
	rule.Type = margin.Type(ruleType)
	rule.Status = shared.ReviewStatus(status)
	return &rule, nil
}
