package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ppob-wallet-ledger/internal/domain/provider"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/platform/persistence"
)

// ProviderRegistrationRepository persists orchestrator snapshots.
type ProviderRegistrationRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

var _ provider.RegistrationStore = (*ProviderRegistrationRepository)(nil)

func NewProviderRegistrationRepository(logger *slog.Logger, db *persistence.PostgresDB) *ProviderRegistrationRepository {
	return &ProviderRegistrationRepository{querier: db.Pool(), logger: logger}
}

// Upsert writes one row per registration. Rows for providers no longer
// configured are left in place.
func (r *ProviderRegistrationRepository) Upsert(ctx context.Context, regs []provider.Registration) error {
	query := `
		INSERT INTO provider_registrations (name, kind, priority, is_active, status, error_count, max_errors,
			last_error, last_checked_at, categories, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (name) DO UPDATE
		SET kind = EXCLUDED.kind, priority = EXCLUDED.priority, is_active = EXCLUDED.is_active,
			status = EXCLUDED.status, error_count = EXCLUDED.error_count, max_errors = EXCLUDED.max_errors,
			last_error = EXCLUDED.last_error, last_checked_at = EXCLUDED.last_checked_at,
			categories = EXCLUDED.categories, updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	for _, reg := range regs {
		_, err := r.querier.Exec(ctx, query,
			reg.Name,
			reg.Kind,
			reg.Priority,
			reg.Active,
			string(reg.Status),
			reg.ErrorCount,
			reg.MaxErrors,
			reg.LastError,
			reg.LastCheckedAt,
			reg.Categories,
			now,
		)
		if err != nil {
			r.logger.Error("Failed to upsert provider registration", "provider", reg.Name, "error", err)
			return fmt.Errorf("failed to upsert provider registration: %w", err)
		}
	}
	return nil
}

func (r *ProviderRegistrationRepository) List(ctx context.Context) ([]provider.Registration, error) {
	query := `
		SELECT name, kind, priority, is_active, status, error_count, max_errors, last_error, last_checked_at, categories
		FROM provider_registrations
		ORDER BY priority ASC, name ASC
	`

	rows, err := r.querier.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list provider registrations", "error", err)
		return nil, fmt.Errorf("failed to list provider registrations: %w", err)
	}
	defer rows.Close()

	var regs []provider.Registration
	for rows.Next() {
		var (
			reg    provider.Registration
			status string
		)
		if err := rows.Scan(
			&reg.Name,
			&reg.Kind,
			&reg.Priority,
			&reg.Active,
			&status,
			&reg.ErrorCount,
			&reg.MaxErrors,
			&reg.LastError,
			&reg.LastCheckedAt,
			&reg.Categories,
		); err != nil {
			return nil, fmt.Errorf("failed to scan provider registration: %w", err)
		}
		reg.Status = provider.HealthState(status)
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider registrations: %w", err)
	}
	return regs, nil
}

// ProviderChangeRepository implements provider.ChangeRepository for PostgreSQL
type ProviderChangeRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewProviderChangeRepository(logger *slog.Logger, db *persistence.PostgresDB) provider.ChangeRepository {
	return &ProviderChangeRepository{querier: db.Pool(), logger: logger}
}

const providerChangeColumns = `id, provider_name, priority, is_active, max_errors, status, requested_by, reviewed_by,
		created_at, reviewed_at`

func (r *ProviderChangeRepository) Create(ctx context.Context, c *provider.ConfigChange) error {
	query := `
		INSERT INTO provider_config_changes (id, provider_name, priority, is_active, max_errors, status, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		c.ID,
		c.ProviderName,
		c.Priority,
		c.Active,
		c.MaxErrors,
		string(c.Status),
		c.RequestedBy,
		c.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create provider config change", "provider", c.ProviderName, "error", err)
		return fmt.Errorf("failed to create provider config change: %w", err)
	}
	return nil
}

func (r *ProviderChangeRepository) GetByID(ctx context.Context, id uuid.UUID) (*provider.ConfigChange, error) {
	query := `SELECT ` + providerChangeColumns + ` FROM provider_config_changes WHERE id = $1`

	c, err := scanProviderChange(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, provider.ErrChangeNotFound{ID: id}
		}
		r.logger.Error("Failed to get provider config change", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get provider config change: %w", err)
	}
	return c, nil
}

// Update records a review decision. Only pending proposals can be reviewed.
func (r *ProviderChangeRepository) Update(ctx context.Context, c *provider.ConfigChange) error {
	query := `
		UPDATE provider_config_changes
		SET status = $1, reviewed_by = $2, reviewed_at = $3
		WHERE id = $4 AND status = 'pending'
	`

	result, err := r.querier.Exec(ctx, query, string(c.Status), c.ReviewedBy, c.ReviewedAt, c.ID)
	if err != nil {
		r.logger.Error("Failed to update provider config change", "id", c.ID.String(), "error", err)
		return fmt.Errorf("failed to update provider config change: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("provider config change %s: %w", c.ID, shared.ErrAlreadyTerminal)
	}
	return nil
}

func (r *ProviderChangeRepository) List(ctx context.Context, status shared.ReviewStatus) ([]*provider.ConfigChange, error) {
	query := `
		SELECT ` + providerChangeColumns + `
		FROM provider_config_changes
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
	`

	rows, err := r.querier.Query(ctx, query, string(status))
	if err != nil {
		r.logger.Error("Failed to list provider config changes", "error", err)
		return nil, fmt.Errorf("failed to list provider config changes: %w", err)
	}
	defer rows.Close()

	var out []*provider.ConfigChange
	for rows.Next() {
		c, err := scanProviderChange(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider config change: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider config changes: %w", err)
	}
	return out, nil
}

func scanProviderChange(row pgx.Row) (*provider.ConfigChange, error) {
	var (
		c      provider.ConfigChange
		status string
	)
	err := row.Scan(
		&c.ID,
		&c.ProviderName,
		&c.Priority,
		&c.Active,
		&c.MaxErrors,
		&status,
		&c.RequestedBy,
		&c.ReviewedBy,
		&c.CreatedAt,
		&c.ReviewedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = shared.ReviewStatus(status)
	return &c, nil
}
