package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ppob-wallet-ledger/internal/domain/settlement"
	"github.com/ppob-wallet-ledger/internal/platform/persistence"
)

// SettlementRepository implements settlement.Repository for PostgreSQL
type SettlementRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewSettlementRepository creates a new PostgreSQL pending settlement repository
func NewSettlementRepository(logger *slog.Logger, db *persistence.PostgresDB) settlement.Repository {
	return &SettlementRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *SettlementRepository) WithTx(tx pgx.Tx) settlement.Repository {
	return &SettlementRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create records a provider success. A webhook racing the synchronous path may
// insert the same bill twice; the second insert only refreshes the reference.
func (r *SettlementRepository) Create(ctx context.Context, rec *settlement.Record) error {
	query := `
		INSERT INTO pending_settlements (bill_code, provider, provider_reference, amount, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bill_code) DO UPDATE
		SET provider_reference = COALESCE(NULLIF(EXCLUDED.provider_reference, ''), pending_settlements.provider_reference)
		RETURNING id, status, attempts
	`

	var status string
	err := r.querier.QueryRow(ctx, query,
		rec.BillCode,
		rec.Provider,
		rec.ProviderReference,
		rec.Amount,
		string(rec.Status),
		rec.Attempts,
		rec.CreatedAt,
	).Scan(&rec.ID, &status, &rec.Attempts)
	if err != nil {
		r.logger.Error("Failed to create settlement record", "bill_code", rec.BillCode, "error", err)
		return fmt.Errorf("failed to create settlement record: %w", err)
	}
	rec.Status = settlement.Status(status)

	return nil
}

// GetPending retrieves a batch of unsettled records, oldest first.
func (r *SettlementRepository) GetPending(ctx context.Context, limit int) ([]*settlement.Record, error) {
	query := `
		SELECT id, bill_code, provider, provider_reference, amount, status, attempts, last_error, created_at, last_attempt_at
		FROM pending_settlements
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, string(settlement.StatusPending), limit)
	if err != nil {
		r.logger.Error("Failed to get pending settlement records", "error", err)
		return nil, fmt.Errorf("failed to get pending settlement records: %w", err)
	}
	defer rows.Close()

	var records []*settlement.Record
	for rows.Next() {
		rec, err := scanSettlement(rows)
		if err != nil {
			r.logger.Error("Failed to scan settlement record", "error", err)
			return nil, fmt.Errorf("failed to scan settlement record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating settlement records", "error", err)
		return nil, fmt.Errorf("error iterating settlement records: %w", err)
	}

	return records, nil
}

func (r *SettlementRepository) GetByBillCode(ctx context.Context, billCode string) (*settlement.Record, error) {
	query := `
		SELECT id, bill_code, provider, provider_reference, amount, status, attempts, last_error, created_at, last_attempt_at
		FROM pending_settlements
		WHERE bill_code = $1
	`

	rec, err := scanSettlement(r.querier.QueryRow(ctx, query, billCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settlement.ErrRecordNotFound{BillCode: billCode}
		}
		r.logger.Error("Failed to get settlement record", "bill_code", billCode, "error", err)
		return nil, fmt.Errorf("failed to get settlement record: %w", err)
	}
	return rec, nil
}

// MarkSettled closes the record. A bill without a record (debited before this
// feature existed, or never recorded) is not an error.
func (r *SettlementRepository) MarkSettled(ctx context.Context, billCode string) error {
	query := `
		UPDATE pending_settlements
		SET status = $1, last_attempt_at = $2
		WHERE bill_code = $3 AND status <> $1
	`

	if _, err := r.querier.Exec(ctx, query, string(settlement.StatusSettled), time.Now().UTC(), billCode); err != nil {
		r.logger.Error("Failed to mark settlement record settled", "bill_code", billCode, "error", err)
		return fmt.Errorf("failed to mark settlement record settled: %w", err)
	}
	return nil
}

func (r *SettlementRepository) MarkManualReview(ctx context.Context, billCode, reason string) error {
	query := `
		UPDATE pending_settlements
		SET status = $1, last_error = $2, last_attempt_at = $3
		WHERE bill_code = $4
	`

	result, err := r.querier.Exec(ctx, query, string(settlement.StatusManualReview), reason, time.Now().UTC(), billCode)
	if err != nil {
		r.logger.Error("Failed to flag settlement record for review", "bill_code", billCode, "error", err)
		return fmt.Errorf("failed to flag settlement record for review: %w", err)
	}
	if result.RowsAffected() == 0 {
		return settlement.ErrRecordNotFound{BillCode: billCode}
	}
	return nil
}

// IncrementAttempts bumps the retry counter after a failed sweep.
func (r *SettlementRepository) IncrementAttempts(ctx context.Context, id int64, lastErr string) error {
	query := `
		UPDATE pending_settlements
		SET attempts = attempts + 1, last_error = $1, last_attempt_at = $2
		WHERE id = $3
	`

	if _, err := r.querier.Exec(ctx, query, lastErr, time.Now().UTC(), id); err != nil {
		r.logger.Error("Failed to increment settlement attempts", "id", id, "error", err)
		return fmt.Errorf("failed to increment settlement attempts: %w", err)
	}
	return nil
}

func scanSettlement(row pgx.Row) (*settlement.Record, error) {
	var (
		rec    settlement.Record
		status string
	)
	err := row.Scan(
		&rec.ID,
		&rec.BillCode,
		&rec.Provider,
		&rec.ProviderReference,
		&rec.Amount,
		&status,
		&rec.Attempts,
		&rec.LastError,
		&rec.CreatedAt,
		&rec.LastAttemptAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = settlement.Status(status)
	return &rec, nil
}
