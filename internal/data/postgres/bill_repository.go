package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/ppob-wallet-ledger/internal/domain/bill"
	"github.com/ppob-wallet-ledger/internal/platform/persistence"
)

const billColumns = `id, transaction_code, user_id, provider, category, product_code, customer_number, customer_name,
		base_amount, margin_amount, admin_fee, total_amount, status, COALESCE(provider_reference, ''),
		wallet_transaction_id, COALESCE(failure_reason, ''), created_at, processed_at`

// BillRepository implements bill.Repository for PostgreSQL
type BillRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewBillRepository(logger *slog.Logger, db *persistence.PostgresDB) bill.Repository {
	return &BillRepository{querier: db.Pool(), logger: logger}
}

func (r *BillRepository) WithTx(tx pgx.Tx) bill.Repository {
	return &BillRepository{querier: tx, logger: r.logger}
}

func (r *BillRepository) Create(ctx context.Context, p *bill.Payment) error {
	query := `
		INSERT INTO bill_payments (id, transaction_code, user_id, provider, category, product_code, customer_number,
			customer_name, base_amount, margin_amount, admin_fee, total_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.querier.Exec(ctx, query,
		p.ID,
		p.Code,
		p.UserID,
		p.Provider,
		p.Category,
		p.ProductCode,
		p.CustomerNumber,
		p.CustomerName,
		p.BaseAmount,
		p.MarginAmount,
		p.AdminFee,
		p.TotalAmount,
		string(p.Status),
		p.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create bill payment", "code", p.Code, "error", err)
		return fmt.Errorf("failed to create bill payment: %w", err)
	}
	return nil
}

func (r *BillRepository) GetByCode(ctx context.Context, code string) (*bill.Payment, error) {
	query := `SELECT ` + billColumns + ` FROM bill_payments WHERE transaction_code = $1`
	return r.getOne(ctx, query, code)
}

// LockByCode locks the bill row; the settlement path holds it across the debit.
func (r *BillRepository) LockByCode(ctx context.Context, code string) (*bill.Payment, error) {
	query := `SELECT ` + billColumns + ` FROM bill_payments WHERE transaction_code = $1 FOR UPDATE`
	return r.getOne(ctx, query, code)
}

func (r *BillRepository) getOne(ctx context.Context, query, code string) (*bill.Payment, error) {
	var (
		p      bill.Payment
		status string
	)
	err := r.querier.QueryRow(ctx, query, code).Scan(
		&p.ID,
		&p.Code,
		&p.UserID,
		&p.Provider,
		&p.Category,
		&p.ProductCode,
		&p.CustomerNumber,
		&p.CustomerName,
		&p.BaseAmount,
		&p.MarginAmount,
		&p.AdminFee,
		&p.TotalAmount,
		&status,
		&p.ProviderReference,
		&p.WalletTransactionID,
		&p.FailureReason,
		&p.CreatedAt,
		&p.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bill.ErrPaymentNotFound{Code: code}
		}
		r.logger.Error("Failed to get bill payment", "code", code, "error", err)
		return nil, fmt.Errorf("failed to get bill payment: %w", err)
	}
	p.Status = bill.Status(status)
	return &p, nil
}

func (r *BillRepository) Update(ctx context.Context, p *bill.Payment) error {
	query := `
		UPDATE bill_payments
		SET provider = $1, status = $2, provider_reference = NULLIF($3, ''), wallet_transaction_id = $4,
			failure_reason = NULLIF($5, ''), processed_at = $6
		WHERE id = $7
	`

	result, err := r.querier.Exec(ctx, query,
		p.Provider,
		string(p.Status),
		p.ProviderReference,
		p.WalletTransactionID,
		p.FailureReason,
		p.ProcessedAt,
		p.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update bill payment", "code", p.Code, "error", err)
		return fmt.Errorf("failed to update bill payment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return bill.ErrPaymentNotFound{Code: p.Code}
	}
	return nil
}
