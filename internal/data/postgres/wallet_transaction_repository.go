package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
	"github.com/ppob-wallet-ledger/internal/platform/persistence"
	"github.com/shopspring/decimal"
)

const walletTxColumns = `id, user_id, transaction_code, type, amount, balance_before, balance_after, status,
		description, COALESCE(reference_id, ''), metadata, created_at, updated_at`

// creditTypesSQL lists the types that increase a balance; everything else debits.
const creditTypesSQL = `('topup_manual', 'topup_gateway', 'transfer_receive', 'refund')`

// WalletTransactionRepository implements wallet.TransactionRepository for PostgreSQL
type WalletTransactionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewWalletTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) wallet.TransactionRepository {
	return &WalletTransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *WalletTransactionRepository) WithTx(tx pgx.Tx) wallet.TransactionRepository {
	return &WalletTransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create appends a transaction to the log
func (r *WalletTransactionRepository) Create(ctx context.Context, txn *wallet.Transaction) error {
	query := `
		INSERT INTO wallet_transactions (id, user_id, transaction_code, type, amount, balance_before, balance_after,
			status, description, reference_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13)
	`

	metadata, err := marshalJSON(txn.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode transaction metadata: %w", err)
	}

	_, err = r.querier.Exec(ctx, query,
		txn.ID,
		txn.UserID,
		txn.Code,
		string(txn.Type),
		txn.Amount,
		txn.BalanceBefore,
		txn.BalanceAfter,
		string(txn.Status),
		txn.Description,
		txn.ReferenceID,
		metadata,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create wallet transaction", "code", txn.Code, "error", err)
		return fmt.Errorf("failed to create wallet transaction: %w", err)
	}

	return nil
}

// GetByCode retrieves a transaction by its business code
func (r *WalletTransactionRepository) GetByCode(ctx context.Context, code string) (*wallet.Transaction, error) {
	query := `
		SELECT ` + walletTxColumns + `
		FROM wallet_transactions
		WHERE transaction_code = $1
	`
	return r.getOne(ctx, query, code, "Failed to get wallet transaction")
}

// LockByCode retrieves a transaction by code and locks its row
func (r *WalletTransactionRepository) LockByCode(ctx context.Context, code string) (*wallet.Transaction, error) {
	query := `
		SELECT ` + walletTxColumns + `
		FROM wallet_transactions
		WHERE transaction_code = $1
		FOR UPDATE
	`
	return r.getOne(ctx, query, code, "Failed to lock wallet transaction")
}

func (r *WalletTransactionRepository) getOne(ctx context.Context, query, code, failMsg string) (*wallet.Transaction, error) {
	txn, err := scanWalletTx(r.querier.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrTransactionNotFound{Code: code}
		}
		r.logger.Error(failMsg, "code", code, "error", err)
		return nil, fmt.Errorf("failed to get wallet transaction: %w", err)
	}
	return txn, nil
}

// UpdateStatus settles a pending transaction with its final snapshot.
func (r *WalletTransactionRepository) UpdateStatus(ctx context.Context, txn *wallet.Transaction) error {
	query := `
		UPDATE wallet_transactions
		SET status = $1, balance_before = $2, balance_after = $3, updated_at = $4
		WHERE id = $5 AND status = 'pending'
	`

	result, err := r.querier.Exec(ctx, query,
		string(txn.Status),
		txn.BalanceBefore,
		txn.BalanceAfter,
		txn.UpdatedAt,
		txn.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update wallet transaction status", "code", txn.Code, "error", err)
		return fmt.Errorf("failed to update wallet transaction status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return wallet.ErrTransactionNotFound{Code: txn.Code}
	}

	return nil
}

// List returns one page of transactions matching filter, newest first, and the total match count.
func (r *WalletTransactionRepository) List(ctx context.Context, filter wallet.TransactionFilter) ([]*wallet.Transaction, int64, error) {
	where, args := transactionWhere(filter)

	countQuery := `SELECT COUNT(*) FROM wallet_transactions` + where
	var total int64
	if err := r.querier.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count wallet transactions", "user_id", filter.UserID.String(), "error", err)
		return nil, 0, fmt.Errorf("failed to count wallet transactions: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit, filter.Offset)
	query := `
		SELECT ` + walletTxColumns + `
		FROM wallet_transactions` + where + fmt.Sprintf(`
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list wallet transactions", "user_id", filter.UserID.String(), "error", err)
		return nil, 0, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	defer rows.Close()

	var txns []*wallet.Transaction
	for rows.Next() {
		txn, err := scanWalletTx(rows)
		if err != nil {
			r.logger.Error("Failed to scan wallet transaction", "error", err)
			return nil, 0, fmt.Errorf("failed to scan wallet transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating wallet transactions: %w", err)
	}

	return txns, total, nil
}

// Summarize aggregates counts and success totals for the filter's user and date range.
func (r *WalletTransactionRepository) Summarize(ctx context.Context, filter wallet.TransactionFilter) (*wallet.Summary, error) {
	where, args := transactionWhere(filter)
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'success' AND type IN ` + creditTypesSQL + `), 0),
			COALESCE(SUM(amount) FILTER (WHERE status = 'success' AND type NOT IN ` + creditTypesSQL + `), 0)
		FROM wallet_transactions` + where

	var s wallet.Summary
	err := r.querier.QueryRow(ctx, query, args...).Scan(
		&s.TotalCount,
		&s.SuccessCount,
		&s.PendingCount,
		&s.FailedCount,
		&s.TotalCredit,
		&s.TotalDebit,
	)
	if err != nil {
		r.logger.Error("Failed to summarize wallet transactions", "user_id", filter.UserID.String(), "error", err)
		return nil, fmt.Errorf("failed to summarize wallet transactions: %w", err)
	}

	s.ComputeRate()
	return &s, nil
}

// SumSuccessDeltas recomputes a balance from the success rows of the log.
func (r *WalletTransactionRepository) SumSuccessDeltas(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN type IN ` + creditTypesSQL + ` THEN amount ELSE -amount END), 0)
		FROM wallet_transactions
		WHERE user_id = $1 AND status = 'success'
	`

	var sum decimal.Decimal
	if err := r.querier.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		r.logger.Error("Failed to sum wallet transactions", "user_id", userID.String(), "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum wallet transactions: %w", err)
	}
	return sum, nil
}

func transactionWhere(filter wallet.TransactionFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.UserID != uuid.Nil {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "\n\t\tWHERE " + strings.Join(clauses, " AND "), args
}

func scanWalletTx(row pgx.Row) (*wallet.Transaction, error) {
	var (
		txn      wallet.Transaction
		txType   string
		status   string
		metadata []byte
	)
	err := row.Scan(
		&txn.ID,
		&txn.UserID,
		&txn.Code,
		&txType,
		&txn.Amount,
		&txn.BalanceBefore,
		&txn.BalanceAfter,
		&status,
		&txn.Description,
		&txn.ReferenceID,
		&metadata,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	txn.Type = wallet.TxType(txType)
	txn.Status = wallet.TxStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &txn.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode transaction metadata: %w", err)
		}
	}
	return &txn, nil
}

// marshalJSON encodes v for a JSONB column, mapping empty maps to NULL.
func marshalJSON[T any](v map[string]T) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}
