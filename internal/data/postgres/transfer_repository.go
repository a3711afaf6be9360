package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/ppob-wallet-ledger/internal/domain/transfer"
	"github.com/ppob-wallet-ledger/internal/platform/persistence"
)

// TransferRepository implements transfer.Repository for PostgreSQL
type TransferRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewTransferRepository(logger *slog.Logger, db *persistence.PostgresDB) transfer.Repository {
	return &TransferRepository{querier: db.Pool(), logger: logger}
}

func (r *TransferRepository) WithTx(tx pgx.Tx) transfer.Repository {
	return &TransferRepository{querier: tx, logger: r.logger}
}

func (r *TransferRepository) Create(ctx context.Context, t *transfer.Transfer) error {
	query := `
		INSERT INTO transfers (id, transfer_code, sender_id, receiver_id, amount, description, status,
			sender_transaction_id, receiver_transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.querier.Exec(ctx, query,
		t.ID,
		t.Code,
		t.SenderID,
		t.ReceiverID,
		t.Amount,
		t.Description,
		string(t.Status),
		t.SenderTransactionID,
		t.ReceiverTransactionID,
		t.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create transfer", "code", t.Code, "error", err)
		return fmt.Errorf("failed to create transfer: %w", err)
	}
	return nil
}

func (r *TransferRepository) GetByCode(ctx context.Context, code string) (*transfer.Transfer, error) {
	query := `
		SELECT id, transfer_code, sender_id, receiver_id, amount, description, status,
			sender_transaction_id, receiver_transaction_id, created_at
		FROM transfers
		WHERE transfer_code = $1
	`

	var (
		t      transfer.Transfer
		status string
	)
	err := r.querier.QueryRow(ctx, query, code).Scan(
		&t.ID,
		&t.Code,
		&t.SenderID,
		&t.ReceiverID,
		&t.Amount,
		&t.Description,
		&status,
		&t.SenderTransactionID,
		&t.ReceiverTransactionID,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transfer.ErrTransferNotFound{Code: code}
		}
		r.logger.Error("Failed to get transfer", "code", code, "error", err)
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	t.Status = transfer.Status(status)
	return &t, nil
}
