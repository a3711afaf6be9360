package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Transfer links the two wallet legs of a peer payment. It is only persisted
// after both legs are applied, so a stored transfer always has both ids set.
type Transfer struct {
	ID                    uuid.UUID       `json:"id"`
	Code                  string          `json:"transfer_code"`
	SenderID              uuid.UUID       `json:"sender_id"`
	ReceiverID            uuid.UUID       `json:"receiver_id"`
	Amount                decimal.Decimal `json:"amount"`
	Description           string          `json:"description"`
	Status                Status          `json:"status"`
	SenderTransactionID   uuid.UUID       `json:"sender_transaction_id"`
	ReceiverTransactionID uuid.UUID       `json:"receiver_transaction_id"`
	CreatedAt             time.Time       `json:"created_at"`
}

// Repository defines transfer persistence operations
type Repository interface {
	Create(ctx context.Context, t *Transfer) error
	GetByCode(ctx context.Context, code string) (*Transfer, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrTransferNotFound indicates a missing transfer
type ErrTransferNotFound struct {
	Code string
}

func (e ErrTransferNotFound) Error() string {
	return "transfer not found: " + e.Code
}

func (e ErrTransferNotFound) Unwrap() error {
	return shared.ErrNotFound
}
