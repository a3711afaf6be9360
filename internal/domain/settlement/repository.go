package settlement

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
)

// Repository manages pending settlement records
type Repository interface {
	// Create inserts the record, or refreshes the provider reference when one
	// already exists for the bill. ID is populated either way.
	Create(ctx context.Context, r *Record) error
	GetPending(ctx context.Context, limit int) ([]*Record, error)
	GetByBillCode(ctx context.Context, billCode string) (*Record, error)
	MarkSettled(ctx context.Context, billCode string) error
	MarkManualReview(ctx context.Context, billCode, reason string) error
	IncrementAttempts(ctx context.Context, id int64, lastErr string) error
	WithTx(tx pgx.Tx) Repository
}

// ErrRecordNotFound indicates a missing settlement record
type ErrRecordNotFound struct {
	BillCode string
}

func (e ErrRecordNotFound) Error() string {
	return "settlement record not found: " + e.BillCode
}

func (e ErrRecordNotFound) Unwrap() error {
	return shared.ErrNotFound
}
