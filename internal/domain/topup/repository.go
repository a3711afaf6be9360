package topup

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
)

// Repository defines top-up request persistence operations
type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	GetByOrderID(ctx context.Context, orderID string) (*Request, error)
	LockByID(ctx context.Context, id uuid.UUID) (*Request, error)
	LockByOrderID(ctx context.Context, orderID string) (*Request, error)
	Update(ctx context.Context, r *Request) error
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Request, int64, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrRequestNotFound indicates a missing top-up request
type ErrRequestNotFound struct {
	ID      uuid.UUID
	OrderID string
}

func (e ErrRequestNotFound) Error() string {
	if e.OrderID != "" {
		return "top-up request not found for order: " + e.OrderID
	}
	return "top-up request not found: " + e.ID.String()
}

func (e ErrRequestNotFound) Unwrap() error {
	return shared.ErrNotFound
}
