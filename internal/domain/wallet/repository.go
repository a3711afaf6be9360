package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// UserRepository defines wallet holder persistence operations
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)

	// LockForUpdate acquires a row lock held until the surrounding transaction ends
	LockForUpdate(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	WithTx(tx pgx.Tx) UserRepository
}

// TransactionRepository manages the wallet transaction log
type TransactionRepository interface {
	Create(ctx context.Context, txn *Transaction) error
	GetByCode(ctx context.Context, code string) (*Transaction, error)
	LockByCode(ctx context.Context, code string) (*Transaction, error)

	// UpdateStatus settles a pending transaction, writing status and snapshot.
	// Rows that already left pending are not touched.
	UpdateStatus(ctx context.Context, txn *Transaction) error
	List(ctx context.Context, filter TransactionFilter) ([]*Transaction, int64, error)
	Summarize(ctx context.Context, filter TransactionFilter) (*Summary, error)

	// SumSuccessDeltas recomputes the balance from the log
	SumSuccessDeltas(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	WithTx(tx pgx.Tx) TransactionRepository
}

// ErrUserNotFound indicates a missing wallet holder
type ErrUserNotFound struct {
	UserID   uuid.UUID
	Username string
}

func (e ErrUserNotFound) Error() string {
	if e.Username != "" {
		return "user not found: " + e.Username
	}
	return "user not found: " + e.UserID.String()
}

// Is matches any ErrUserNotFound when the target carries no identifiers
func (e ErrUserNotFound) Is(target error) bool {
	t, ok := target.(ErrUserNotFound)
	if !ok {
		return false
	}
	if t.UserID == uuid.Nil && t.Username == "" {
		return true
	}
	return e.UserID == t.UserID && e.Username == t.Username
}

func (e ErrUserNotFound) Unwrap() error {
	return shared.ErrUserNotFound
}

// ErrDuplicateUsername indicates a username uniqueness violation
type ErrDuplicateUsername struct {
	Username string
}

func (e ErrDuplicateUsername) Error() string {
	return "username already exists: " + e.Username
}

func (e ErrDuplicateUsername) Unwrap() error {
	return shared.ErrDuplicateRequest
}

// ErrTransactionNotFound indicates a missing wallet transaction
type ErrTransactionNotFound struct {
	Code string
}

func (e ErrTransactionNotFound) Error() string {
	return "wallet transaction not found: " + e.Code
}

func (e ErrTransactionNotFound) Unwrap() error {
	return shared.ErrNotFound
}
