// Package postgres provides PostgreSQL implementations of the domain repositories.
// Every repository can be rebound to a pgx.Tx with WithTx so the ledger engine can
// lock and mutate several rows in one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
	"github.com/ppob-wallet-ledger/internal/platform/persistence"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// UserRepository implements the wallet.UserRepository interface for PostgreSQL
type UserRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(logger *slog.Logger, db *persistence.PostgresDB) wallet.UserRepository {
	return &UserRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *UserRepository) WithTx(tx pgx.Tx) wallet.UserRepository {
	return &UserRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new wallet holder. A taken username yields ErrDuplicateUsername.
func (r *UserRepository) Create(ctx context.Context, u *wallet.User) error {
	query := `
		INSERT INTO users (id, username, role, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.querier.Exec(ctx, query,
		u.ID,
		u.Username,
		u.Role,
		u.Balance,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return wallet.ErrDuplicateUsername{Username: u.Username}
		}
		r.logger.Error("Failed to create user", "username", u.Username, "error", err)
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by its ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*wallet.User, error) {
	query := `
		SELECT id, username, role, balance, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	u, err := scanUser(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrUserNotFound{UserID: id}
		}
		r.logger.Error("Failed to get user", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return u, nil
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*wallet.User, error) {
	query := `
		SELECT id, username, role, balance, created_at, updated_at
		FROM users
		WHERE username = $1
	`

	u, err := scanUser(r.querier.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrUserNotFound{Username: username}
		}
		r.logger.Error("Failed to get user by username", "username", username, "error", err)
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	return u, nil
}

// LockForUpdate obtains a row lock on the user and returns its current balance.
// It must run inside a transaction; the lock is released on commit or rollback.
func (r *UserRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*wallet.User, error) {
	query := `
		SELECT id, username, role, balance, created_at, updated_at
		FROM users
		WHERE id = $1
		FOR UPDATE
	`

	u, err := scanUser(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrUserNotFound{UserID: id}
		}
		r.logger.Error("Failed to lock user for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock user for update: %w", err)
	}

	return u, nil
}

// UpdateBalance writes the balance computed by the ledger engine under the row lock.
func (r *UserRepository) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	query := `
		UPDATE users
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, balance, id)
	if err != nil {
		r.logger.Error("Failed to update user balance", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update user balance: %w", err)
	}

	if result.RowsAffected() == 0 {
		return wallet.ErrUserNotFound{UserID: id}
	}

	return nil
}

func scanUser(row pgx.Row) (*wallet.User, error) {
	var u wallet.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Role,
		&u.Balance,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
