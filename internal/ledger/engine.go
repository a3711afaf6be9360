// Package ledger is the only writer of wallet balances. Every mutation locks the
// user row, appends a wallet transaction carrying the balance snapshot and, for
// success rows, writes the new balance in the same database transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/transfer"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
	"github.com/ppob-wallet-ledger/internal/notification"
	"github.com/ppob-wallet-ledger/internal/platform/persistence"
	"github.com/ppob-wallet-ledger/internal/platform/telemetry"
)

// ApplyRequest describes one balance movement.
type ApplyRequest struct {
	UserID      uuid.UUID
	Type        wallet.TxType
	Amount      decimal.Decimal
	Description string
	ReferenceID string
	Metadata    map[string]interface{}

	// Status defaults to success. A pending row records the snapshot without
	// moving the balance until Confirm.
	Status wallet.TxStatus
}

// Engine applies wallet transactions
type Engine struct {
	db          persistence.TxRunner
	users       wallet.UserRepository
	txns        wallet.TransactionRepository
	transfers   transfer.Repository
	transferMax decimal.Decimal
	notifier    notification.Dispatcher
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

// Options carries the engine's collaborators.
type Options struct {
	DB          persistence.TxRunner
	Users       wallet.UserRepository
	Txns        wallet.TransactionRepository
	Transfers   transfer.Repository
	TransferMax decimal.Decimal
	Notifier    notification.Dispatcher
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
}

func NewEngine(opts Options) *Engine {
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NoopMetrics()
	}
	if opts.Notifier == nil {
		opts.Notifier = notification.NoopDispatcher{}
	}
	return &Engine{
		db:          opts.DB,
		users:       opts.Users,
		txns:        opts.Txns,
		transfers:   opts.Transfers,
		transferMax: opts.TransferMax,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With("component", "ledger"),
	}
}

// ApplyInTx writes req inside the caller's transaction. The user row stays
// locked until tx ends. Nothing is written when the result would be negative.
func (e *Engine) ApplyInTx(ctx context.Context, tx pgx.Tx, req ApplyRequest) (*wallet.Transaction, error) {
	if err := shared.CheckAmount(req.Amount); err != nil {
		return nil, err
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("unknown transaction type %q: %w", req.Type, shared.ErrInvalidRequest)
	}
	status := req.Status
	if status == "" {
		status = wallet.TxSuccess
	}
	if status == wallet.TxFailed {
		return nil, fmt.Errorf("cannot apply a failed transaction: %w", shared.ErrInvalidRequest)
	}

	users := e.users.WithTx(tx)
	user, err := users.LockForUpdate(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	before := user.Balance
	after := before.Add(req.Type.Delta(req.Amount))
	if after.IsNegative() {
		e.logger.Warn("Insufficient balance",
			"user_id", req.UserID.String(),
			"type", string(req.Type),
			"amount", req.Amount.String(),
			"balance", before.String())
		return nil, shared.ErrInsufficientBalance
	}

	now := time.Now().UTC()
	txn := &wallet.Transaction{
		ID:            uuid.New(),
		UserID:        req.UserID,
		Code:          shared.NewCode(shared.PrefixWalletTx),
		Type:          req.Type,
		Amount:        req.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        status,
		Description:   req.Description,
		ReferenceID:   req.ReferenceID,
		Metadata:      req.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.txns.WithTx(tx).Create(ctx, txn); err != nil {
		return nil, err
	}

	if status == wallet.TxSuccess {
		if err := users.UpdateBalance(ctx, req.UserID, after); err != nil {
			return nil, err
		}
	}

	e.record(ctx, txn)
	return txn, nil
}

// Apply runs ApplyInTx in its own transaction.
func (e *Engine) Apply(ctx context.Context, req ApplyRequest) (*wallet.Transaction, error) {
	var txn *wallet.Transaction
	err := e.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		txn, err = e.ApplyInTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("Wallet transaction applied",
		"code", txn.Code,
		"user_id", txn.UserID.String(),
		"type", string(txn.Type),
		"status", string(txn.Status),
		"balance_after", txn.BalanceAfter.String())
	return txn, nil
}

// Confirm moves a pending transaction to success. The snapshot is recomputed
// against the balance at confirmation time.
func (e *Engine) Confirm(ctx context.Context, code string) (*wallet.Transaction, error) {
	var txn *wallet.Transaction
	err := e.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		txns := e.txns.WithTx(tx)
		current, err := txns.LockByCode(ctx, code)
		if err != nil {
			return err
		}
		switch current.Status {
		case wallet.TxSuccess:
			txn = current
			return nil
		case wallet.TxFailed:
			return fmt.Errorf("transaction %s is failed: %w", code, shared.ErrAlreadyTerminal)
		}

		users := e.users.WithTx(tx)
		user, err := users.LockForUpdate(ctx, current.UserID)
		if err != nil {
			return err
		}
		after := user.Balance.Add(current.Type.Delta(current.Amount))
		if after.IsNegative() {
			return shared.ErrInsufficientBalance
		}

		current.BalanceBefore = user.Balance
		current.BalanceAfter = after
		current.Status = wallet.TxSuccess
		current.UpdatedAt = time.Now().UTC()
		if err := txns.UpdateStatus(ctx, current); err != nil {
			return err
		}
		if err := users.UpdateBalance(ctx, current.UserID, after); err != nil {
			return err
		}
		txn = current
		e.record(ctx, current)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Fail moves a pending transaction to failed without touching the balance.
func (e *Engine) Fail(ctx context.Context, code, reason string) (*wallet.Transaction, error) {
	var txn *wallet.Transaction
	err := e.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		txns := e.txns.WithTx(tx)
		current, err := txns.LockByCode(ctx, code)
		if err != nil {
			return err
		}
		switch current.Status {
		case wallet.TxFailed:
			txn = current
			return nil
		case wallet.TxSuccess:
			return fmt.Errorf("transaction %s is success: %w", code, shared.ErrAlreadyTerminal)
		}

		current.Status = wallet.TxFailed
		current.UpdatedAt = time.Now().UTC()
		if err := txns.UpdateStatus(ctx, current); err != nil {
			return err
		}
		txn = current
		e.record(ctx, current)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("Wallet transaction failed", "code", code, "reason", reason)
	return txn, nil
}

func (e *Engine) record(ctx context.Context, txn *wallet.Transaction) {
	e.metrics.LedgerTransactions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(txn.Type)),
		attribute.String("status", string(txn.Status)),
	))
}

// isBusiness reports errors the caller caused, as opposed to infrastructure failures.
func isBusiness(err error) bool {
	return errors.Is(err, shared.ErrInsufficientBalance) ||
		errors.Is(err, shared.ErrInvalidAmount) ||
		errors.Is(err, shared.ErrUserNotFound) ||
		errors.Is(err, shared.ErrSelfTransfer) ||
		errors.Is(err, shared.ErrInvalidRequest)
}
