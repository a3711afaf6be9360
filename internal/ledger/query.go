package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ppob-wallet-ledger/internal/domain/wallet"
)

// Balance returns the user with its cached balance.
func (e *Engine) Balance(ctx context.Context, userID uuid.UUID) (*wallet.User, error) {
	return e.users.GetByID(ctx, userID)
}

// History returns one page of the user's transactions, newest first.
func (e *Engine) History(ctx context.Context, filter wallet.TransactionFilter) ([]*wallet.Transaction, int64, error) {
	return e.txns.List(ctx, filter)
}

func (e *Engine) Summary(ctx context.Context, filter wallet.TransactionFilter) (*wallet.Summary, error) {
	return e.txns.Summarize(ctx, filter)
}

// AuditReport compares the cached balance with the sum of the log.
type AuditReport struct {
	UserID     uuid.UUID       `json:"user_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Difference decimal.Decimal `json:"difference"`
	Consistent bool            `json:"consistent"`
}

// Audit recomputes the balance from success transactions.
func (e *Engine) Audit(ctx context.Context, userID uuid.UUID) (*AuditReport, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := e.txns.SumSuccessDeltas(ctx, userID)
	if err != nil {
		return nil, err
	}

	diff := user.Balance.Sub(sum)
	report := &AuditReport{
		UserID:     userID,
		Balance:    user.Balance,
		LedgerSum:  sum,
		Difference: diff,
		Consistent: diff.IsZero(),
	}
	if !report.Consistent {
		e.logger.Error("Balance does not match ledger",
			"user_id", userID.String(),
			"balance", user.Balance.String(),
			"ledger_sum", sum.String())
	}
	return report, nil
}

// OpenWallet provisions a wallet holder with a zero balance.
func (e *Engine) OpenWallet(ctx context.Context, username, role string) (*wallet.User, error) {
	user, err := wallet.NewUser(username, role)
	if err != nil {
		return nil, err
	}
	if err := e.users.Create(ctx, user); err != nil {
		return nil, err
	}
	e.logger.Info("Wallet opened", "user_id", user.ID.String(), "username", user.Username, "role", user.Role)
	return user, nil
}
