package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var walletTxColumnNames = []string{
	"id", "user_id", "transaction_code", "type", "amount", "balance_before", "balance_after", "status",
	"description", "reference_id", "metadata", "created_at", "updated_at",
}

func sampleWalletTx() *wallet.Transaction {
	now := time.Now().UTC()
	return &wallet.Transaction{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		Code:          "WTX-01",
		Type:          wallet.TxBillPayment,
		Amount:        decimal.NewFromInt(55000),
		BalanceBefore: decimal.NewFromInt(100000),
		BalanceAfter:  decimal.NewFromInt(45000),
		Status:        wallet.TxSuccess,
		Description:   "PLN 1234",
		ReferenceID:   "BILL-01",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestWalletTransactionRepository_Create(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletTransactionRepository{querier: mock, logger: newTestLogger()}
	txn := sampleWalletTx()

	t.Run("without metadata writes NULL", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO wallet_transactions`).
			WithArgs(txn.ID, txn.UserID, txn.Code, "bill_payment", txn.Amount, txn.BalanceBefore, txn.BalanceAfter,
				"success", txn.Description, txn.ReferenceID, []byte(nil), txn.CreatedAt, txn.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, repo.Create(ctx, txn))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with metadata", func(t *testing.T) {
		withMeta := sampleWalletTx()
		withMeta.Metadata = map[string]interface{}{"provider": "alpha"}
		mock.ExpectExec(`INSERT INTO wallet_transactions`).
			WithArgs(withMeta.ID, withMeta.UserID, withMeta.Code, "bill_payment", withMeta.Amount, withMeta.BalanceBefore,
				withMeta.BalanceAfter, "success", withMeta.Description, withMeta.ReferenceID, []byte(`{"provider":"alpha"}`),
				withMeta.CreatedAt, withMeta.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, repo.Create(ctx, withMeta))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectExec(`INSERT INTO wallet_transactions`).WillReturnError(expectedErr)

		err := repo.Create(ctx, txn)
		assert.ErrorIs(t, err, expectedErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletTransactionRepository_GetByCode(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletTransactionRepository{querier: mock, logger: newTestLogger()}
	txn := sampleWalletTx()

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows(walletTxColumnNames).AddRow(
			txn.ID, txn.UserID, txn.Code, "bill_payment", txn.Amount, txn.BalanceBefore, txn.BalanceAfter, "success",
			txn.Description, txn.ReferenceID, []byte(`{"category":"pln"}`), txn.CreatedAt, txn.UpdatedAt,
		)
		mock.ExpectQuery(`FROM wallet_transactions\s+WHERE transaction_code = \$1`).WithArgs(txn.Code).WillReturnRows(rows)

		got, err := repo.GetByCode(ctx, txn.Code)
		require.NoError(t, err)
		assert.Equal(t, wallet.TxBillPayment, got.Type)
		assert.Equal(t, wallet.TxSuccess, got.Status)
		assert.Equal(t, "BILL-01", got.ReferenceID)
		assert.Equal(t, "pln", got.Metadata["category"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`WHERE transaction_code = \$1`).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByCode(ctx, "nope")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletTransactionRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletTransactionRepository{querier: mock, logger: newTestLogger()}
	txn := sampleWalletTx()

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE wallet_transactions\s+SET status = \$1.*WHERE id = \$5 AND status = 'pending'`).
			WithArgs("success", txn.BalanceBefore, txn.BalanceAfter, txn.UpdatedAt, txn.ID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.UpdateStatus(ctx, txn))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already settled", func(t *testing.T) {
		mock.ExpectExec(`UPDATE wallet_transactions`).
			WithArgs("success", txn.BalanceBefore, txn.BalanceAfter, txn.UpdatedAt, txn.ID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdateStatus(ctx, txn)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletTransactionRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletTransactionRepository{querier: mock, logger: newTestLogger()}
	txn := sampleWalletTx()
	filter := wallet.TransactionFilter{UserID: txn.UserID, Type: wallet.TxBillPayment, Limit: 5, Offset: 10}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM wallet_transactions\s+WHERE user_id = \$1 AND type = \$2`).
		WithArgs(txn.UserID, "bill_payment").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(11)))

	rows := pgxmock.NewRows(walletTxColumnNames).AddRow(
		txn.ID, txn.UserID, txn.Code, "bill_payment", txn.Amount, txn.BalanceBefore, txn.BalanceAfter, "success",
		txn.Description, txn.ReferenceID, nil, txn.CreatedAt, txn.UpdatedAt,
	)
	mock.ExpectQuery(`ORDER BY created_at DESC\s+LIMIT \$3 OFFSET \$4`).
		WithArgs(txn.UserID, "bill_payment", 5, 10).
		WillReturnRows(rows)

	got, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, int64(11), total)
	require.Len(t, got, 1)
	assert.Equal(t, txn.Code, got[0].Code)
	assert.Nil(t, got[0].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletTransactionRepository_Summarize(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletTransactionRepository{querier: mock, logger: newTestLogger()}
	userID := uuid.New()

	credit := decimal.NewFromInt(200000)
	debit := decimal.NewFromInt(55000)
	mock.ExpectQuery(`COUNT\(\*\) FILTER \(WHERE status = 'success'\)`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"total", "success", "pending", "failed", "credit", "debit"}).
			AddRow(int64(4), int64(3), int64(0), int64(1), credit, debit))

	s, err := repo.Summarize(context.Background(), wallet.TransactionFilter{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, int64(4), s.TotalCount)
	assert.True(t, credit.Equal(s.TotalCredit))
	assert.True(t, debit.Equal(s.TotalDebit))
	assert.InDelta(t, 75.0, s.SuccessRate, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletTransactionRepository_SumSuccessDeltas(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletTransactionRepository{querier: mock, logger: newTestLogger()}
	userID := uuid.New()
	sum := decimal.NewFromInt(45000)

	mock.ExpectQuery(`SUM\(CASE WHEN type IN`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(sum))

	got, err := repo.SumSuccessDeltas(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionWhere(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	where, args := transactionWhere(wallet.TransactionFilter{Status: wallet.TxFailed, From: &from, To: &to})
	assert.Equal(t, "\n\t\tWHERE status = $1 AND created_at >= $2 AND created_at < $3", where)
	assert.Equal(t, []interface{}{"failed", from, to}, args)

	where, args = transactionWhere(wallet.TransactionFilter{})
	assert.Empty(t, where)
	assert.Nil(t, args)
}
