package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/ppob-wallet-ledger/internal/domain/topup"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var topupColumnNames = []string{
	"id", "request_code", "user_id", "amount", "payment_method", "status", "gateway_order_id", "payment_token",
	"payment_url", "bank_details", "wallet_transaction_id", "admin_notes", "processed_by", "processed_at",
	"created_at", "updated_at",
}

func TestTopUpRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TopUpRepository{querier: mock, logger: newTestLogger()}
	now := time.Now().UTC()
	req := &topup.Request{
		ID:          uuid.New(),
		Code:        "TOPUP-1",
		UserID:      uuid.New(),
		Amount:      decimal.NewFromInt(50000),
		Method:      topup.MethodBankTransfer,
		Status:      topup.StatusPending,
		BankDetails: map[string]string{"bank": "BCA"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	mock.ExpectExec(`INSERT INTO topup_requests`).
		WithArgs(req.ID, req.Code, req.UserID, req.Amount, "bank_transfer", "pending", "", "", "",
			[]byte(`{"bank":"BCA"}`), "", now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), req))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopUpRepository_LockByOrderID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TopUpRepository{querier: mock, logger: newTestLogger()}
	id, userID := uuid.New(), uuid.New()
	now := time.Now()
	amount := decimal.NewFromInt(75000)

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows(topupColumnNames).AddRow(
			id, "TOPUP-2", userID, amount, "gateway", "pending", "ORDER-2", "tok", "https://pay/2",
			nil, nil, "", nil, nil, now, now,
		)
		mock.ExpectQuery(`WHERE gateway_order_id = \$1 FOR UPDATE`).WithArgs("ORDER-2").WillReturnRows(rows)

		req, err := repo.LockByOrderID(ctx, "ORDER-2")
		require.NoError(t, err)
		assert.Equal(t, topup.MethodGateway, req.Method)
		assert.Equal(t, "ORDER-2", req.GatewayOrderID)
		assert.Nil(t, req.WalletTransactionID)
		assert.Nil(t, req.BankDetails)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown order", func(t *testing.T) {
		mock.ExpectQuery(`WHERE gateway_order_id = \$1 FOR UPDATE`).WithArgs("ORDER-X").WillReturnError(pgx.ErrNoRows)

		_, err := repo.LockByOrderID(ctx, "ORDER-X")
		var notFound topup.ErrRequestNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "ORDER-X", notFound.OrderID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTopUpRepository_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TopUpRepository{querier: mock, logger: newTestLogger()}
	admin := uuid.New()
	req := &topup.Request{ID: uuid.New(), Status: topup.StatusPending}
	req.Settle(topup.StatusRejected, &admin, "no transfer found")

	mock.ExpectExec(`UPDATE topup_requests`).
		WithArgs("rejected", "", "", req.WalletTransactionID, "no transfer found", req.ProcessedBy, req.ProcessedAt,
			req.UpdatedAt, req.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.Update(context.Background(), req)
	assert.ErrorIs(t, err, topup.ErrRequestNotFound{ID: req.ID})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopUpRepository_ListByStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TopUpRepository{querier: mock, logger: newTestLogger()}
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM topup_requests WHERE status = \$1`).
		WithArgs("pending").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(`ORDER BY created_at ASC\s+LIMIT \$2 OFFSET \$3`).
		WithArgs("pending", 20, 0).
		WillReturnRows(pgxmock.NewRows(topupColumnNames).AddRow(
			uuid.New(), "TOPUP-3", uuid.New(), decimal.NewFromInt(20000), "e_wallet", "pending", "", "", "",
			[]byte(`{"wallet":"ovo"}`), nil, "", nil, nil, now, now,
		))

	reqs, total, err := repo.ListByStatus(context.Background(), topup.StatusPending, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, reqs, 1)
	assert.Equal(t, "ovo", reqs[0].BankDetails["wallet"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
