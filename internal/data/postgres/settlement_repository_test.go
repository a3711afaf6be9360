package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/ppob-wallet-ledger/internal/domain/settlement"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var settlementColumnNames = []string{
	"id", "bill_code", "provider", "provider_reference", "amount", "status", "attempts", "last_error", "created_at", "last_attempt_at",
}

func TestSettlementRepository_Create(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &SettlementRepository{querier: mock, logger: newTestLogger()}

	t.Run("insert populates id", func(t *testing.T) {
		rec := settlement.NewRecord("BILL-1", "alpha", "REF-1", decimal.NewFromInt(55000))
		mock.ExpectQuery(`INSERT INTO pending_settlements.*ON CONFLICT \(bill_code\) DO UPDATE`).
			WithArgs(rec.BillCode, rec.Provider, rec.ProviderReference, rec.Amount, "pending", 0, rec.CreatedAt).
			WillReturnRows(pgxmock.NewRows([]string{"id", "status", "attempts"}).AddRow(int64(42), "pending", 0))

		require.NoError(t, repo.Create(ctx, rec))
		assert.Equal(t, int64(42), rec.ID)
		assert.Equal(t, settlement.StatusPending, rec.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict returns existing state", func(t *testing.T) {
		rec := settlement.NewRecord("BILL-2", "alpha", "", decimal.NewFromInt(1000))
		mock.ExpectQuery(`INSERT INTO pending_settlements`).
			WithArgs(rec.BillCode, rec.Provider, "", rec.Amount, "pending", 0, rec.CreatedAt).
			WillReturnRows(pgxmock.NewRows([]string{"id", "status", "attempts"}).AddRow(int64(7), "settled", 2))

		require.NoError(t, repo.Create(ctx, rec))
		assert.Equal(t, int64(7), rec.ID)
		assert.Equal(t, settlement.StatusSettled, rec.Status)
		assert.Equal(t, 2, rec.Attempts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		rec := settlement.NewRecord("BILL-3", "alpha", "REF", decimal.NewFromInt(1000))
		expectedErr := errors.New("db error")
		mock.ExpectQuery(`INSERT INTO pending_settlements`).WillReturnError(expectedErr)

		err := repo.Create(ctx, rec)
		assert.ErrorIs(t, err, expectedErr)
		assert.Contains(t, err.Error(), "failed to create settlement record")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSettlementRepository_GetPending(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &SettlementRepository{querier: mock, logger: newTestLogger()}
	now := time.Now()
	amount := decimal.NewFromInt(55000)

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows(settlementColumnNames).
			AddRow(int64(1), "BILL-1", "alpha", "REF-1", amount, "pending", 0, "", now, nil).
			AddRow(int64(2), "BILL-2", "beta", "REF-2", amount, "pending", 3, "timeout", now, &now)
		mock.ExpectQuery(`FROM pending_settlements\s+WHERE status = \$1\s+ORDER BY created_at ASC\s+LIMIT \$2`).
			WithArgs("pending", 50).
			WillReturnRows(rows)

		recs, err := repo.GetPending(ctx, 50)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "BILL-1", recs[0].BillCode)
		assert.Nil(t, recs[0].LastAttemptAt)
		assert.Equal(t, 3, recs[1].Attempts)
		assert.Equal(t, "timeout", recs[1].LastError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectQuery(`FROM pending_settlements`).WithArgs("pending", 10).WillReturnError(expectedErr)

		recs, err := repo.GetPending(ctx, 10)
		assert.Nil(t, recs)
		assert.ErrorIs(t, err, expectedErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSettlementRepository_GetByBillCode_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &SettlementRepository{querier: mock, logger: newTestLogger()}
	mock.ExpectQuery(`WHERE bill_code = \$1`).WithArgs("BILL-X").WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByBillCode(context.Background(), "BILL-X")
	var notFound settlement.ErrRecordNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "BILL-X", notFound.BillCode)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepository_StatusUpdates(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &SettlementRepository{querier: mock, logger: newTestLogger()}

	t.Run("mark settled tolerates a missing record", func(t *testing.T) {
		mock.ExpectExec(`UPDATE pending_settlements\s+SET status = \$1`).
			WithArgs("settled", pgxmock.AnyArg(), "BILL-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		assert.NoError(t, repo.MarkSettled(ctx, "BILL-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("manual review", func(t *testing.T) {
		mock.ExpectExec(`UPDATE pending_settlements`).
			WithArgs("manual_review", "insufficient balance", pgxmock.AnyArg(), "BILL-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.MarkManualReview(ctx, "BILL-1", "insufficient balance"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("manual review on missing record", func(t *testing.T) {
		mock.ExpectExec(`UPDATE pending_settlements`).
			WithArgs("manual_review", "x", pgxmock.AnyArg(), "BILL-9").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.MarkManualReview(ctx, "BILL-9", "x")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("increment attempts", func(t *testing.T) {
		mock.ExpectExec(`SET attempts = attempts \+ 1`).
			WithArgs("connection reset", pgxmock.AnyArg(), int64(5)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.IncrementAttempts(ctx, 5, "connection reset"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
