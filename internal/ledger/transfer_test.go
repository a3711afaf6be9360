package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/transfer"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
)

func TestEngine_Transfer_ExactBalance(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t)
	a := seedUser(t, e, "user_a", 20_000)
	b := seedUser(t, e, "user_b", 0)

	tr, err := e.Transfer(ctx, a.ID, "user_b", decimal.NewFromInt(20_000), "rent")
	require.NoError(t, err)

	assert.Equal(t, transfer.StatusSuccess, tr.Status)
	assert.Contains(t, tr.Code, "TRF-")
	assert.True(t, balanceOf(t, e, a.ID).IsZero())
	assert.True(t, balanceOf(t, e, b.ID).Equal(decimal.NewFromInt(20_000)))

	stored, err := store.Transfers().GetByCode(ctx, tr.Code)
	require.NoError(t, err)
	assert.Equal(t, tr.SenderTransactionID, stored.SenderTransactionID)

	sent, _, err := e.History(ctx, wallet.TransactionFilter{UserID: a.ID, Type: wallet.TxTransferSend})
	require.NoError(t, err)
	received, _, err := e.History(ctx, wallet.TransactionFilter{UserID: b.ID, Type: wallet.TxTransferReceive})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.Len(t, received, 1)

	assert.Equal(t, tr.SenderTransactionID, sent[0].ID)
	assert.Equal(t, tr.ReceiverTransactionID, received[0].ID)
	assert.Equal(t, tr.Code, sent[0].ReferenceID)
	assert.Equal(t, tr.Code, received[0].ReferenceID)
	assert.True(t, sent[0].Amount.Equal(received[0].Amount))

	assertConsistent(t, e, a.ID)
	assertConsistent(t, e, b.ID)
}

func TestEngine_Transfer_Rejections(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := seedUser(t, e, "payer", 10_000)
	b := seedUser(t, e, "payee", 0)

	tests := []struct {
		name     string
		sender   uuid.UUID
		receiver string
		amount   decimal.Decimal
		wantErr  error
	}{
		{"zero amount", a.ID, "payee", decimal.Zero, shared.ErrInvalidAmount},
		{"negative amount", a.ID, "payee", decimal.NewFromInt(-1), shared.ErrInvalidAmount},
		{"above cap", a.ID, "payee", decimal.NewFromInt(5_000_001), shared.ErrInvalidAmount},
		{"sub-cent amount", a.ID, "payee", decimal.RequireFromString("0.005"), shared.ErrInvalidAmount},
		{"three decimals", a.ID, "payee", decimal.RequireFromString("10.001"), shared.ErrInvalidAmount},
		{"unknown receiver", a.ID, "nobody", decimal.NewFromInt(1), shared.ErrUserNotFound},
		{"self transfer", a.ID, "payer", decimal.NewFromInt(1), shared.ErrSelfTransfer},
		{"insufficient", a.ID, "payee", decimal.NewFromInt(10_001), shared.ErrInsufficientBalance},
		{"unknown sender", uuid.New(), "payee", decimal.NewFromInt(1), shared.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := e.Transfer(ctx, tt.sender, tt.receiver, tt.amount, "")
			assert.Nil(t, tr)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.True(t, balanceOf(t, e, a.ID).Equal(decimal.NewFromInt(10_000)))
	assert.True(t, balanceOf(t, e, b.ID).IsZero())
	_, total, err := e.History(ctx, wallet.TransactionFilter{UserID: b.ID})
	require.NoError(t, err)
	assert.Zero(t, total, "a rejected transfer leaves no receive leg behind")
}

func TestEngine_Transfer_ConcurrentOpposingDirections(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := seedUser(t, e, "ping", 1_000)
	b := seedUser(t, e, "pong", 1_000)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = e.Transfer(ctx, a.ID, "pong", decimal.NewFromInt(10), "")
		}()
		go func() {
			defer wg.Done()
			_, _ = e.Transfer(ctx, b.ID, "ping", decimal.NewFromInt(10), "")
		}()
	}
	wg.Wait()

	total := balanceOf(t, e, a.ID).Add(balanceOf(t, e, b.ID))
	assert.True(t, total.Equal(decimal.NewFromInt(2_000)))
	assertConsistent(t, e, a.ID)
	assertConsistent(t, e, b.ID)
}

func TestLockOrder(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

	assert.Equal(t, []uuid.UUID{low, high}, lockOrder(high, low))
	assert.Equal(t, []uuid.UUID{low, high}, lockOrder(low, high))
}
