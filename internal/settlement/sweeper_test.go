package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ppob-wallet-ledger/internal/config"
	"github.com/ppob-wallet-ledger/internal/domain/bill"
	"github.com/ppob-wallet-ledger/internal/domain/settlement"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/platform/messaging/producers"
)

// strand leaves a bill the way a crash right after provider success would:
// bill pending, settlement record pending, wallet untouched.
func (f *fixture) strand(t *testing.T, status bill.Status, total int64) string {
	t.Helper()
	ctx := context.Background()
	code := shared.NewCode(shared.PrefixBill)
	require.NoError(t, f.store.Bills().Create(ctx, &bill.Payment{
		ID:             uuid.New(),
		Code:           code,
		UserID:         f.user.ID,
		Provider:       "alpha",
		Category:       "pln",
		ProductCode:    "PLN50",
		CustomerNumber: "512345678901",
		BaseAmount:     decimal.NewFromInt(total),
		TotalAmount:    decimal.NewFromInt(total),
		Status:         status,
		CreatedAt:      time.Now().UTC(),
	}))
	require.NoError(t, f.store.Settlements().Create(ctx, settlement.NewRecord(code, "alpha", "REF-"+code, decimal.NewFromInt(total))))
	return code
}

func (f *fixture) sweeper(maxAttempts int) *Sweeper {
	return NewSweeper(config.SettlementConfig{
		SweepInterval: 10 * time.Millisecond,
		BatchSize:     10,
		MaxAttempts:   maxAttempts,
	}, f.service, f.store.Settlements(), f.logger)
}

func TestSweepOnce_CompletesStrandedSettlements(t *testing.T) {
	f := newFixture(t, &stubRouter{}, 100_000)
	ctx := context.Background()

	first := f.strand(t, bill.StatusPending, 30_000)
	second := f.strand(t, bill.StatusPending, 20_000)
	f.store.Age(first, time.Minute)

	settled, err := f.sweeper(3).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, settled)
	assert.Equal(t, "50000", f.balance(t))

	for _, code := range []string{first, second} {
		payment, err := f.service.GetBill(ctx, code, nil)
		require.NoError(t, err)
		assert.Equal(t, bill.StatusSuccess, payment.Status)
		assert.Equal(t, "REF-"+code, payment.ProviderReference)
	}

	settled, err = f.sweeper(3).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, settled, "settled records are not swept again")
	assert.Equal(t, "50000", f.balance(t))
}

func TestSweepOnce_AlreadyPaidBillIsMarkedSettled(t *testing.T) {
	f := newFixture(t, &stubRouter{}, 100_000)
	ctx := context.Background()

	code := f.strand(t, bill.StatusSuccess, 30_000)

	settled, err := f.sweeper(3).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, "100000", f.balance(t), "a paid bill is never debited again")

	rec, err := f.store.Settlements().GetByBillCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusSettled, rec.Status)
}

func TestSweepOnce_RetriesThenFlagsManualReview(t *testing.T) {
	f := newFixture(t, &stubRouter{}, 100_000)
	ctx := context.Background()
	code := f.strand(t, bill.StatusPending, 30_000)
	sweeper := f.sweeper(2)

	f.alerts.On("PublishAlert", mock.Anything, mock.MatchedBy(func(a producers.Alert) bool {
		return a.BillCode == code && a.Provider == "alpha"
	})).Return(nil).Once()

	for attempt := 1; attempt <= 2; attempt++ {
		f.store.FailCommit = errors.New("connection reset")
		settled, err := sweeper.SweepOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, settled)

		rec, err := f.store.Settlements().GetByBillCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, attempt, rec.Attempts)
		assert.Contains(t, rec.LastError, "connection reset")
	}

	rec, err := f.store.Settlements().GetByBillCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusManualReview, rec.Status)
	assert.Equal(t, "100000", f.balance(t))
	f.alerts.AssertExpectations(t)

	pending, err := f.store.Settlements().GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSweepOnce_FailedBillIsFlagged(t *testing.T) {
	f := newFixture(t, &stubRouter{}, 100_000)
	ctx := context.Background()
	code := f.strand(t, bill.StatusFailed, 30_000)

	f.alerts.On("PublishAlert", mock.Anything, mock.MatchedBy(func(a producers.Alert) bool {
		return a.BillCode == code && a.Amount.Equal(decimal.NewFromInt(30_000))
	})).Return(errors.New("broker down")).Once()

	settled, err := f.sweeper(5).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, settled)

	rec, err := f.store.Settlements().GetByBillCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusManualReview, rec.Status)
	f.alerts.AssertExpectations(t)
}

func TestSweeper_StartStopsOnCancel(t *testing.T) {
	f := newFixture(t, &stubRouter{}, 100_000)
	code := f.strand(t, bill.StatusPending, 10_000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sweeper(3).Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		p, err := f.service.GetBill(context.Background(), code, nil)
		return err == nil && p.Status == bill.StatusSuccess
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
