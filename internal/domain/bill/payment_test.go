package bill

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayment_Transitions(t *testing.T) {
	t.Run("MarkSuccess keeps earlier reference when none given", func(t *testing.T) {
		p := &Payment{Status: StatusPending, ProviderReference: "REF-1"}
		txID := uuid.New()

		p.MarkSuccess("", txID)

		assert.Equal(t, StatusSuccess, p.Status)
		assert.Equal(t, "REF-1", p.ProviderReference)
		require.NotNil(t, p.WalletTransactionID)
		assert.Equal(t, txID, *p.WalletTransactionID)
		assert.NotNil(t, p.ProcessedAt)
		assert.True(t, p.Status.IsTerminal())
	})

	t.Run("MarkFailed", func(t *testing.T) {
		p := &Payment{Status: StatusPending}
		p.MarkFailed("customer number blocked")

		assert.Equal(t, StatusFailed, p.Status)
		assert.Equal(t, "customer number blocked", p.FailureReason)
		assert.Nil(t, p.WalletTransactionID)
	})
}

func TestErrPaymentNotFound(t *testing.T) {
	err := ErrPaymentNotFound{Code: "BILL-1"}
	assert.True(t, errors.Is(err, shared.ErrNotFound))
	assert.Equal(t, "bill payment not found: BILL-1", err.Error())
}
