package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ppob-wallet-ledger/internal/domain/bill"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
)

func TestRespondError_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"invalid amount", fmt.Errorf("amount: %w", shared.ErrInvalidAmount), http.StatusBadRequest, "INVALID_AMOUNT"},
		{"self transfer", shared.ErrSelfTransfer, http.StatusBadRequest, "SELF_TRANSFER"},
		{"invalid request", shared.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
		{"empty username", wallet.ErrEmptyUsername, http.StatusBadRequest, "INVALID_REQUEST"},
		{"user not found", wallet.ErrUserNotFound{UserID: uuid.New()}, http.StatusNotFound, "USER_NOT_FOUND"},
		{"bill not found", bill.ErrPaymentNotFound{Code: "BILL-1"}, http.StatusNotFound, "NOT_FOUND"},
		{"terminal", shared.ErrAlreadyTerminal, http.StatusConflict, "ALREADY_TERMINAL"},
		{"duplicate", wallet.ErrDuplicateUsername{Username: "budi"}, http.StatusConflict, "DUPLICATE"},
		{"insufficient", shared.ErrInsufficientBalance, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
		{"no provider", &shared.ProviderError{Provider: "alpha", Err: shared.ErrNoProviderAvailable}, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE"},
		{"provider error", &shared.ProviderError{Provider: "alpha", Err: errors.New("timeout")}, http.StatusBadGateway, "PROVIDER_ERROR"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rr)

			respondError(c, testLogger(), "test", tt.err)

			assert.Equal(t, tt.wantCode, rr.Code)
			_, errBody := decode(t, rr)
			assert.Equal(t, tt.wantErr, errBody["code"])
			if tt.wantCode == http.StatusInternalServerError {
				assert.NotContains(t, rr.Body.String(), "connection reset")
			}
		})
	}
}
