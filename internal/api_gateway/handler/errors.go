package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: ErrNoProviderAvailable can arrive wrapped in a ProviderError.
var errorMappings = []errorMapping{
	{shared.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{shared.ErrSelfTransfer, http.StatusBadRequest, "SELF_TRANSFER"},
	{shared.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
	{wallet.ErrEmptyUsername, http.StatusBadRequest, "INVALID_REQUEST"},
	{shared.ErrExternalVerificationFailed, http.StatusBadRequest, "VERIFICATION_FAILED"},
	{shared.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{shared.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{shared.ErrAlreadyTerminal, http.StatusConflict, "ALREADY_TERMINAL"},
	{shared.ErrDuplicateRequest, http.StatusConflict, "DUPLICATE"},
	{shared.ErrInsufficientBalance, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
	{shared.ErrNoProviderAvailable, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE"},
}

// respondError maps a service error onto the error envelope. Unknown errors
// are logged and reported as 500 without leaking their text.
func respondError(c *gin.Context, logger *slog.Logger, op string, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			RespondWithError(c, m.status, m.code, err.Error())
			return
		}
	}

	var providerErr *shared.ProviderError
	if errors.As(err, &providerErr) {
		logger.Warn("Provider call failed", "operation", op, "provider", providerErr.Provider, "error", err)
		RespondWithError(c, http.StatusBadGateway, "PROVIDER_ERROR", "Provider "+providerErr.Provider+" failed to process the request")
		return
	}

	logger.Error("Request failed", "operation", op, "error", err)
	RespondInternalError(c)
}
