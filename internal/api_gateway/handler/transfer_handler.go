package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/ppob-wallet-ledger/internal/api_gateway/service"
)

type TransferHandler struct {
	wallets service.WalletService
	logger  *slog.Logger
}

func NewTransferHandler(logger *slog.Logger, wallets service.WalletService) *TransferHandler {
	return &TransferHandler{wallets: wallets, logger: logger}
}

// Create moves funds from the caller to the named receiver in one step.
func (h *TransferHandler) Create(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req TransferRequest
	if !bindJSON(c, &req) {
		return
	}

	tr, err := h.wallets.Transfer(c.Request.Context(), id.UserID, req.ReceiverUsername, req.Amount, req.Description)
	if err != nil {
		respondError(c, h.logger, "transfer.create", err)
		return
	}
	h.logger.Info("Transfer completed", "transfer_code", tr.Code, "sender_id", tr.SenderID, "receiver_id", tr.ReceiverID)
	RespondCreated(c, tr)
}
