package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/ppob-wallet-ledger/internal/api_gateway/service"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
)

// WalletHandler serves balance and history reads plus the admin ledger tools.
type WalletHandler struct {
	wallets service.WalletService
	logger  *slog.Logger
}

func NewWalletHandler(logger *slog.Logger, wallets service.WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets, logger: logger}
}

func (h *WalletHandler) Balance(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	user, err := h.wallets.Balance(c.Request.Context(), id.UserID)
	if err != nil {
		respondError(c, h.logger, "wallet.balance", err)
		return
	}
	RespondOK(c, user)
}

// filter builds a history filter for the caller from the query string.
func (h *WalletHandler) filter(c *gin.Context) (wallet.TransactionFilter, bool) {
	id, ok := identity(c)
	if !ok {
		return wallet.TransactionFilter{}, false
	}
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return wallet.TransactionFilter{}, false
	}
	from, to, err := q.Range()
	if err != nil {
		respondError(c, h.logger, "wallet.filter", err)
		return wallet.TransactionFilter{}, false
	}

	filter := wallet.TransactionFilter{
		UserID: id.UserID,
		Type:   wallet.TxType(q.Type),
		Status: wallet.TxStatus(q.Status),
		From:   from,
		To:     to,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if filter.Type != "" && !filter.Type.Valid() {
		RespondBadRequest(c, "Unknown transaction type")
		return wallet.TransactionFilter{}, false
	}
	if filter.Status != "" && !filter.Status.Valid() {
		RespondBadRequest(c, "Unknown transaction status")
		return wallet.TransactionFilter{}, false
	}
	return filter, true
}

// Transactions lists the caller's wallet history, newest first.
func (h *WalletHandler) Transactions(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	txns, total, err := h.wallets.History(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "wallet.history", err)
		return
	}
	if txns == nil {
		txns = []*wallet.Transaction{}
	}
	RespondWithPage(c, txns, Page{Limit: filter.Limit, Offset: filter.Offset}, total)
}

func (h *WalletHandler) Summary(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	summary, err := h.wallets.Summary(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "wallet.summary", err)
		return
	}
	RespondOK(c, summary)
}

// OpenWallet registers a new wallet holder with a zero balance.
func (h *WalletHandler) OpenWallet(c *gin.Context) {
	var req OpenWalletRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.wallets.OpenWallet(c.Request.Context(), req.Username, req.Role)
	if err != nil {
		respondError(c, h.logger, "wallet.open", err)
		return
	}
	RespondCreated(c, user)
}

func (h *WalletHandler) Audit(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	report, err := h.wallets.Audit(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, "wallet.audit", err)
		return
	}
	if !report.Consistent {
		h.logger.Warn("Wallet balance drifted from ledger", "user_id", userID, "difference", report.Difference)
	}
	RespondOK(c, report)
}

// Confirm settles a pending wallet transaction as success.
func (h *WalletHandler) Confirm(c *gin.Context) {
	txn, err := h.wallets.Confirm(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, h.logger, "wallet.confirm", err)
		return
	}
	RespondOK(c, txn)
}

func (h *WalletHandler) Fail(c *gin.Context) {
	var req FailTransactionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	txn, err := h.wallets.Fail(c.Request.Context(), c.Param("code"), req.Reason)
	if err != nil {
		respondError(c, h.logger, "wallet.fail", err)
		return
	}
	RespondOK(c, txn)
}
