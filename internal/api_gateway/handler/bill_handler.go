package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppob-wallet-ledger/internal/api_gateway/service"
	"github.com/ppob-wallet-ledger/internal/domain/bill"
	"github.com/ppob-wallet-ledger/internal/settlement"
)

type BillHandler struct {
	bills  service.BillService
	logger *slog.Logger
}

func NewBillHandler(logger *slog.Logger, bills service.BillService) *BillHandler {
	return &BillHandler{bills: bills, logger: logger}
}

// Inquiry quotes a bill including margin and admin fee without debiting.
func (h *BillHandler) Inquiry(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req BillRequest
	if !bindJSON(c, &req) {
		return
	}
	quote, err := h.bills.Inquiry(c.Request.Context(), id.UserID, req.Category, req.ProductCode, req.CustomerNumber)
	if err != nil {
		respondError(c, h.logger, "bill.inquiry", err)
		return
	}
	RespondOK(c, quote)
}

// Pay answers 202 while the provider has not settled the bill yet and 200
// once it reached success or failed.
func (h *BillHandler) Pay(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req BillRequest
	if !bindJSON(c, &req) {
		return
	}

	payment, err := h.bills.Pay(c.Request.Context(), settlement.PayRequest{
		UserID:         id.UserID,
		Category:       req.Category,
		ProductCode:    req.ProductCode,
		CustomerNumber: req.CustomerNumber,
	})
	if err != nil {
		respondError(c, h.logger, "bill.pay", err)
		return
	}

	status := http.StatusOK
	if payment.Status == bill.StatusPending {
		status = http.StatusAccepted
	}
	RespondWithData(c, status, payment)
}

func (h *BillHandler) Get(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	payment, err := h.bills.GetBill(c.Request.Context(), c.Param("code"), owner(id))
	if err != nil {
		respondError(c, h.logger, "bill.get", err)
		return
	}
	RespondOK(c, payment)
}
