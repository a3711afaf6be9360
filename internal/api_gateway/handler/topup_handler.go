package handler

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ppob-wallet-ledger/internal/api_gateway/service"
	"github.com/ppob-wallet-ledger/internal/domain/topup"
)

// TopUpHandler handles deposit requests and their admin queue.
type TopUpHandler struct {
	topups service.TopUpService
	logger *slog.Logger
}

func NewTopUpHandler(logger *slog.Logger, topups service.TopUpService) *TopUpHandler {
	return &TopUpHandler{topups: topups, logger: logger}
}

func (h *TopUpHandler) CreateManual(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req ManualTopUpRequest
	if !bindJSON(c, &req) {
		return
	}

	created, err := h.topups.CreateManualRequest(c.Request.Context(), id.UserID, req.Amount, topup.Method(req.PaymentMethod), req.BankDetails)
	if err != nil {
		respondError(c, h.logger, "topup.manual", err)
		return
	}
	RespondCreated(c, created)
}

// CreateGateway opens a hosted payment session and returns its URL.
func (h *TopUpHandler) CreateGateway(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req GatewayTopUpRequest
	if !bindJSON(c, &req) {
		return
	}

	created, url, err := h.topups.CreateGatewayRequest(c.Request.Context(), id.UserID, req.Amount)
	if err != nil {
		respondError(c, h.logger, "topup.gateway", err)
		return
	}
	RespondCreated(c, GatewayTopUpResponse{Request: created, PaymentURL: url})
}

// Get returns a request. Users only see their own.
func (h *TopUpHandler) Get(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	requestID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	req, err := h.topups.Get(c.Request.Context(), requestID, owner(id))
	if err != nil {
		respondError(c, h.logger, "topup.get", err)
		return
	}
	RespondOK(c, req)
}

// List pages through the admin queue. Status defaults to pending.
func (h *TopUpHandler) List(c *gin.Context) {
	var q StatusQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}
	reqs, total, err := h.topups.List(c.Request.Context(), topup.Status(q.Status), q.Limit, q.Offset)
	if err != nil {
		respondError(c, h.logger, "topup.list", err)
		return
	}
	if reqs == nil {
		reqs = []*topup.Request{}
	}
	RespondWithPage(c, reqs, q.Page, total)
}

func (h *TopUpHandler) Approve(c *gin.Context) {
	h.decide(c, "topup.approve", h.topups.Approve)
}

func (h *TopUpHandler) Reject(c *gin.Context) {
	h.decide(c, "topup.reject", h.topups.Reject)
}

type topUpDecision func(ctx context.Context, requestID, adminID uuid.UUID, notes string) (*topup.Request, error)

func (h *TopUpHandler) decide(c *gin.Context, op string, decide topUpDecision) {
	admin, ok := identity(c)
	if !ok {
		return
	}
	requestID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req DecisionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	decided, err := decide(c.Request.Context(), requestID, admin.UserID, req.Notes)
	if err != nil {
		respondError(c, h.logger, op, err)
		return
	}
	RespondOK(c, decided)
}
