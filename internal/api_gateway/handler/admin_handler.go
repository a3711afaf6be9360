package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/ppob-wallet-ledger/internal/api_gateway/service"
	"github.com/ppob-wallet-ledger/internal/domain/margin"
	"github.com/ppob-wallet-ledger/internal/domain/provider"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/webhook"
)

// AdminHandler serves provider operations, the change approval queues and
// the webhook audit log.
type AdminHandler struct {
	providers service.ProviderService
	webhooks  service.WebhookLogService
	logger    *slog.Logger
}

func NewAdminHandler(logger *slog.Logger, providers service.ProviderService, webhooks service.WebhookLogService) *AdminHandler {
	return &AdminHandler{providers: providers, webhooks: webhooks, logger: logger}
}

func (h *AdminHandler) Providers(c *gin.Context) {
	RespondOK(c, h.providers.Registrations())
}

// HealthCheck probes every provider now instead of waiting for the monitor.
func (h *AdminHandler) HealthCheck(c *gin.Context) {
	RespondOK(c, h.providers.CheckAll(c.Request.Context()))
}

func (h *AdminHandler) ProposeProviderChange(c *gin.Context) {
	admin, ok := identity(c)
	if !ok {
		return
	}
	var req ProviderChangeRequest
	if !bindJSON(c, &req) {
		return
	}

	change, err := h.providers.ProposeProviderChange(c.Request.Context(), provider.ConfigChange{
		ProviderName: req.ProviderName,
		Priority:     req.Priority,
		Active:       req.Active,
		MaxErrors:    req.MaxErrors,
	}, admin.UserID)
	if err != nil {
		respondError(c, h.logger, "provider_change.propose", err)
		return
	}
	RespondCreated(c, change)
}

func (h *AdminHandler) ListProviderChanges(c *gin.Context) {
	changes, err := h.providers.ListProviderChanges(c.Request.Context(), shared.ReviewStatus(c.Query("status")))
	if err != nil {
		respondError(c, h.logger, "provider_change.list", err)
		return
	}
	if changes == nil {
		changes = []*provider.ConfigChange{}
	}
	RespondOK(c, changes)
}

func (h *AdminHandler) ApproveProviderChange(c *gin.Context) {
	h.reviewProviderChange(c, shared.ReviewApproved)
}

func (h *AdminHandler) RejectProviderChange(c *gin.Context) {
	h.reviewProviderChange(c, shared.ReviewRejected)
}

func (h *AdminHandler) reviewProviderChange(c *gin.Context, decision shared.ReviewStatus) {
	admin, ok := identity(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	change, err := h.providers.ReviewProviderChange(c.Request.Context(), id, admin.UserID, decision)
	if err != nil {
		respondError(c, h.logger, "provider_change.review", err)
		return
	}
	RespondOK(c, change)
}

func (h *AdminHandler) ProposeMargin(c *gin.Context) {
	admin, ok := identity(c)
	if !ok {
		return
	}
	var req MarginRequest
	if !bindJSON(c, &req) {
		return
	}

	rule, err := h.providers.ProposeMargin(c.Request.Context(), margin.Rule{
		Scope:      margin.Scope(req.Scope),
		ScopeValue: req.ScopeValue,
		Type:       margin.Type(req.Type),
		Value:      req.Value,
	}, admin.UserID)
	if err != nil {
		respondError(c, h.logger, "margin.propose", err)
		return
	}
	RespondCreated(c, rule)
}

func (h *AdminHandler) ListMargins(c *gin.Context) {
	rules, err := h.providers.ListMargins(c.Request.Context(), shared.ReviewStatus(c.Query("status")))
	if err != nil {
		respondError(c, h.logger, "margin.list", err)
		return
	}
	if rules == nil {
		rules = []*margin.Rule{}
	}
	RespondOK(c, rules)
}

func (h *AdminHandler) ApproveMargin(c *gin.Context) {
	h.reviewMargin(c, shared.ReviewApproved)
}

func (h *AdminHandler) RejectMargin(c *gin.Context) {
	h.reviewMargin(c, shared.ReviewRejected)
}

func (h *AdminHandler) reviewMargin(c *gin.Context, decision shared.ReviewStatus) {
	admin, ok := identity(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	rule, err := h.providers.ReviewMargin(c.Request.Context(), id, admin.UserID, decision)
	if err != nil {
		respondError(c, h.logger, "margin.review", err)
		return
	}
	RespondOK(c, rule)
}

// Webhooks lists stored deliveries, newest first.
func (h *AdminHandler) Webhooks(c *gin.Context) {
	var q WebhookLogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}
	logs, total, err := h.webhooks.List(c.Request.Context(), webhook.LogFilter{
		Source:  webhook.Source(q.Source),
		Outcome: webhook.Outcome(q.Outcome),
		Limit:   q.Limit,
		Offset:  q.Offset,
	})
	if err != nil {
		respondError(c, h.logger, "webhook.list", err)
		return
	}
	if logs == nil {
		logs = []*webhook.Log{}
	}
	RespondWithPage(c, logs, q.Page, total)
}
