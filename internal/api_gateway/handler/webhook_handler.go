package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppob-wallet-ledger/internal/api_gateway/service"
	inbound "github.com/ppob-wallet-ledger/internal/webhook"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives gateway and provider callbacks. Once a delivery is
// stored the answer is always 200 and success tells the sender whether to
// stop retrying.
type WebhookHandler struct {
	webhooks service.WebhookService
	logger   *slog.Logger
}

func NewWebhookHandler(logger *slog.Logger, webhooks service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, logger: logger}
}

func (h *WebhookHandler) Gateway(c *gin.Context) {
	d, ok := h.delivery(c)
	if !ok {
		return
	}
	res, err := h.webhooks.HandleGateway(c.Request.Context(), d)
	h.respond(c, res, err)
}

func (h *WebhookHandler) Provider(c *gin.Context) {
	d, ok := h.delivery(c)
	if !ok {
		return
	}
	res, err := h.webhooks.HandleProvider(c.Request.Context(), c.Param("name"), d)
	h.respond(c, res, err)
}

func (h *WebhookHandler) delivery(c *gin.Context) (inbound.Delivery, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("Failed to read webhook body", "error", err)
		RespondBadRequest(c, "Unreadable body")
		return inbound.Delivery{}, false
	}
	return inbound.Delivery{
		Method:  c.Request.Method,
		Headers: c.Request.Header.Clone(),
		Body:    body,
	}, true
}

func (h *WebhookHandler) respond(c *gin.Context, res *inbound.Result, err error) {
	if err != nil {
		if errors.Is(err, inbound.ErrLogUnavailable) {
			h.logger.Error("Webhook not stored", "path", c.FullPath(), "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false})
			return
		}
		h.logger.Error("Webhook handling failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	h.logger.Info("Webhook handled",
		"path", c.FullPath(),
		"outcome", string(res.Outcome),
		"log_id", res.LogID)
	c.JSON(http.StatusOK, gin.H{"success": res.Acknowledged()})
}
