package api_gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ppob-wallet-ledger/internal/api_gateway/handler"
	"github.com/ppob-wallet-ledger/internal/api_gateway/middleware"
	"github.com/ppob-wallet-ledger/internal/domain/wallet"
)

// handlers groups everything setupRouter mounts
type handlers struct {
	wallet   *handler.WalletHandler
	transfer *handler.TransferHandler
	topup    *handler.TopUpHandler
	bill     *handler.BillHandler
	admin    *handler.AdminHandler
	webhook  *handler.WebhookHandler
}

// setupRouter configures API routes and middleware for the application
func (s *Server) setupRouter(r *gin.Engine, deps Dependencies, h handlers) {
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(s.logger))
	r.Use(otelgin.Middleware(s.serviceName))

	idempotent := middleware.Idempotency(deps.Idempotency, deps.IdempotencyTTL, s.logger)

	v1 := r.Group("/api/v1", middleware.Authenticate(deps.Tokens))
	user := v1.Group("", middleware.RequireRole(wallet.RoleUser, wallet.RoleAdmin))
	{
		user.GET("/wallet/balance", h.wallet.Balance)
		user.GET("/wallet/transactions", h.wallet.Transactions)
		user.GET("/wallet/summary", h.wallet.Summary)

		user.POST("/transfers", idempotent, h.transfer.Create)

		user.POST("/topups/manual", idempotent, h.topup.CreateManual)
		user.POST("/topups/gateway", idempotent, h.topup.CreateGateway)
		user.GET("/topups/:id", h.topup.Get)

		user.POST("/bills/inquiry", h.bill.Inquiry)
		user.POST("/bills/pay", idempotent, h.bill.Pay)
		user.GET("/bills/:code", h.bill.Get)
	}

	admin := v1.Group("/admin", middleware.RequireRole(wallet.RoleAdmin))
	{
		admin.POST("/users", idempotent, h.wallet.OpenWallet)

		admin.GET("/topups", h.topup.List)
		admin.POST("/topups/:id/approve", h.topup.Approve)
		admin.POST("/topups/:id/reject", h.topup.Reject)

		admin.POST("/wallet-transactions/:code/confirm", h.wallet.Confirm)
		admin.POST("/wallet-transactions/:code/fail", h.wallet.Fail)
		admin.GET("/wallets/:user_id/audit", h.wallet.Audit)

		admin.GET("/providers", h.admin.Providers)
		admin.POST("/providers/health-check", h.admin.HealthCheck)

		admin.GET("/provider-changes", h.admin.ListProviderChanges)
		admin.POST("/provider-changes", h.admin.ProposeProviderChange)
		admin.POST("/provider-changes/:id/approve", h.admin.ApproveProviderChange)
		admin.POST("/provider-changes/:id/reject", h.admin.RejectProviderChange)

		admin.GET("/margins", h.admin.ListMargins)
		admin.POST("/margins", h.admin.ProposeMargin)
		admin.POST("/margins/:id/approve", h.admin.ApproveMargin)
		admin.POST("/margins/:id/reject", h.admin.RejectMargin)

		admin.GET("/webhooks", h.admin.Webhooks)
	}

	// Callbacks authenticate by signature, not bearer token
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/gateway", h.webhook.Gateway)
		webhooks.POST("/providers/:name", h.webhook.Provider)
	}

	// Health check endpoint for monitoring
	r.GET("/health", s.health(deps.Checks))
}

func (s *Server) health(checks map[string]func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		results := make(gin.H, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				s.logger.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
				results[name] = err.Error()
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		c.JSON(code, gin.H{"status": status, "checks": results, "timestamp": time.Now().UTC()})
	}
}
