package api_gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppob-wallet-ledger/internal/api_gateway/handler"
	"github.com/ppob-wallet-ledger/internal/api_gateway/middleware"
	"github.com/ppob-wallet-ledger/internal/api_gateway/service"
	"github.com/ppob-wallet-ledger/internal/config"
	"github.com/ppob-wallet-ledger/internal/domain/idempotency"
)

// Dependencies are the services behind the HTTP surface
type Dependencies struct {
	Wallets     service.WalletService
	TopUps      service.TopUpService
	Bills       service.BillService
	Providers   service.ProviderService
	Webhooks    service.WebhookService
	WebhookLogs service.WebhookLogService

	Tokens         middleware.TokenVerifier
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration

	// Checks are probed by GET /health; any failure answers 503.
	Checks map[string]func(context.Context) error
}

// Server handles HTTP requests and manages the application's lifecycle
type Server struct {
	logger      *slog.Logger
	serviceName string
	httpServer  *http.Server
	httpRouter  *gin.Engine
}

// NewServer creates and configures a new HTTP server with the given services
func NewServer(log *slog.Logger, cfg *config.Config, deps Dependencies) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.IdempotencyTTL <= 0 {
		deps.IdempotencyTTL = cfg.Idempotency.TTL
	}

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = cfg.Application.Name
	}

	httpRouter := gin.New()
	s := &Server{
		logger:      log,
		serviceName: serviceName,
		httpRouter:  httpRouter,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      httpRouter,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}

	s.setupRouter(httpRouter, deps, handlers{
		wallet:   handler.NewWalletHandler(log, deps.Wallets),
		transfer: handler.NewTransferHandler(log, deps.Wallets),
		topup:    handler.NewTopUpHandler(log, deps.TopUps),
		bill:     handler.NewBillHandler(log, deps.Bills),
		admin:    handler.NewAdminHandler(log, deps.Providers, deps.WebhookLogs),
		webhook:  handler.NewWebhookHandler(log, deps.Webhooks),
	})
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}
