package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ppob-wallet-ledger/internal/config"
	"github.com/ppob-wallet-ledger/internal/domain/provider"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
)

// Customer number prefixes that steer the sandbox outcome.
const (
	SandboxFailPrefix    = "000"
	SandboxPendingPrefix = "999"
)

// Sandbox is a deterministic in-process provider for development and tests.
type Sandbox struct {
	name          string
	price         decimal.Decimal
	fee           decimal.Decimal
	categories    []string
	webhookSecret string
	logger        *slog.Logger
}

var (
	_ provider.Handler         = (*Sandbox)(nil)
	_ provider.WebhookVerifier = (*Sandbox)(nil)
)

func NewSandbox(cfg config.ProviderConfig, logger *slog.Logger) (provider.Handler, error) {
	price := cfg.SandboxPrice
	if !price.IsPositive() {
		price = decimal.NewFromInt(50000)
	}
	return &Sandbox{
		name:          cfg.Name,
		price:         price,
		fee:           cfg.SandboxFee,
		categories:    append([]string(nil), cfg.Categories...),
		webhookSecret: cfg.WebhookSecret,
		logger:        logger.With("component", "provider", "provider", cfg.Name),
	}, nil
}

func (s *Sandbox) Inquiry(ctx context.Context, req provider.InquiryRequest) (*provider.BillInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.CustomerNumber == "" {
		return nil, fmt.Errorf("customer number is required: %w", shared.ErrInvalidRequest)
	}
	return &provider.BillInfo{
		CustomerName: "SANDBOX " + req.CustomerNumber,
		ProductName:  strings.ToUpper(req.Category) + " " + req.ProductCode,
		BasePrice:    s.price,
		AdminFee:     s.fee,
	}, nil
}

func (s *Sandbox) Pay(ctx context.Context, req provider.PaymentRequest) (*provider.PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref := "SBX-" + req.RefID
	switch {
	case strings.HasPrefix(req.CustomerNumber, SandboxFailPrefix):
		s.logger.Debug("Sandbox declined payment", "ref_id", req.RefID)
		return &provider.PaymentResult{Status: provider.PaymentFailed, ProviderRef: ref, Message: "customer number blocked"}, nil
	case strings.HasPrefix(req.CustomerNumber, SandboxPendingPrefix):
		return &provider.PaymentResult{Status: provider.PaymentPending, ProviderRef: ref, Message: "awaiting biller"}, nil
	default:
		return &provider.PaymentResult{Status: provider.PaymentSuccess, ProviderRef: ref}, nil
	}
}

func (s *Sandbox) SupportedCategories() []string {
	return s.categories
}

func (s *Sandbox) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

func (s *Sandbox) VerifyWebhook(headers http.Header, body []byte) (*provider.Notification, error) {
	return verifySignedNotification(s.webhookSecret, headers, body)
}
