package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ppob-wallet-ledger/internal/config"
	"github.com/ppob-wallet-ledger/internal/domain/provider"
)

// HTTPProvider speaks the common aggregator JSON API:
// POST /inquiry, POST /pay and GET /health, authenticated with X-Api-Key.
type HTTPProvider struct {
	name          string
	client        *resty.Client
	baseURL       string
	categories    []string
	webhookSecret string
	logger        *slog.Logger
}

var (
	_ provider.Handler         = (*HTTPProvider)(nil)
	_ provider.WebhookVerifier = (*HTTPProvider)(nil)
)

func NewHTTPProvider(cfg config.ProviderConfig, logger *slog.Logger) (provider.Handler, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider %s: base url is required", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("X-Api-Key", cfg.APIKey)

	return &HTTPProvider{
		name:          cfg.Name,
		client:        client,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		categories:    append([]string(nil), cfg.Categories...),
		webhookSecret: cfg.WebhookSecret,
		logger:        logger.With("component", "provider", "provider", cfg.Name),
	}, nil
}

type apiError struct {
	Message string `json:"message"`
}

func (p *HTTPProvider) post(ctx context.Context, path string, body, out interface{}) error {
	var apiErr apiError
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(out).
		SetError(&apiErr).
		Post(p.baseURL + path)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	if resp.IsError() {
		p.logger.Warn("Provider returned an error", "path", path, "status", resp.StatusCode(), "message", apiErr.Message)
		if apiErr.Message != "" {
			return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode(), apiErr.Message)
		}
		return fmt.Errorf("%s returned %d", path, resp.StatusCode())
	}
	return nil
}

func (p *HTTPProvider) Inquiry(ctx context.Context, req provider.InquiryRequest) (*provider.BillInfo, error) {
	var info provider.BillInfo
	if err := p.post(ctx, "/inquiry", req, &info); err != nil {
		return nil, err
	}
	if !info.BasePrice.IsPositive() {
		return nil, fmt.Errorf("inquiry returned non-positive price %s", info.BasePrice)
	}
	return &info, nil
}

func (p *HTTPProvider) Pay(ctx context.Context, req provider.PaymentRequest) (*provider.PaymentResult, error) {
	var result provider.PaymentResult
	if err := p.post(ctx, "/pay", req, &result); err != nil {
		return nil, err
	}
	switch result.Status {
	case provider.PaymentSuccess, provider.PaymentPending, provider.PaymentFailed:
	default:
		return nil, fmt.Errorf("pay returned unknown status %q", result.Status)
	}
	return &result, nil
}

func (p *HTTPProvider) SupportedCategories() []string {
	return p.categories
}

func (p *HTTPProvider) HealthCheck(ctx context.Context) error {
	resp, err := p.client.R().SetContext(ctx).Get(p.baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode())
	}
	return nil
}

func (p *HTTPProvider) VerifyWebhook(headers http.Header, body []byte) (*provider.Notification, error) {
	return verifySignedNotification(p.webhookSecret, headers, body)
}
