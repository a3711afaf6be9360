// Package provider defines the capabilities a bill-payment provider integration
// must offer and the registration state the orchestrator keeps for it.
package provider

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// InquiryRequest asks a provider for the bill behind a customer number.
type InquiryRequest struct {
	Category       string `json:"category"`
	ProductCode    string `json:"product_code"`
	CustomerNumber string `json:"customer_number"`
}

// BillInfo is the provider's answer to an inquiry. BasePrice excludes our margin.
type BillInfo struct {
	CustomerName string            `json:"customer_name"`
	ProductName  string            `json:"product_name"`
	BasePrice    decimal.Decimal   `json:"base_price"`
	AdminFee     decimal.Decimal   `json:"admin_fee"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// PaymentRequest asks a provider to pay a bill. RefID is our bill code.
type PaymentRequest struct {
	Category       string          `json:"category"`
	ProductCode    string          `json:"product_code"`
	CustomerNumber string          `json:"customer_number"`
	RefID          string          `json:"ref_id"`
	Amount         decimal.Decimal `json:"amount"`
}

type PaymentStatus string

const (
	PaymentSuccess PaymentStatus = "success"
	PaymentPending PaymentStatus = "pending"
	PaymentFailed  PaymentStatus = "failed"
)

// PaymentResult is the provider's answer to a pay call. A failed status is a
// business outcome, not a transport error.
type PaymentResult struct {
	Status      PaymentStatus `json:"status"`
	ProviderRef string        `json:"provider_ref"`
	Message     string        `json:"message"`
}

// Handler is implemented once per provider integration.
type Handler interface {
	Inquiry(ctx context.Context, req InquiryRequest) (*BillInfo, error)
	Pay(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	SupportedCategories() []string
	HealthCheck(ctx context.Context) error
}

// Notification is a verified asynchronous payment outcome from a provider.
type Notification struct {
	RefID       string        `json:"ref_id"`
	ProviderRef string        `json:"provider_ref"`
	Status      PaymentStatus `json:"status"`
	Message     string        `json:"message"`
}

// WebhookVerifier is implemented by handlers that accept callbacks.
type WebhookVerifier interface {
	VerifyWebhook(headers http.Header, body []byte) (*Notification, error)
}
