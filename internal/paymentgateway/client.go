// Package paymentgateway talks to the hosted payment page used for gateway
// top-ups and verifies its payment notifications.
package paymentgateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/ppob-wallet-ledger/internal/config"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/topup"
)

// ErrDisabled is returned when no gateway is configured.
var ErrDisabled = errors.New("payment gateway is not configured")

// Customer identifies the payer on the hosted page.
type Customer struct {
	UserID   string
	Username string
}

// Session is a hosted payment page the user is redirected to.
type Session struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// Callback is a verified payment notification.
type Callback struct {
	OrderID string
	Status  topup.GatewayStatus
	Raw     map[string]interface{}
}

// Client is the payment gateway capability.
type Client interface {
	CreatePaymentSession(ctx context.Context, orderID string, amount decimal.Decimal, customer Customer) (*Session, error)
	VerifyCallback(body []byte) (*Callback, error)
}

// New selects the gateway named by cfg.Driver.
func New(cfg config.GatewayConfig, logger *slog.Logger) (Client, error) {
	switch cfg.Driver {
	case "midtrans":
		return NewMidtransClient(cfg, logger), nil
	case "", "none":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown gateway driver %q", cfg.Driver)
	}
}

// Disabled rejects every gateway operation.
type Disabled struct{}

var _ Client = Disabled{}

func (Disabled) CreatePaymentSession(context.Context, string, decimal.Decimal, Customer) (*Session, error) {
	return nil, ErrDisabled
}

func (Disabled) VerifyCallback([]byte) (*Callback, error) {
	return nil, fmt.Errorf("%w: %v", shared.ErrExternalVerificationFailed, ErrDisabled)
}
