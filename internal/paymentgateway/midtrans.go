package paymentgateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/ppob-wallet-ledger/internal/config"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/domain/topup"
)

const snapPath = "/snap/v1/transactions"

// MidtransClient creates Snap sessions and checks notification signatures.
type MidtransClient struct {
	http      *resty.Client
	baseURL   string
	serverKey string
	logger    *slog.Logger
}

var _ Client = (*MidtransClient)(nil)

func NewMidtransClient(cfg config.GatewayConfig, logger *slog.Logger) *MidtransClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetBasicAuth(cfg.ServerKey, "").
		SetHeader("Accept", "application/json")

	return &MidtransClient{
		http:      client,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		serverKey: cfg.ServerKey,
		logger:    logger.With("component", "midtrans"),
	}
}

type snapRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int64  `json:"gross_amount"`
	} `json:"transaction_details"`
	CustomerDetails struct {
		FirstName string `json:"first_name"`
	} `json:"customer_details"`
	CustomField1 string `json:"custom_field1,omitempty"`
}

type snapError struct {
	ErrorMessages []string `json:"error_messages"`
}

// CreatePaymentSession opens a Snap transaction for orderID. Amounts are sent
// in whole rupiah.
func (c *MidtransClient) CreatePaymentSession(ctx context.Context, orderID string, amount decimal.Decimal, customer Customer) (*Session, error) {
	var body snapRequest
	body.TransactionDetails.OrderID = orderID
	body.TransactionDetails.GrossAmount = amount.Round(0).IntPart()
	body.CustomerDetails.FirstName = customer.Username
	body.CustomField1 = customer.UserID

	var (
		session Session
		apiErr  snapError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&session).
		SetError(&apiErr).
		Post(c.baseURL + snapPath)
	if err != nil {
		c.logger.Error("Failed to reach payment gateway", "order_id", orderID, "error", err)
		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}
	if resp.IsError() {
		c.logger.Error("Payment gateway rejected session",
			"order_id", orderID,
			"status", resp.StatusCode(),
			"messages", strings.Join(apiErr.ErrorMessages, "; "))
		return nil, fmt.Errorf("failed to create payment session: gateway returned %d", resp.StatusCode())
	}
	if session.Token == "" || session.RedirectURL == "" {
		return nil, fmt.Errorf("failed to create payment session: empty token or redirect url")
	}

	return &session, nil
}

type notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
}

// VerifyCallback checks signature_key = sha512(order_id + status_code +
// gross_amount + server_key) and maps the transaction status.
func (c *MidtransClient) VerifyCallback(body []byte) (*Callback, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: malformed notification: %v", shared.ErrExternalVerificationFailed, err)
	}
	if n.OrderID == "" || n.SignatureKey == "" {
		return nil, fmt.Errorf("%w: missing order id or signature", shared.ErrExternalVerificationFailed)
	}

	expected := Signature(n.OrderID, n.StatusCode, n.GrossAmount, c.serverKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(n.SignatureKey))) != 1 {
		return nil, fmt.Errorf("%w: signature mismatch for order %s", shared.ErrExternalVerificationFailed, n.OrderID)
	}

	status, err := MapStatus(n.TransactionStatus, n.FraudStatus)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(body, &raw)

	return &Callback{OrderID: n.OrderID, Status: status, Raw: raw}, nil
}

// Signature computes the notification signature key.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// MapStatus translates a gateway transaction status. A captured card payment
// flagged "challenge" stays pending until the gateway decides.
func MapStatus(transactionStatus, fraudStatus string) (topup.GatewayStatus, error) {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "challenge" {
			return topup.GatewayPending, nil
		}
		return topup.GatewaySuccess, nil
	case "settlement":
		return topup.GatewaySuccess, nil
	case "pending":
		return topup.GatewayPending, nil
	case "deny", "cancel", "expire", "failure":
		return topup.GatewayFailed, nil
	default:
		return "", fmt.Errorf("unknown gateway status %q: %w", transactionStatus, shared.ErrInvalidRequest)
	}
}
