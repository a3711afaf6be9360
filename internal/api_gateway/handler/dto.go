package handler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ppob-wallet-ledger/internal/domain/shared"
)

// OpenWalletRequest creates a wallet holder. Role defaults to user.
type OpenWalletRequest struct {
	Username string `json:"username" binding:"required"`
	Role     string `json:"role" binding:"omitempty,oneof=user admin"`
}

// TransferRequest moves funds to another wallet by username
type TransferRequest struct {
	ReceiverUsername string          `json:"receiver_username" binding:"required"`
	Amount           decimal.Decimal `json:"amount"`
	Description      string          `json:"description" binding:"max=255"`
}

type ManualTopUpRequest struct {
	Amount        decimal.Decimal   `json:"amount"`
	PaymentMethod string            `json:"payment_method" binding:"required,oneof=bank_transfer e_wallet virtual_account"`
	BankDetails   map[string]string `json:"bank_details"`
}

type GatewayTopUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// GatewayTopUpResponse returns the request with the hosted payment page.
type GatewayTopUpResponse struct {
	Request    interface{} `json:"request"`
	PaymentURL string      `json:"payment_url"`
}

// DecisionRequest carries optional admin notes for approve and reject.
type DecisionRequest struct {
	Notes string `json:"notes" binding:"max=500"`
}

type FailTransactionRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// BillRequest is shared by inquiry and payment.
type BillRequest struct {
	Category       string `json:"category" binding:"required"`
	ProductCode    string `json:"product_code"`
	CustomerNumber string `json:"customer_number" binding:"required"`
}

type ProviderChangeRequest struct {
	ProviderName string `json:"provider_name" binding:"required"`
	Priority     *int   `json:"priority"`
	Active       *bool  `json:"is_active"`
	MaxErrors    *int   `json:"max_errors"`
}

type MarginRequest struct {
	Scope      string          `json:"scope" binding:"required"`
	ScopeValue string          `json:"scope_value"`
	Type       string          `json:"margin_type" binding:"required"`
	Value      decimal.Decimal `json:"value"`
}

// Page is the offset window of list endpoints
type Page struct {
	Limit  int `form:"limit,default=20" binding:"min=1,max=100"`
	Offset int `form:"offset,default=0" binding:"min=0"`
}

// HistoryQuery filters the wallet transaction list and summary. Dates accept
// RFC 3339 timestamps or plain YYYY-MM-DD days.
type HistoryQuery struct {
	Page
	Type   string `form:"type"`
	Status string `form:"status"`
	From   string `form:"from"`
	To     string `form:"to"`
}

// StatusQuery filters admin queues by status
type StatusQuery struct {
	Page
	Status string `form:"status"`
}

// WebhookLogQuery filters the webhook audit log
type WebhookLogQuery struct {
	Page
	Source  string `form:"source" binding:"omitempty,oneof=gateway provider"`
	Outcome string `form:"outcome"`
}

// Range parses From and To. A bare To day covers the whole day.
func (q HistoryQuery) Range() (from, to *time.Time, err error) {
	if from, err = parseDate(q.From, false); err != nil {
		return nil, nil, err
	}
	if to, err = parseDate(q.To, true); err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, fmt.Errorf("to is before from: %w", shared.ErrInvalidRequest)
	}
	return from, to, nil
}

func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("date %q: %w", raw, shared.ErrInvalidRequest)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
