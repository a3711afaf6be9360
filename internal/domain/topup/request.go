package topup

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Method is how the user pays for a top-up.
type Method string

const (
	MethodBankTransfer   Method = "bank_transfer"
	MethodEWallet        Method = "e_wallet"
	MethodVirtualAccount Method = "virtual_account"
	MethodGateway        Method = "gateway"
)

// ManualMethods are the methods settled by an admin decision.
func (m Method) IsManual() bool {
	return m == MethodBankTransfer || m == MethodEWallet || m == MethodVirtualAccount
}

// Status of a top-up request. Everything except pending is absorbing.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// GatewayStatus is a gateway outcome already mapped to our vocabulary.
type GatewayStatus string

const (
	GatewaySuccess GatewayStatus = "success"
	GatewayPending GatewayStatus = "pending"
	GatewayFailed  GatewayStatus = "failed"
)

// Request is a deposit awaiting an admin decision or a gateway callback.
type Request struct {
	ID                  uuid.UUID         `json:"id"`
	Code                string            `json:"request_code"`
	UserID              uuid.UUID         `json:"user_id"`
	Amount              decimal.Decimal   `json:"amount"`
	Method              Method            `json:"payment_method"`
	Status              Status            `json:"status"`
	GatewayOrderID      string            `json:"gateway_order_id,omitempty"`
	PaymentToken        string            `json:"payment_token,omitempty"`
	PaymentURL          string            `json:"payment_url,omitempty"`
	BankDetails         map[string]string `json:"bank_details,omitempty"`
	WalletTransactionID *uuid.UUID        `json:"wallet_transaction_id,omitempty"`
	AdminNotes          string            `json:"admin_notes,omitempty"`
	ProcessedBy         *uuid.UUID        `json:"processed_by,omitempty"`
	ProcessedAt         *time.Time        `json:"processed_at,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Settle moves the request to a terminal status and stamps the decision.
func (r *Request) Settle(status Status, by *uuid.UUID, notes string) {
	now := time.Now().UTC()
	r.Status = status
	r.ProcessedBy = by
	r.ProcessedAt = &now
	r.UpdatedAt = now
	if notes != "" {
		r.AdminNotes = notes
	}
}
