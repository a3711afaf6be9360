package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxType enumerates the kinds of wallet transactions.
type TxType string

const (
	TxTopUpManual     TxType = "topup_manual"
	TxTopUpGateway    TxType = "topup_gateway"
	TxTransferSend    TxType = "transfer_send"
	TxTransferReceive TxType = "transfer_receive"
	TxBillPayment     TxType = "bill_payment"
	TxRefund          TxType = "refund"
)

func (t TxType) Valid() bool {
	switch t {
	case TxTopUpManual, TxTopUpGateway, TxTransferSend, TxTransferReceive, TxBillPayment, TxRefund:
		return true
	}
	return false
}

// IsCredit reports whether the type increases the balance.
func (t TxType) IsCredit() bool {
	switch t {
	case TxTopUpManual, TxTopUpGateway, TxTransferReceive, TxRefund:
		return true
	}
	return false
}

// Delta is the signed balance change of amount under this type.
func (t TxType) Delta(amount decimal.Decimal) decimal.Decimal {
	if t.IsCredit() {
		return amount
	}
	return amount.Neg()
}

// TxStatus is the lifecycle state of a wallet transaction.
type TxStatus string

const (
	TxPending TxStatus = "pending"
	TxSuccess TxStatus = "success"
	TxFailed  TxStatus = "failed"
)

func (s TxStatus) Valid() bool {
	return s == TxPending || s == TxSuccess || s == TxFailed
}

func (s TxStatus) IsTerminal() bool {
	return s == TxSuccess || s == TxFailed
}

// Transaction is one entry of the append-only wallet log. BalanceBefore and
// BalanceAfter are a point-in-time snapshot and never change once Status is success.
type Transaction struct {
	ID            uuid.UUID              `json:"id"`
	UserID        uuid.UUID              `json:"user_id"`
	Code          string                 `json:"transaction_code"`
	Type          TxType                 `json:"type"`
	Amount        decimal.Decimal        `json:"amount"`
	BalanceBefore decimal.Decimal        `json:"balance_before"`
	BalanceAfter  decimal.Decimal        `json:"balance_after"`
	Status        TxStatus               `json:"status"`
	Description   string                 `json:"description"`
	ReferenceID   string                 `json:"reference_id,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// TransactionFilter narrows a history query. Zero values match everything.
type TransactionFilter struct {
	UserID uuid.UUID
	Type   TxType
	Status TxStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// Summary aggregates a user's transactions over a date range.
type Summary struct {
	TotalCount   int64           `json:"total_count"`
	SuccessCount int64           `json:"success_count"`
	PendingCount int64           `json:"pending_count"`
	FailedCount  int64           `json:"failed_count"`
	TotalCredit  decimal.Decimal `json:"total_credit"`
	TotalDebit   decimal.Decimal `json:"total_debit"`
	SuccessRate  float64         `json:"success_rate"`
}

// ComputeRate fills SuccessRate as a percentage of TotalCount.
func (s *Summary) ComputeRate() {
	if s.TotalCount == 0 {
		s.SuccessRate = 0
		return
	}
	rate := decimal.NewFromInt(s.SuccessCount).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(s.TotalCount)).
		Round(2)
	s.SuccessRate = rate.InexactFloat64()
}
