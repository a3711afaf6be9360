package bill

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Payment is a bill paid through a provider. TotalAmount is what the wallet is
// debited once the provider confirms.
type Payment struct {
	ID                  uuid.UUID       `json:"id"`
	Code                string          `json:"transaction_code"`
	UserID              uuid.UUID       `json:"user_id"`
	Provider            string          `json:"provider"`
	Category            string          `json:"category"`
	ProductCode         string          `json:"product_code"`
	CustomerNumber      string          `json:"customer_number"`
	CustomerName        string          `json:"customer_name"`
	BaseAmount          decimal.Decimal `json:"base_amount"`
	MarginAmount        decimal.Decimal `json:"margin_amount"`
	AdminFee            decimal.Decimal `json:"admin_fee"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	Status              Status          `json:"status"`
	ProviderReference   string          `json:"provider_reference,omitempty"`
	WalletTransactionID *uuid.UUID      `json:"wallet_transaction_id,omitempty"`
	FailureReason       string          `json:"failure_reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	ProcessedAt         *time.Time      `json:"processed_at,omitempty"`
}

// MarkSuccess records the provider reference and the debit that paid for the bill.
func (p *Payment) MarkSuccess(providerRef string, walletTxID uuid.UUID) {
	now := time.Now().UTC()
	p.Status = StatusSuccess
	if providerRef != "" {
		p.ProviderReference = providerRef
	}
	p.WalletTransactionID = &walletTxID
	p.ProcessedAt = &now
}

func (p *Payment) MarkFailed(reason string) {
	now := time.Now().UTC()
	p.Status = StatusFailed
	p.FailureReason = reason
	p.ProcessedAt = &now
}

// Repository defines bill payment persistence operations
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByCode(ctx context.Context, code string) (*Payment, error)
	LockByCode(ctx context.Context, code string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	WithTx(tx pgx.Tx) Repository
}

// ErrPaymentNotFound indicates a missing bill payment
type ErrPaymentNotFound struct {
	Code string
}

func (e ErrPaymentNotFound) Error() string {
	return "bill payment not found: " + e.Code
}

func (e ErrPaymentNotFound) Unwrap() error {
	return shared.ErrNotFound
}
