package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of a pending settlement record
type Status string

const (
	StatusPending      Status = "pending"
	StatusSettled      Status = "settled"
	StatusManualReview Status = "manual_review"
)

// Record makes a provider success durable before the wallet is debited, so a
// crash between the two can be finished by the sweeper.
type Record struct {
	ID                int64           `json:"id"`
	BillCode          string          `json:"bill_code"`
	Provider          string          `json:"provider"`
	ProviderReference string          `json:"provider_reference"`
	Amount            decimal.Decimal `json:"amount"`
	Status            Status          `json:"status"`
	Attempts          int             `json:"attempts"`
	LastError         string          `json:"last_error,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	LastAttemptAt     *time.Time      `json:"last_attempt_at,omitempty"`
}

func NewRecord(billCode, provider, providerRef string, amount decimal.Decimal) *Record {
	return &Record{
		BillCode:          billCode,
		Provider:          provider,
		ProviderReference: providerRef,
		Amount:            amount,
		Status:            StatusPending,
		CreatedAt:         time.Now().UTC(),
	}
}

func (r *Record) IncrementAttempts(lastErr string) {
	r.Attempts++
	r.LastError = lastErr
	now := time.Now().UTC()
	r.LastAttemptAt = &now
}

func (r *Record) MarkSettled() {
	r.Status = StatusSettled
	now := time.Now().UTC()
	r.LastAttemptAt = &now
}

func (r *Record) MarkManualReview(reason string) {
	r.Status = StatusManualReview
	r.LastError = reason
	now := time.Now().UTC()
	r.LastAttemptAt = &now
}
