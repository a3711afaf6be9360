package webhook

import (
	"context"
	"time"

	"github.com/ppob-wallet-ledger/internal/domain/shared"
)

// Source of an inbound notification
type Source string

const (
	SourceGateway  Source = "gateway"
	SourceProvider Source = "provider"
)

// Outcome of processing an inbound notification
type Outcome string

const (
	OutcomeReceived  Outcome = "received"
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// Acknowledged reports whether the sender should treat the delivery as handled.
// An unknown target is acknowledged too; retrying it cannot succeed.
func (o Outcome) Acknowledged() bool {
	return o == OutcomeProcessed || o == OutcomeDuplicate || o == OutcomeNotFound
}

// Log is the raw record of a webhook delivery, written before processing.
type Log struct {
	ID          string            `json:"id" bson:"_id"`
	Source      Source            `json:"source" bson:"source"`
	Provider    string            `json:"provider,omitempty" bson:"provider,omitempty"`
	Method      string            `json:"method" bson:"method"`
	Headers     map[string]string `json:"headers" bson:"headers"`
	Body        string            `json:"body" bson:"body"`
	ReceivedAt  time.Time         `json:"received_at" bson:"received_at"`
	Outcome     Outcome           `json:"outcome" bson:"outcome"`
	Detail      string            `json:"detail,omitempty" bson:"detail,omitempty"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty" bson:"processed_at,omitempty"`
}

// LogFilter narrows a webhook log listing. Empty fields match everything.
type LogFilter struct {
	Source  Source
	Outcome Outcome
	Limit   int
	Offset  int
}

// LogRepository manages webhook log persistence with pagination support
type LogRepository interface {
	Create(ctx context.Context, log *Log) error
	UpdateOutcome(ctx context.Context, id string, outcome Outcome, detail string) error
	GetByID(ctx context.Context, id string) (*Log, error)
	List(ctx context.Context, filter LogFilter) ([]*Log, int64, error)
}

// ErrLogNotFound indicates a missing webhook log
type ErrLogNotFound struct {
	ID string
}

func (e ErrLogNotFound) Error() string {
	return "webhook log not found: " + e.ID
}

// Is implements the errors.Is interface for ErrLogNotFound
func (e ErrLogNotFound) Is(target error) bool {
	t, ok := target.(ErrLogNotFound)
	if !ok {
		return false
	}
	return t.ID == "" || e.ID == t.ID
}

func (e ErrLogNotFound) Unwrap() error {
	return shared.ErrNotFound
}
