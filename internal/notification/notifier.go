// Package notification delivers user-facing events after ledger commits.
// Delivery is best effort: a failed notification never undoes a transaction.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppob-wallet-ledger/internal/config"
	"github.com/ppob-wallet-ledger/internal/platform/messaging/producers"
)

// Event names
const (
	EventTransferSent     = "transfer.sent"
	EventTransferReceived = "transfer.received"
	EventTopUpSucceeded   = "topup.succeeded"
	EventTopUpRejected    = "topup.rejected"
	EventTopUpFailed      = "topup.failed"
	EventBillPaid         = "bill.paid"
	EventBillFailed       = "bill.failed"
)

// Notification is one message for one user.
type Notification struct {
	UserID      string                 `json:"user_id"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	ChannelHint string                 `json:"channel_hint,omitempty"`
	Event       string                 `json:"event"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Notifier is the delivery capability.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Close() error
}

// Noop drops every notification.
type Noop struct{}

var _ Notifier = Noop{}

func (Noop) Notify(context.Context, Notification) error { return nil }

func (Noop) Close() error { return nil }

// BrokerNotifier hands notifications to a message broker keyed by user.
type BrokerNotifier struct {
	publisher producers.MessagePublisher
}

var _ Notifier = (*BrokerNotifier)(nil)

func NewBrokerNotifier(publisher producers.MessagePublisher) *BrokerNotifier {
	return &BrokerNotifier{publisher: publisher}
}

func (b *BrokerNotifier) Notify(ctx context.Context, n Notification) error {
	return b.publisher.Publish(ctx, n.UserID, n)
}

func (b *BrokerNotifier) Close() error {
	return b.publisher.Close()
}

// NewNotifier builds the notifier named by NOTIFIER_DRIVER.
func NewNotifier(cfg *config.Config, logger *slog.Logger) (Notifier, error) {
	switch cfg.Notifier.Driver {
	case "", "noop":
		logger.Info("Notifications disabled")
		return Noop{}, nil
	case "kafka":
		p, err := producers.NewNotificationProducer(logger, cfg.Kafka)
		if err != nil {
			return nil, err
		}
		return NewBrokerNotifier(p), nil
	case "rabbitmq":
		p, err := producers.NewRabbitMQPublisher(logger, cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return NewBrokerNotifier(p), nil
	default:
		return nil, fmt.Errorf("unknown notifier driver %q", cfg.Notifier.Driver)
	}
}
