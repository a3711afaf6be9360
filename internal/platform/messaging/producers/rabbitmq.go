package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ppob-wallet-ledger/internal/config"
)

// RabbitMQPublisher publishes JSON messages to a topic exchange.
type RabbitMQPublisher struct {
	logger     *slog.Logger
	conn       *amqp.Connection
	channel    AMQPChannel
	exchange   string
	routingKey string
}

var _ MessagePublisher = (*RabbitMQPublisher)(nil)

func NewRabbitMQPublisher(logger *slog.Logger, cfg config.RabbitMQConfig) (*RabbitMQPublisher, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Properties: amqp.Table{"connection_name": "ppob-wallet-notifier"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	logger.Info("Connected to RabbitMQ", "exchange", cfg.Exchange)
	return &RabbitMQPublisher{
		logger:     logger.With("component", "rabbitmq_publisher"),
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}, nil
}

// Publish routes value with the configured routing key; key becomes the
// message id.
func (p *RabbitMQPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    key,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		p.logger.Error("Failed to publish message", "exchange", p.exchange, "routing_key", p.routingKey, "error", err)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("Published message", "exchange", p.exchange, "routing_key", p.routingKey, "key", key)
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	var err error
	if p.channel != nil {
		err = p.channel.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close rabbitmq publisher: %w", err)
	}
	return nil
}
