package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/ppob-wallet-ledger/internal/config"
)

// Alert kinds
const (
	AlertManualReview = "settlement.manual_review"
)

// Alert asks an operator to reconcile a bill by hand.
type Alert struct {
	Kind      string          `json:"kind"`
	BillCode  string          `json:"bill_code"`
	Provider  string          `json:"provider,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Timestamp time.Time       `json:"timestamp"`
}

// AlertProducer writes settlement alerts to the alert topic.
type AlertProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

var _ AlertPublisher = (*AlertProducer)(nil)

// NewAlertProducer returns nil when no alert topic is configured; alerts are
// then only logged.
func NewAlertProducer(logger *slog.Logger, cfg config.KafkaConfig) (*AlertProducer, error) {
	if cfg.AlertTopic == "" || cfg.Brokers == "" {
		logger.Info("Alert topic is not configured, settlement alerts will only be logged")
		return nil, nil
	}
	if err := dialAndEnsureTopic(cfg.Brokers, cfg.AlertTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure alert topic %s: %w", cfg.AlertTopic, err)
	}

	return &AlertProducer{
		logger: logger.With("component", "alert_producer"),
		writer: newSyncWriter(cfg.Brokers, cfg.AlertTopic, cfg.MaxWait),
		topic:  cfg.AlertTopic,
	}, nil
}

func (p *AlertProducer) PublishAlert(ctx context.Context, alert Alert) error {
	if p == nil || p.writer == nil {
		return fmt.Errorf("alert producer not initialized")
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(alert.BillCode),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "alert-kind", Value: []byte(alert.Kind)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish settlement alert", "topic", p.topic, "bill_code", alert.BillCode, "error", err)
		return fmt.Errorf("failed to publish alert to %s: %w", p.topic, err)
	}

	p.logger.Warn("Published settlement alert", "topic", p.topic, "bill_code", alert.BillCode, "kind", alert.Kind, "reason", alert.Reason)
	return nil
}

func (p *AlertProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.logger.Info("Closing alert producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close alert writer for topic %s: %w", p.topic, err)
	}
	return nil
}
