// Package mongo stores raw webhook deliveries in MongoDB. Payloads are kept
// verbatim so a delivery can be inspected or replayed after a failure.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ppob-wallet-ledger/internal/domain/webhook"
)

const (
	// WebhookLogCollectionName is the name of the webhook log collection in MongoDB
	WebhookLogCollectionName = "webhook_logs"

	defaultPageSize = 20
)

// WebhookLogRepository implements the webhook.LogRepository interface for MongoDB
type WebhookLogRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewWebhookLogRepository creates a new MongoDB webhook log repository
func NewWebhookLogRepository(logger *slog.Logger, db *mongo.Database) webhook.LogRepository {
	return &WebhookLogRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a delivery as received. An empty ID is filled with a ULID so
// logs sort by arrival.
func (r *WebhookLogRepository) Create(ctx context.Context, log *webhook.Log) error {
	if log.ID == "" {
		log.ID = ulid.Make().String()
	}
	if log.ReceivedAt.IsZero() {
		log.ReceivedAt = time.Now().UTC()
	}
	if log.Outcome == "" {
		log.Outcome = webhook.OutcomeReceived
	}

	_, err := r.db.Collection(WebhookLogCollectionName).InsertOne(ctx, log)
	if err != nil {
		r.logger.Error("Failed to store webhook log",
			"id", log.ID,
			"source", string(log.Source),
			"error", err)
		return fmt.Errorf("failed to store webhook log: %w", err)
	}

	return nil
}

// UpdateOutcome records how the delivery was handled.
func (r *WebhookLogRepository) UpdateOutcome(ctx context.Context, id string, outcome webhook.Outcome, detail string) error {
	filter := bson.M{"_id": id}
	update := bson.M{
		"$set": bson.M{
			"outcome":      outcome,
			"detail":       detail,
			"processed_at": time.Now().UTC(),
		},
	}

	result, err := r.db.Collection(WebhookLogCollectionName).UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to update webhook log outcome",
			"id", id,
			"outcome", string(outcome),
			"error", err)
		return fmt.Errorf("failed to update webhook log outcome: %w", err)
	}

	if result.MatchedCount == 0 {
		return webhook.ErrLogNotFound{ID: id}
	}

	return nil
}

func (r *WebhookLogRepository) GetByID(ctx context.Context, id string) (*webhook.Log, error) {
	var log webhook.Log
	err := r.db.Collection(WebhookLogCollectionName).FindOne(ctx, bson.M{"_id": id}).Decode(&log)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, webhook.ErrLogNotFound{ID: id}
		}
		r.logger.Error("Failed to get webhook log", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get webhook log: %w", err)
	}

	return &log, nil
}

// List returns one page of logs, newest first, with the total match count.
func (r *WebhookLogRepository) List(ctx context.Context, f webhook.LogFilter) ([]*webhook.Log, int64, error) {
	collection := r.db.Collection(WebhookLogCollectionName)

	filter := bson.M{}
	if f.Source != "" {
		filter["source"] = f.Source
	}
	if f.Outcome != "" {
		filter["outcome"] = f.Outcome
	}

	total, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to count webhook logs", "error", err)
		return nil, 0, fmt.Errorf("failed to count webhook logs: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	opts := options.Find().
		SetSort(bson.M{"received_at": -1}).
		SetSkip(int64(f.Offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list webhook logs", "error", err)
		return nil, 0, fmt.Errorf("failed to list webhook logs: %w", err)
	}
	defer cursor.Close(ctx)

	var logs []*webhook.Log
	if err := cursor.All(ctx, &logs); err != nil {
		r.logger.Error("Failed to decode webhook logs", "error", err)
		return nil, 0, fmt.Errorf("failed to decode webhook logs: %w", err)
	}

	return logs, total, nil
}
