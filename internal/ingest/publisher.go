package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/riskline/riskline/internal/feature"
	"github.com/riskline/riskline/internal/metrics"
)

// ScoredEvent is the record published to the scores topic after each
// transaction is scored.
type ScoredEvent struct {
	UserID        string         `json:"user_id"`
	TransactionID string         `json:"transaction_id"`
	Score         float64        `json:"score"`
	RiskLevel     string         `json:"risk_level"`
	ModelVersion  string         `json:"model_version"`
	Features      feature.Vector `json:"features"`
	ScoredAt      time.Time      `json:"scored_at"`
}

// Publisher writes scored events to Kafka. A nil *Publisher is a valid
// no-op, so callers do not need to guard the disabled case.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a producer for the given scores topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("ingest: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("ingest: no scores topic configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("ingest: create kafka producer: %w", err)
	}

	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

// Publish sends one scored event, keyed by user so downstream consumers
// see each user's scores in order.
func (p *Publisher) Publish(ctx context.Context, se ScoredEvent) error {
	if p == nil {
		return nil
	}

	data, err := json.Marshal(se)
	if err != nil {
		metrics.ScorePublishesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal scored event: %w", err)
	}

	record := &kgo.Record{
		Topic:     p.topic,
		Key:       []byte(se.UserID),
		Value:     data,
		Timestamp: se.ScoredAt,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		metrics.ScorePublishesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("produce scored event: %w", err)
	}

	metrics.ScorePublishesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Close flushes and closes the underlying Kafka client.
func (p *Publisher) Close() {
	if p != nil {
		p.client.Close()
	}
}
