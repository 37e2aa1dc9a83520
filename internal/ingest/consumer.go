// Package ingest moves transactions through Kafka: a consumer that
// reads raw transaction events from the ingest topic and feeds them to
// the scoring pipeline, and a publisher that writes scored results to
// the scores topic for downstream systems.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/riskline/riskline/internal/event"
	"github.com/riskline/riskline/internal/metrics"
	"github.com/riskline/riskline/internal/traces"
	"github.com/riskline/riskline/internal/validation"
)

// Message is the JSON wire shape of a transaction on the ingest topic.
// It mirrors the POST /v1/score request body so producers can use the
// same payload for both paths.
type Message struct {
	UserID        string  `json:"user_id"`
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
	Timestamp     string  `json:"timestamp,omitempty"`
	Merchant      string  `json:"merchant,omitempty"`
	Location      string  `json:"location,omitempty"`
	PaymentMethod string  `json:"payment_method,omitempty"`
}

// Event validates the message and converts it into an engine event.
// fallback is used when the message carries no timestamp; for Kafka
// records this is the broker record time.
func (m Message) Event(fallback time.Time) (event.Event, error) {
	if err := validation.Validate(
		validation.Required("user_id", m.UserID),
		validation.ValidID("user_id", m.UserID),
		validation.Required("transaction_id", m.TransactionID),
		validation.ValidID("transaction_id", m.TransactionID),
		validation.ValidAmount("amount", m.Amount),
		validation.ValidTimestamp("timestamp", m.Timestamp),
	); err != nil {
		return event.Event{}, err
	}

	ts := fallback
	if m.Timestamp != "" {
		ts, _ = time.Parse(time.RFC3339, m.Timestamp)
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return event.Event{
		UserID:        m.UserID,
		TransactionID: m.TransactionID,
		Amount:        m.Amount,
		Timestamp:     ts,
		Merchant:      validation.SanitizeLabel(m.Merchant),
		Location:      validation.SanitizeLabel(m.Location),
		PaymentMethod: validation.SanitizeLabel(m.PaymentMethod),
	}, nil
}

// Handler processes one decoded transaction event.
type Handler interface {
	HandleTransaction(ctx context.Context, ev event.Event) error
}

// Config for the Kafka consumer.
type Config struct {
	Brokers []string
	Topic   string
	Group   string
}

// Consumer reads transaction messages from Kafka and hands each one to
// the configured Handler. Undecodable and invalid messages are counted
// and dropped rather than blocking the partition.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer creates a consumer in the given group. The Kafka client
// connects lazily, so construction succeeds even if brokers are down.
func NewConsumer(cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("ingest: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("ingest: no topic configured")
	}
	if handler == nil {
		return nil, fmt.Errorf("ingest: nil handler")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumerGroup(cfg.Group),
	)
	if err != nil {
		return nil, fmt.Errorf("ingest: create kafka client: %w", err)
	}

	return &Consumer{
		client:  client,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start begins consuming in a background goroutine.
func (c *Consumer) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.pollLoop(runCtx)
}

// Ping checks broker connectivity for health reporting.
func (c *Consumer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

// Stop cancels the poll loop, waits for the in-flight record to finish
// and closes the Kafka client.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	c.client.Close()
}

func (c *Consumer) pollLoop(ctx context.Context) {
	defer close(c.done)

	c.logger.Info("kafka consumer started")

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			c.logger.Info("kafka consumer stopped")
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("kafka fetch error",
				"topic", topic, "partition", partition, "error", err)
		})
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			for _, record := range p.Records {
				c.handleRecord(ctx, record)
			}
		})
	}
}

func (c *Consumer) handleRecord(ctx context.Context, record *kgo.Record) {
	var msg Message
	if err := json.Unmarshal(record.Value, &msg); err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("decode_error").Inc()
		c.logger.Warn("dropping undecodable message",
			"topic", record.Topic, "partition", record.Partition,
			"offset", record.Offset, "error", err)
		return
	}

	ev, err := msg.Event(record.Timestamp)
	if err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("invalid").Inc()
		c.logger.Warn("dropping invalid message",
			"topic", record.Topic, "offset", record.Offset, "error", err)
		return
	}

	ctx, span := traces.StartSpan(ctx, "ingest.transaction",
		traces.UserID(ev.UserID),
		traces.TransactionID(ev.TransactionID),
		traces.Amount(ev.Amount),
		traces.Source("kafka"),
	)
	err = c.handler.HandleTransaction(ctx, ev)
	span.End()

	if err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("handler_error").Inc()
		c.logger.Error("transaction handler failed",
			"user", ev.UserID, "transaction", ev.TransactionID, "error", err)
		return
	}
	metrics.IngestMessagesTotal.WithLabelValues("ok").Inc()
}
