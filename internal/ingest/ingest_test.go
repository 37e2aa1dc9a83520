package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/riskline/riskline/internal/event"
	"github.com/riskline/riskline/internal/feature"
	"github.com/riskline/riskline/internal/validation"
)

type nopHandler struct{}

func (nopHandler) HandleTransaction(context.Context, event.Event) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMessageEvent(t *testing.T) {
	msg := Message{
		UserID:        "user_1",
		TransactionID: "txn_1",
		Amount:        42.50,
		Timestamp:     "2026-03-01T12:30:00Z",
		Merchant:      "acme",
		Location:      "US-NY",
		PaymentMethod: "card",
	}

	ev, err := msg.Event(time.Now())
	if err != nil {
		t.Fatalf("Event() error: %v", err)
	}
	if ev.UserID != "user_1" || ev.TransactionID != "txn_1" {
		t.Errorf("IDs not carried: %+v", ev)
	}
	if ev.Amount != 42.50 {
		t.Errorf("Amount = %v, want 42.50", ev.Amount)
	}
	want := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, want)
	}
	if ev.Merchant != "acme" || ev.Location != "US-NY" || ev.PaymentMethod != "card" {
		t.Errorf("labels not carried: %+v", ev)
	}
}

func TestMessageEventFallbackTimestamp(t *testing.T) {
	recordTime := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	msg := Message{UserID: "user_1", TransactionID: "txn_1", Amount: 5}

	ev, err := msg.Event(recordTime)
	if err != nil {
		t.Fatalf("Event() error: %v", err)
	}
	if !ev.Timestamp.Equal(recordTime) {
		t.Errorf("Timestamp = %v, want record time %v", ev.Timestamp, recordTime)
	}
}

func TestMessageEventZeroFallback(t *testing.T) {
	msg := Message{UserID: "user_1", TransactionID: "txn_1", Amount: 5}

	ev, err := msg.Event(time.Time{})
	if err != nil {
		t.Fatalf("Event() error: %v", err)
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("Timestamp should default to now, got zero")
	}
	if d := time.Since(ev.Timestamp); d < 0 || d > 5*time.Second {
		t.Errorf("Timestamp not near now: %v", ev.Timestamp)
	}
}

func TestMessageEventInvalid(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"missing user", Message{TransactionID: "txn_1", Amount: 1}},
		{"bad user id", Message{UserID: "user 1", TransactionID: "txn_1", Amount: 1}},
		{"missing transaction", Message{UserID: "user_1", Amount: 1}},
		{"negative amount", Message{UserID: "user_1", TransactionID: "txn_1", Amount: -1}},
		{"nan amount", Message{UserID: "user_1", TransactionID: "txn_1", Amount: math.NaN()}},
		{"bad timestamp", Message{UserID: "user_1", TransactionID: "txn_1", Amount: 1, Timestamp: "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.msg.Event(time.Now()); err == nil {
				t.Errorf("Event(%+v) should fail", tt.msg)
			}
		})
	}
}

func TestMessageEventSanitizesLabels(t *testing.T) {
	msg := Message{
		UserID:        "user_1",
		TransactionID: "txn_1",
		Amount:        1,
		Merchant:      "ac\x00me",
		Location:      strings.Repeat("x", validation.MaxLabelLength+50),
	}

	ev, err := msg.Event(time.Now())
	if err != nil {
		t.Fatalf("Event() error: %v", err)
	}
	if ev.Merchant != "acme" {
		t.Errorf("Merchant = %q, want null byte stripped", ev.Merchant)
	}
	if len(ev.Location) != validation.MaxLabelLength {
		t.Errorf("Location length = %d, want %d", len(ev.Location), validation.MaxLabelLength)
	}
}

func TestNewConsumerValidation(t *testing.T) {
	valid := Config{Brokers: []string{"127.0.0.1:9092"}, Topic: "transactions", Group: "riskline"}

	if _, err := NewConsumer(Config{Topic: "t", Group: "g"}, nopHandler{}, testLogger()); err == nil {
		t.Error("no brokers should fail")
	}
	if _, err := NewConsumer(Config{Brokers: valid.Brokers, Group: "g"}, nopHandler{}, testLogger()); err == nil {
		t.Error("no topic should fail")
	}
	if _, err := NewConsumer(valid, nil, testLogger()); err == nil {
		t.Error("nil handler should fail")
	}

	c, err := NewConsumer(valid, nopHandler{}, testLogger())
	if err != nil {
		t.Fatalf("NewConsumer() error: %v", err)
	}
	c.Stop()
}

func TestConsumerStartStop(t *testing.T) {
	// Port 1 is never a broker; the client connects lazily so the poll
	// loop just retries until Stop cancels it.
	cfg := Config{Brokers: []string{"127.0.0.1:1"}, Topic: "transactions", Group: "riskline"}
	c, err := NewConsumer(cfg, nopHandler{}, testLogger())
	if err != nil {
		t.Fatalf("NewConsumer() error: %v", err)
	}

	c.Start(context.Background())

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return")
	}
}

func TestNewPublisherValidation(t *testing.T) {
	if _, err := NewPublisher(nil, "scores", testLogger()); err == nil {
		t.Error("no brokers should fail")
	}
	if _, err := NewPublisher([]string{"127.0.0.1:9092"}, "", testLogger()); err == nil {
		t.Error("no topic should fail")
	}

	p, err := NewPublisher([]string{"127.0.0.1:9092"}, "scores", testLogger())
	if err != nil {
		t.Fatalf("NewPublisher() error: %v", err)
	}
	p.Close()
}

func TestNilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	if err := p.Publish(context.Background(), ScoredEvent{UserID: "user_1"}); err != nil {
		t.Errorf("nil publisher Publish() error: %v", err)
	}
	p.Close()
}

func TestScoredEventWireKeys(t *testing.T) {
	se := ScoredEvent{
		UserID:        "user_1",
		TransactionID: "txn_1",
		Score:         0.91,
		RiskLevel:     "high",
		ModelVersion:  "v0",
		Features:      feature.Vector{Velocity: 3},
		ScoredAt:      time.Now().UTC(),
	}

	data, err := json.Marshal(se)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{
		`"user_id"`, `"transaction_id"`, `"score"`, `"risk_level"`,
		`"model_version"`, `"scored_at"`, `"transaction_velocity_1h"`,
	} {
		if !strings.Contains(string(data), key) {
			t.Errorf("scored event JSON missing %s: %s", key, data)
		}
	}
}
