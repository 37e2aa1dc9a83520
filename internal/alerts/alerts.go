// Package alerts delivers high-risk score notifications to an external
// webhook endpoint.
//
// Delivery is fire-and-forget from the caller's point of view: failures
// are retried with backoff, then logged and counted, never surfaced to
// the scoring path. A circuit breaker stops hammering a dead endpoint.
package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/riskline/riskline/internal/circuitbreaker"
	"github.com/riskline/riskline/internal/feature"
	"github.com/riskline/riskline/internal/idgen"
	"github.com/riskline/riskline/internal/metrics"
	"github.com/riskline/riskline/internal/retry"
	"github.com/riskline/riskline/internal/security"
	"github.com/riskline/riskline/internal/syncutil"
)

// EventHighRisk is the event type header value for threshold alerts.
const EventHighRisk = "score.high_risk"

// deliverTimeout bounds one delivery including all retry attempts.
const deliverTimeout = 30 * time.Second

// Alert is the payload POSTed to the configured webhook.
type Alert struct {
	ID            string         `json:"id"`
	Event         string         `json:"event"`
	UserID        string         `json:"user_id"`
	TransactionID string         `json:"transaction_id"`
	Score         float64        `json:"score"`
	ModelVersion  string         `json:"model_version"`
	Features      feature.Vector `json:"features"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Config configures the notifier.
type Config struct {
	// URL is the webhook endpoint. Required.
	URL string
	// Secret, when set, is used to HMAC-sign each payload.
	Secret string
	// Threshold is the minimum score that fires an alert.
	Threshold float64
	// ModelVersion is stamped into each alert payload.
	ModelVersion string
	// AllowLoopback permits loopback endpoints (development only).
	AllowLoopback bool

	// MaxAttempts and RetryDelay tune delivery retries. Zero values
	// fall back to 3 attempts starting at 500ms.
	MaxAttempts int
	RetryDelay  time.Duration

	// BreakerThreshold and BreakerOpenFor tune the circuit breaker.
	// Zero values fall back to the breaker defaults.
	BreakerThreshold int
	BreakerOpenFor   time.Duration
}

// Notifier posts alerts for scores at or above the configured threshold.
// A nil *Notifier is valid and does nothing, so callers need no guard
// when alerting is disabled.
type Notifier struct {
	cfg     Config
	client  *http.Client
	breaker *circuitbreaker.Breaker
	locks   *syncutil.KeyedContextMutex
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New creates a notifier for the given webhook endpoint. The endpoint is
// validated against SSRF targets up front so a bad config fails at startup
// rather than on the first high-risk transaction.
func New(cfg Config, logger *slog.Logger) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("alert webhook URL is required")
	}
	if err := security.ValidateWebhookURL(cfg.URL, cfg.AllowLoopback); err != nil {
		return nil, fmt.Errorf("alert webhook URL: %w", err)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	n := &Notifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerOpenFor),
		locks:   syncutil.NewKeyedContextMutex(),
		logger:  logger,
	}
	n.breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		logger.Warn("alert webhook circuit state changed",
			"endpoint", key, "from", from.String(), "to", to.String())
	})
	return n, nil
}

// Threshold returns the score at or above which alerts fire.
func (n *Notifier) Threshold() float64 {
	if n == nil {
		return 0
	}
	return n.cfg.Threshold
}

// Notify fires an alert if the score clears the threshold. Delivery runs
// in the background; this never blocks the scoring path.
func (n *Notifier) Notify(userID, transactionID string, score float64, features feature.Vector) {
	if n == nil || score < n.cfg.Threshold {
		return
	}

	alert := &Alert{
		ID:            idgen.WithPrefix("alert_"),
		Event:         EventHighRisk,
		UserID:        userID,
		TransactionID: transactionID,
		Score:         score,
		ModelVersion:  n.cfg.ModelVersion,
		Features:      features,
		Timestamp:     time.Now().UTC(),
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(alert)
	}()
}

// Drain waits for in-flight deliveries to finish or ctx to expire.
func (n *Notifier) Drain(ctx context.Context) error {
	if n == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver posts one alert, serialized per endpoint so bursts of alerts
// arrive in order rather than racing each other.
func (n *Notifier) deliver(alert *Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	unlock, err := n.locks.Lock(ctx, n.cfg.URL)
	if err != nil {
		metrics.AlertDeliveriesTotal.WithLabelValues("dropped").Inc()
		n.logger.Warn("alert dropped waiting for endpoint", "alert", alert.ID, "error", err)
		return
	}
	defer unlock()

	if !n.breaker.Allow(n.cfg.URL) {
		metrics.AlertDeliveriesTotal.WithLabelValues("breaker_open").Inc()
		n.logger.Warn("alert skipped, circuit open", "alert", alert.ID, "user", alert.UserID)
		return
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		metrics.AlertDeliveriesTotal.WithLabelValues("error").Inc()
		n.logger.Error("alert marshal failed", "alert", alert.ID, "error", err)
		return
	}

	err = retry.Do(ctx, n.cfg.MaxAttempts, n.cfg.RetryDelay, func() error {
		return n.post(ctx, alert, payload)
	})
	if err != nil {
		n.breaker.RecordFailure(n.cfg.URL)
		metrics.AlertDeliveriesTotal.WithLabelValues("error").Inc()
		n.logger.Warn("alert delivery failed",
			"alert", alert.ID, "user", alert.UserID, "score", alert.Score, "error", err)
		return
	}

	n.breaker.RecordSuccess(n.cfg.URL)
	metrics.AlertDeliveriesTotal.WithLabelValues("success").Inc()
	n.logger.Info("alert delivered",
		"alert", alert.ID, "user", alert.UserID, "score", alert.Score)
}

func (n *Notifier) post(ctx context.Context, alert *Alert, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Riskline-Event", alert.Event)
	req.Header.Set("X-Riskline-Timestamp", fmt.Sprintf("%d", alert.Timestamp.Unix()))
	if n.cfg.Secret != "" {
		req.Header.Set("X-Riskline-Signature", Sign(payload, n.cfg.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return fmt.Errorf("status %d", resp.StatusCode)
	default:
		// Other 4xx means the receiver rejected the payload; retrying
		// the same bytes cannot succeed.
		return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}
}

// Sign computes the hex HMAC-SHA256 of payload. Receivers verify the
// X-Riskline-Signature header with the shared secret.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
