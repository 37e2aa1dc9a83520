// Package riskclient implements a typed Go client for the riskline
// scoring API. It is the foundation for integrating riskline into
// payment pipelines without hand-rolling HTTP calls.
package riskclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Transaction is the request payload for POST /v1/score. TransactionID is
// optional; the server mints one when it is empty. Timestamp is RFC3339 and
// defaults to the server's receive time.
type Transaction struct {
	UserID        string  `json:"user_id"`
	TransactionID string  `json:"transaction_id,omitempty"`
	Amount        float64 `json:"amount"`
	Timestamp     string  `json:"timestamp,omitempty"`
	Merchant      string  `json:"merchant,omitempty"`
	Location      string  `json:"location,omitempty"`
	PaymentMethod string  `json:"payment_method,omitempty"`
}

// ScoreResult is the server's verdict on a single transaction. RiskLevel
// is a coarse triage band derived from Score: "low", "medium" or "high".
type ScoreResult struct {
	UserID           string             `json:"user_id"`
	TransactionID    string             `json:"transaction_id"`
	Score            float64            `json:"score"`
	RiskLevel        string             `json:"risk_level"`
	Features         map[string]float64 `json:"features"`
	ModelVersion     string             `json:"model_version"`
	ProcessingTimeMS float64            `json:"processing_time_ms"`
}

// UserFeatures is the live feature vector for one user.
type UserFeatures struct {
	UserID    string             `json:"user_id"`
	Features  map[string]float64 `json:"features"`
	Timestamp string             `json:"timestamp"`
}

// UserSummary describes one tracked user in a listing.
type UserSummary struct {
	UserID          string `json:"user_id"`
	FirstSeen       string `json:"first_seen"`
	LastSeen        string `json:"last_seen"`
	BufferedSamples int    `json:"buffered_samples"`
}

// UsersPage is one page of tracked users. Pass NextCursor back to Users to
// fetch the next page while HasMore is true.
type UsersPage struct {
	Users      []UserSummary `json:"users"`
	Count      int           `json:"count"`
	HasMore    bool          `json:"has_more"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// Stats mirrors GET /v1/stats.
type Stats struct {
	Users         int            `json:"users"`
	Buffered      map[string]int `json:"buffered"`
	Ingested      int64          `json:"ingested"`
	Created       int64          `json:"created"`
	Reclaimed     int64          `json:"reclaimed"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	LastSweep     string         `json:"last_sweep,omitempty"`
}

// Check is one dependency check inside a health report.
type Check struct {
	Name      string  `json:"name"`
	Healthy   bool    `json:"healthy"`
	Detail    string  `json:"detail,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// Health mirrors GET /health.
type Health struct {
	Status    string  `json:"status"`
	Version   string  `json:"version"`
	Checks    []Check `json:"checks,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// Error is a riskline API error response.
type Error struct {
	Code       string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsThrottled checks if an HTTP response is a 429 Too Many Requests.
func IsThrottled(resp *http.Response) bool {
	return resp.StatusCode == http.StatusTooManyRequests
}

// ThrottleDelay extracts the server-requested wait from a 429 response. It
// prefers the Retry-After header and falls back to the retry_after field in
// the JSON body. The body is consumed. The second return is false when the
// response names no wait at all.
func ThrottleDelay(resp *http.Response) (time.Duration, bool) {
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second, true
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, false
	}

	var payload struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.RetryAfter <= 0 {
		return 0, false
	}
	return time.Duration(payload.RetryAfter * float64(time.Second)), true
}

// ParseError turns a non-2xx response into an *Error. The body is consumed.
// Responses that don't carry the API error shape still produce a usable
// error with a synthetic code.
func ParseError(resp *http.Response) *Error {
	apiErr := &Error{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(resp.Body)
	if err == nil && len(body) > 0 {
		_ = json.Unmarshal(body, apiErr)
	}
	if apiErr.Code == "" {
		apiErr.Code = fmt.Sprintf("http_%d", resp.StatusCode)
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
