package riskclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client wraps http.Client with typed riskline API calls and automatic
// retry when the server throttles.
type Client struct {
	httpClient *http.Client
	baseURL    string

	// Configuration
	MaxRetries int           // Max retries after throttling (default: 2)
	RetryWait  time.Duration // Wait when the server names none (default: 1s)
	AutoRetry  bool          // Automatically retry 429s (default: true)

	// Hooks
	OnThrottle func(wait time.Duration) // Called before each retry wait
}

// NewClient creates a riskline API client for the given base URL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		MaxRetries: 2,
		RetryWait:  time.Second,
		AutoRetry:  true,
	}
}

// Score submits one transaction and returns the fraud risk verdict.
func (c *Client) Score(ctx context.Context, tx Transaction) (*ScoreResult, error) {
	if tx.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	var result ScoreResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/score", tx, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Features fetches the live feature vector for a user. Users the server
// has never seen, or has already reclaimed, yield an *Error with code
// "unknown_user".
func (c *Client) Features(ctx context.Context, userID string) (*UserFeatures, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}

	var features UserFeatures
	path := "/v1/users/" + url.PathEscape(userID) + "/features"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &features); err != nil {
		return nil, err
	}
	return &features, nil
}

// Users lists tracked users one page at a time. A zero limit uses the
// server default; cursor comes from the previous page's NextCursor.
func (c *Client) Users(ctx context.Context, limit int, cursor string) (*UsersPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	path := "/v1/users"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page UsersPage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Stats fetches engine-wide counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.doJSON(ctx, http.MethodGet, "/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health fetches the server health report. A degraded server answers 503
// but still returns a report, so both 200 and 503 decode successfully;
// inspect Health.Status to tell them apart.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, ParseError(resp)
	}

	var health Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health report: %w", err)
	}
	return &health, nil
}

// doJSON performs one API call, transparently waiting out throttled
// responses up to MaxRetries times.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, noNilBody(reader))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		// Anything but a throttle is final, as is the last attempt: the
		// 429 then surfaces as a typed *Error like any other API error.
		if !IsThrottled(resp) || !c.AutoRetry || attempt >= c.MaxRetries {
			return c.finish(resp, out)
		}

		wait, ok := ThrottleDelay(resp)
		_ = resp.Body.Close()
		if !ok {
			wait = c.RetryWait
		}
		if c.OnThrottle != nil {
			c.OnThrottle(wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) finish(resp *http.Response, out interface{}) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ParseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// noNilBody keeps a nil *bytes.Reader from becoming a non-nil io.Reader
// interface, which would make net/http send a chunked empty body.
func noNilBody(r *bytes.Reader) io.Reader {
	if r == nil {
		return nil
	}
	return r
}
