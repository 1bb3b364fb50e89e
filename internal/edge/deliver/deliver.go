// Package deliver moves one sanitized schedule payload from the edge
// agent to the remote intake endpoint. Payloads are JSON-encoded,
// gzip-compressed, and sent with bounded retries and exponential backoff.
package deliver

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Default retry policy. All values are overridable through Config.
const (
	DefaultMaxAttempts    = 3
	DefaultBackoffFloor   = 4 * time.Second
	DefaultBackoffCap     = 60 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Config holds the delivery endpoint, credential, and retry bounds.
type Config struct {
	IntakeURL      string
	APIKey         string
	MaxAttempts    int
	BackoffFloor   time.Duration
	BackoffCap     time.Duration
	RequestTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffFloor <= 0 {
		c.BackoffFloor = DefaultBackoffFloor
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// DeliveryError reports a failed delivery. Retryable distinguishes
// transport/5xx causes from terminal 4xx rejections; Attempts counts how
// many requests were actually made.
type DeliveryError struct {
	StatusCode int
	Attempts   int
	Retryable  bool
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery failed after %d attempt(s): %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("delivery failed after %d attempt(s): status %d", e.Attempts, e.StatusCode)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Ack is the intake endpoint's acknowledgement body.
type Ack struct {
	Status   string `json:"status"`
	HuddleID string `json:"huddle_id,omitempty"`
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger attaches a logger for per-attempt diagnostics.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(cl *Client) { cl.logger = l }
}

// Client delivers sanitized payloads to the remote intake. It owns the
// payload bytes only for the duration of one Deliver call; persisting a
// payload that exhausted its retries is the caller's decision.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a delivery client with the configured retry bounds.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	cfg.applyDefaults()
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Deliver encodes, compresses, and uploads one payload. Transport errors
// and 5xx responses are retried up to the attempt budget with exponential
// backoff; 4xx responses fail immediately. Backoff sleeps abort when ctx
// is cancelled.
func (c *Client) Deliver(ctx context.Context, payload any) (*Ack, error) {
	body, err := compressJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	var last *DeliveryError
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.backoff(attempt-1)); err != nil {
				last.Attempts = attempt - 1
				return nil, last
			}
		}

		ack, derr := c.attempt(ctx, body)
		if derr == nil {
			return ack, nil
		}
		derr.Attempts = attempt
		c.logger.Warn().
			Int("attempt", attempt).
			Int("status", derr.StatusCode).
			Bool("retryable", derr.Retryable).
			Msg("delivery attempt failed")
		if !derr.Retryable {
			return nil, derr
		}
		last = derr
	}
	return nil, last
}

// attempt performs a single upload bounded by the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, body []byte) (*Ack, *DeliveryError) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.IntakeURL, bytes.NewReader(body))
	if err != nil {
		return nil, &DeliveryError{Retryable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DeliveryError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var ack Ack
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&ack); err != nil {
			// A 2xx with an unreadable body still counts as delivered.
			return &Ack{Status: "accepted"}, nil
		}
		return &ack, nil
	case resp.StatusCode >= 500:
		return nil, &DeliveryError{StatusCode: resp.StatusCode, Retryable: true}
	default:
		return nil, &DeliveryError{StatusCode: resp.StatusCode, Retryable: false}
	}
}

// backoff returns the delay before the given retry (1-based), doubling
// from the floor up to the cap with ±10% jitter.
func (c *Client) backoff(retry int) time.Duration {
	d := c.cfg.BackoffFloor << (retry - 1)
	if d > c.cfg.BackoffCap || d <= 0 {
		d = c.cfg.BackoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d)/5+1)) - d/10
	return d + jitter
}

// sleep waits for d or until ctx is cancelled.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func compressJSON(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
