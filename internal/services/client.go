package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

// DefaultTimeout is the per-call timeout when none is configured
const DefaultTimeout = 30 * time.Second

// StatusError is returned when a service answers with a non-success status
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Client sends JSON requests to one downstream service.
// It is stateless apart from its configuration and safe for concurrent use.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-call timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent sent on every call
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a client for the service rooted at baseURL
func NewClient(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		userAgent:  "roast-pipeline",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the service name used in logs, metrics and health verdicts
func (c *Client) Name() string {
	return c.name
}

// PostJSON performs a single POST round trip and decodes the response into out.
// The per-call timeout bounds the whole exchange, including reading the body.
// There are no retries.
func (c *Client) PostJSON(ctx context.Context, path, requestID string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if requestID != "" {
		req.Header.Set(pipeline.RequestIDHeader, requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Service:    c.name,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.name, err)
	}
	return nil
}

// Ping issues GET /health and succeeds only on 200 OK.
// The caller's context carries the health timeout.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create %s health request: %w", c.name, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s health check failed: %w", c.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Service: c.name, StatusCode: resp.StatusCode}
	}
	return nil
}

// Call performs one POST and resolves every failure to Absent
func Call[T any](ctx context.Context, c *Client, path, requestID string, payload any) Outcome[T] {
	var out T
	if err := c.PostJSON(ctx, path, requestID, payload, &out); err != nil {
		return Absent[T](err)
	}
	return Present(out)
}
