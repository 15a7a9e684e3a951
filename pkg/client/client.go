package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

// APIError is returned when the gateway answers with an error envelope
type APIError struct {
	StatusCode int
	Code       pipeline.ErrorCode
	Detail     string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Code, e.StatusCode, e.Detail)
}

// Client is an HTTP client for the roast gateway
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new roast client
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

// NewWithHTTPClient creates a new roast client with a custom HTTP client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Analyze uploads an image and returns the roast. An empty level lets the
// server apply its default.
func (c *Client) Analyze(ctx context.Context, image io.Reader, fileName string, level pipeline.RoastLevel) (*pipeline.RoastResponse, error) {
	// Build multipart body
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("failed to copy image: %w", err)
	}
	if level != "" {
		if err := mw.WriteField("roast_level", string(level)); err != nil {
			return nil, fmt.Errorf("failed to write roast_level: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	// Create HTTP request
	url := fmt.Sprintf("%s/api/v1/analyze", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var roast pipeline.RoastResponse
	if err := c.do(httpReq, &roast); err != nil {
		return nil, err
	}
	return &roast, nil
}

// Health returns the gateway health report. A degraded gateway is not an error.
func (c *Client) Health(ctx context.Context) (*pipeline.HealthResponse, error) {
	url := fmt.Sprintf("%s/health", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var health pipeline.HealthResponse
	if err := c.do(httpReq, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *Client) do(httpReq *http.Request, out any) error {
	// Execute request
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Check status code
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope pipeline.ErrorResponse
		if err := json.Unmarshal(bodyBytes, &envelope); err == nil && envelope.Status == pipeline.StatusError {
			apiErr.Code = envelope.ErrorCode
			apiErr.Detail = envelope.Detail
		} else {
			apiErr.Detail = strings.TrimSpace(string(bodyBytes))
		}
		return apiErr
	}

	// Parse response
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
