package horde

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultBaseURL is the public AI Horde.
const DefaultBaseURL = "https://aihorde.net"

var validate = validator.New()

// Service is the remote async job API. *Client implements it over HTTP.
type Service interface {
	Submit(ctx context.Context, req JobRequest) (*SubmitResponse, error)
	Check(ctx context.Context, id string) (*JobStatus, error)
	Status(ctx context.Context, id string) (*JobResult, error)
	Cancel(ctx context.Context, id string) (*JobResult, error)
}

// Client talks to the Horde v2 generate endpoints.
type Client struct {
	baseURL     string
	apiKey      string
	clientAgent string
	httpClient  *http.Client

	// Debug callback (optional)
	debugFunc func(format string, args ...any)
}

// ClientConfig holds configuration for the Horde client.
type ClientConfig struct {
	// BaseURL is the Horde base URL (default: https://aihorde.net)
	BaseURL string

	// APIKey is sent in the apikey header
	APIKey string

	// ClientAgent is sent in the Client-Agent header (name:version:contact)
	ClientAgent string

	// Timeout is the per-request HTTP timeout (default: 60s)
	Timeout time.Duration

	// HTTPClient overrides the default client; Timeout is ignored when set
	HTTPClient *http.Client

	// DebugFunc is an optional callback for debug logging
	DebugFunc func(format string, args ...any)
}

// NewClient creates a new Horde client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		clientAgent: cfg.ClientAgent,
		httpClient:  httpClient,
		debugFunc:   cfg.DebugFunc,
	}
}

func (c *Client) debug(format string, args ...any) {
	if c.debugFunc != nil {
		c.debugFunc(format, args...)
	}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit posts a generation request to /api/v2/generate/async.
func (c *Client) Submit(ctx context.Context, jr JobRequest) (*SubmitResponse, error) {
	body, err := json.Marshal(jr)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	path := "/api/v2/generate/async"
	data, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var resp SubmitResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	resp.Raw = strings.TrimSpace(string(data))
	c.debug("submit response: %s", resp.Raw)
	return &resp, nil
}

// Check fetches the lightweight progress snapshot for a job.
func (c *Client) Check(ctx context.Context, id string) (*JobStatus, error) {
	if id == "" {
		return nil, ErrMissingJobID
	}
	path := "/api/v2/generate/check/" + url.PathEscape(id)
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var wire statusWire
	if err := decodeValid(data, &wire); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return wire.status(), nil
}

// Status fetches the final result of a job.
func (c *Client) Status(ctx context.Context, id string) (*JobResult, error) {
	return c.result(ctx, http.MethodGet, id)
}

// Cancel deletes a job. The reply has the same shape as Status and holds
// whatever generations finished before the cancellation.
func (c *Client) Cancel(ctx context.Context, id string) (*JobResult, error) {
	return c.result(ctx, http.MethodDelete, id)
}

func (c *Client) result(ctx context.Context, method, id string) (*JobResult, error) {
	if id == "" {
		return nil, ErrMissingJobID
	}
	path := "/api/v2/generate/status/" + url.PathEscape(id)
	data, err := c.do(ctx, method, path, nil)
	if err != nil {
		return nil, err
	}

	var wire resultWire
	if err := decodeValid(data, &wire); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return wire.result(), nil
}

// do executes one request. Transport failures come back as *ConnectionError,
// non-2xx responses as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if c.clientAgent != "" {
		req.Header.Set("Client-Agent", c.clientAgent)
	}

	c.debug("%s %s", method, path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Op: "read " + path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	return data, nil
}

func decodeValid(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	return validate.Struct(v)
}
