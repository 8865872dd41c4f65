package tsunagi

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

	"github.com/google/uuid"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The default has a 30-second
// timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// Client is an HTTP client for the tsunagi function API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	apiKey  string
	token   string
}

// NewClient creates a Client for the server at baseURL
// (e.g. "http://localhost:8080").
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("tsunagi: baseURL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("tsunagi: invalid baseURL: %w", err)
	}
	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// Invoke runs function with the given task and event parameters and returns
// the resulting event scope. A failure the function reported is not an
// error here; check Response.Err.
func (c *Client) Invoke(ctx context.Context, function string, task, event []Param) (*Response, error) {
	body := payload{}
	if len(task) > 0 {
		body.TaskParameters = &paramList{Parameters: task}
	}
	if len(event) > 0 {
		body.EventParameters = &paramList{Parameters: event}
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("tsunagi: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/functions/"+url.PathEscape(function), bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("tsunagi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}
	resp := &Response{}
	if err := json.Unmarshal(data, resp); err != nil {
		return nil, fmt.Errorf("tsunagi: decode response: %w", err)
	}
	resp.function = function
	return resp, nil
}

// Functions lists the functions the caller may invoke.
func (c *Client) Functions(ctx context.Context) ([]FunctionInfo, error) {
	var out []FunctionInfo
	if err := c.get(ctx, "/v1/functions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health returns the server's health report. An unhealthy server yields a
// 503 *Error.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.get(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("tsunagi: create request: %w", err)
	}
	data, err := c.do(req)
	if err != nil {
		return err
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("tsunagi: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return json.Unmarshal(data, dest)
	}
	return json.Unmarshal(envelope.Data, dest)
}

// do sends req with credentials and a request ID and returns the body of a
// successful response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tsunagi: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tsunagi: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, data)
	}
	return data, nil
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}
	return apiErr
}
