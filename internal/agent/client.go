// ABOUTME: HTTP client for the agent processor service.
// ABOUTME: Stateless request/response; transport failures and non-2xx statuses are errors.

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client talks to the agent processor over HTTP.
type Client struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(a *Client) { a.client = c }
}

// WithTimeout sets the per-request timeout on the HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(a *Client) {
		if d > 0 {
			a.client.Timeout = d
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(a *Client) { a.logger = l.With("component", "agent") }
}

// NewClient creates a client for the agent processor at url.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:    url,
		client: &http.Client{Timeout: 120 * time.Second},
		logger: slog.Default().With("component", "agent"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate sends the message history to the agent processor and returns its
// response. A response with Success=false is returned as a value, not an
// error; the caller decides how to surface it.
func (c *Client) Generate(ctx context.Context, req *Request) (*Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding agent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("calling agent processor",
		"messages", len(req.Messages),
		"conversation_id", req.ConversationID)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agent transport: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("agent returned status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body)))
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding agent response: %w", err)
	}
	return &resp, nil
}
