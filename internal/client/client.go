// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jeranaias/docchat/internal/util"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error talking to the proxy.
type ClientError struct {
	Type    ErrorType
	Message string

	// StatusCode is set for ErrTypeBackendStatus.
	StatusCode int
	Cause      error
}

func (e *ClientError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeBackendStatus
	ErrTypeInvalidResponse
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeBackendStatus:
		return "backend_status"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// ErrConnection is the sentinel for an unreachable proxy.
var ErrConnection = &ClientError{Type: ErrTypeConnection, Message: "proxy is not reachable"}

// Is lets errors.Is(err, ErrConnection) match any connection failure.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	return ok && t == ErrConnection && e.Type == ErrTypeConnection
}

// IsConnection reports whether err means the proxy could not be reached.
func IsConnection(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeConnection
	}
	return false
}

// IsBackendStatus reports whether err is a non-2xx answer.
func IsBackendStatus(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeBackendStatus
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.StatusCode
	}
	return 0
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the proxy client.
type ClientConfig struct {
	// BaseURL is the proxy base URL (default: http://127.0.0.1:3000)
	BaseURL string

	// ConnectTimeout bounds dialing the proxy (default: 5s)
	ConnectTimeout time.Duration

	// RequestTimeout bounds non-streaming calls such as uploads (default: 5m).
	// Streamed queries are bounded by the caller's context instead.
	RequestTimeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:        "http://127.0.0.1:3000",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 5 * time.Minute,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the proxy.
//
// The Client is safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a client with custom configuration. Zero
// values are filled from DefaultConfig.
func NewClientWithConfig(config *ClientConfig) *Client {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	// No client-wide Timeout: it would cut long answers off mid-stream.
	return &Client{
		config:     &cfg,
		httpClient: &http.Client{Transport: transport},
	}
}

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}

func (c *Client) endpoint(path string) (string, error) {
	u, err := util.JoinURL(c.config.BaseURL, path)
	if err != nil {
		return "", &ClientError{Type: ErrTypeConnection, Message: "invalid proxy url", Cause: err}
	}
	return u, nil
}

// =============================================================================
// QUERY
// =============================================================================

type queryRequest struct {
	Query string `json:"query"`
}

// Query posts a question and returns the streamed answer body. The caller
// must close it. Cancelling ctx aborts the stream and releases the
// connection.
func (c *Client) Query(ctx context.Context, text string) (io.ReadCloser, error) {
	url, err := c.endpoint("api/query")
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(queryRequest{Query: text})
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "query request failed", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	return resp.Body, nil
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// Health reports whether the proxy answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	url, err := c.endpoint("health")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "health check failed", Cause: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// statusError turns a non-2xx response into a ClientError carrying the
// server's own message when it sent one.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := util.ErrorMessage(raw)
	if msg == "" {
		msg = "request failed: " + resp.Status
	}
	return &ClientError{Type: ErrTypeBackendStatus, Message: msg, StatusCode: resp.StatusCode}
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(r, 64<<10))
	r.Close()
}
