// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Configuration constants for chat completion endpoints.
const (
	// DefaultBaseURL is the base URL used when none is configured.
	DefaultBaseURL = "https://api.openai.com/v1"

	// MaxErrorBodySize caps how much of a failure response is read.
	MaxErrorBodySize = 64 * 1024

	// userAgent identifies the client to the completion server.
	userAgent = "mdnote/0.1.0"
)

// sharedStreamingClient is used for every streaming request. It has no overall
// timeout; a request lives until its context is canceled or the body ends.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// =============================================================================
// ERRORS
// =============================================================================

// Error variables for common completion failures.
var (
	// ErrTransport wraps network, connect and read failures.
	ErrTransport = errors.New("transport failure")

	// ErrStreamUnavailable indicates a response arrived without a readable body.
	ErrStreamUnavailable = errors.New("response stream unavailable")

	// ErrAuthFailed indicates authentication failed (missing, invalid or expired API key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")
)

// HTTPError is returned when the completion server answers with a
// non-success status. Body holds the raw (size-limited) response body.
type HTTPError struct {
	Status  int
	Body    string
	Message string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("HTTP error! status: %d: %s", e.Status, msg)
}

// Is maps well-known statuses onto the package sentinels.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return e.Status == http.StatusUnauthorized
	case ErrModelNotFound:
		return e.Status == http.StatusNotFound
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// apiErrorResponse is the OpenAI-style error envelope.
type apiErrorResponse struct {
	Error struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// newHTTPError builds an HTTPError, pulling the message out of the error
// envelope when the body is parseable.
func newHTTPError(status int, body []byte) *HTTPError {
	e := &HTTPError{
		Status: status,
		Body:   string(body),
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		e.Message = apiErr.Error.Message
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatMessage represents a single message in a chat request.
type ChatMessage struct {
	Role    string `json:"role"`    // "system", "user" or "assistant"
	Content string `json:"content"` // The message content
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// ChatRequest represents a request to the chat completions endpoint.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client issues chat completion requests against one base URL.
// A Client holds no per-request state and is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for baseURL. An empty apiKey is allowed; the
// request is still sent and the server decides.
func NewClient(baseURL, apiKey string) *Client {
	c := &Client{
		apiKey:     apiKey,
		httpClient: sharedStreamingClient,
		logger:     slog.Default(),
	}
	return c.WithBaseURL(baseURL)
}

// WithBaseURL sets the base URL. An empty value selects DefaultBaseURL.
func (c *Client) WithBaseURL(url string) *Client {
	if strings.TrimSpace(url) == "" {
		url = DefaultBaseURL
	}
	c.baseURL = strings.TrimSuffix(strings.TrimSpace(url), "/")
	return c
}

// WithHTTPClient replaces the shared streaming client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.httpClient = h
	}
	return c
}

// WithLogger sets the logger used for request diagnostics.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsConfigured returns true if an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// APIKeyMasked returns the API key with everything but its last four
// characters hidden.
func (c *Client) APIKeyMasked() string {
	return MaskKey(c.apiKey)
}

// MaskKey hides all but the last four characters of key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// setHeaders sets the common headers on a completion request.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", userAgent)
}

// OpenStream sends req with stream enabled and returns the response body.
// The caller must close the body; canceling ctx also releases it.
func (c *Client) OpenStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	req.Stream = true

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	c.logger.Debug("opening completion stream",
		"url", httpReq.URL.Redacted(),
		"model", req.Model,
		"messages", len(req.Messages),
		"key", c.APIKeyMasked())

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	c.logger.Debug("completion stream opened", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return nil, newHTTPError(resp.StatusCode, body)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, ErrStreamUnavailable)
	}

	return resp.Body, nil
}
