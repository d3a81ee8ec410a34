// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds each request to the notes server.
const DefaultTimeout = 30 * time.Second

// Error is a non-success response from the notes server.
type Error struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("notes server error (HTTP %d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the notes server.
func IsNotFound(err error) bool {
	var nerr *Error
	return errors.As(err, &nerr) && nerr.Status == http.StatusNotFound
}

type contentResponse struct {
	Content string `json:"content"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client reads notes from the notebook server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.httpClient = h
	}
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// Content implements DocumentSource using GET /api/files/{path}.
func (c *Client) Content(ctx context.Context, path string) (string, error) {
	return c.get(ctx, "/api/files/"+escapePath(path), nil)
}

// ContentRange implements DocumentSource using
// GET /api/files/content/{path}?start=&end=. Servers without the range
// endpoint answer 404; the whole note is then fetched and sliced locally.
func (c *Client) ContentRange(ctx context.Context, path string, start, end int) (string, error) {
	if start < 1 || (end > 0 && end < start) {
		return "", fmt.Errorf("%w: %d-%d", ErrInvalidRange, start, end)
	}

	query := url.Values{}
	query.Set("start", strconv.Itoa(start))
	query.Set("end", strconv.Itoa(end))

	text, err := c.get(ctx, "/api/files/content/"+escapePath(path), query)
	if err == nil {
		return text, nil
	}
	if !IsNotFound(err) {
		return "", err
	}

	c.logger.Debug("range endpoint unavailable, slicing locally", "path", path)
	whole, err := c.Content(ctx, path)
	if err != nil {
		return "", err
	}
	return SliceLines(whole, start, end)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (string, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("notes request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read notes response: %w", err)
	}
	if len(body) > MaxDocumentSize {
		return "", fmt.Errorf("notes response exceeds %d bytes", MaxDocumentSize)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		var er errorResponse
		if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
			msg = er.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &Error{Status: resp.StatusCode, Message: msg}
	}

	var cr contentResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("failed to decode notes response: %w", err)
	}
	return cr.Content, nil
}

// escapePath escapes each segment of a slash-separated note path.
func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
