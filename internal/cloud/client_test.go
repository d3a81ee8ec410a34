// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stream opens req and consumes the whole body.
func stream(ctx context.Context, c *Client, req ChatRequest, onFragment func(string)) (string, error) {
	body, err := c.OpenStream(ctx, req)
	if err != nil {
		return "", err
	}
	defer body.Close()
	return c.Consume(ctx, body, onFragment)
}

// =============================================================================
// REQUEST TESTS
// =============================================================================

func TestStream_RequestShape(t *testing.T) {
	var got ChatRequest
	var headers http.Header
	var path string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(contentLine("ok") + "data: [DONE]\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "sk-test-key").WithLogger(quietLogger())
	text, err := stream(context.Background(), client, ChatRequest{
		Model:       "gpt-3.5-turbo",
		Messages:    []ChatMessage{NewSystemMessage("sys"), NewUserMessage("hi")},
		Temperature: 0.7,
		MaxTokens:   2000,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "ok", text)
	assert.Equal(t, "/chat/completions", path)
	assert.Equal(t, "Bearer sk-test-key", headers.Get("Authorization"))
	assert.Equal(t, "text/event-stream", headers.Get("Accept"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.True(t, got.Stream)
	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	assert.Equal(t, 2000, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "hi", got.Messages[1].Content)
}

func TestStream_EmptyKeyStillSent(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte("data: [DONE]\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "").WithLogger(quietLogger())
	assert.False(t, client.IsConfigured())

	text, err := stream(context.Background(), client, ChatRequest{Model: "m"}, nil)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.True(t, strings.HasPrefix(auth, "Bearer"), "Authorization = %q", auth)
}

func TestStream_FragmentsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, part := range []string{"one ", "two ", "three"} {
			w.Write([]byte(contentLine(part)))
			flusher.Flush()
		}
		w.Write([]byte("data: [DONE]\n"))
	}))
	defer server.Close()

	var fragments []string
	client := NewClient(server.URL, "k").WithLogger(quietLogger())
	text, err := stream(context.Background(), client, ChatRequest{}, func(f string) {
		fragments = append(fragments, f)
	})
	require.NoError(t, err)
	assert.Equal(t, "one two three", text)
	assert.Equal(t, []string{"one ", "two ", "three"}, fragments)
}

// =============================================================================
// ERROR MAPPING TESTS
// =============================================================================

func TestStream_HTTPErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		sentinel    error
		wantMessage string
	}{
		{
			name:        "unauthorized with envelope",
			status:      http.StatusUnauthorized,
			body:        `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`,
			sentinel:    ErrAuthFailed,
			wantMessage: "Incorrect API key provided",
		},
		{
			name:        "model not found",
			status:      http.StatusNotFound,
			body:        `{"error":{"message":"The model does not exist","code":"model_not_found"}}`,
			sentinel:    ErrModelNotFound,
			wantMessage: "The model does not exist",
		},
		{
			name:        "rate limited plain body",
			status:      http.StatusTooManyRequests,
			body:        "slow down",
			sentinel:    ErrRateLimited,
			wantMessage: "slow down",
		},
		{
			name:        "server error",
			status:      http.StatusInternalServerError,
			body:        "boom",
			wantMessage: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "k").WithLogger(quietLogger())
			text, err := stream(context.Background(), client, ChatRequest{}, nil)
			require.Error(t, err)
			assert.Empty(t, text)

			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.Status)
			assert.Equal(t, tt.body, httpErr.Body)
			assert.Equal(t, tt.wantMessage, httpErr.Message)
			assert.Contains(t, err.Error(), "status")

			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			assert.False(t, errors.Is(err, ErrTransport))
		})
	}
}

func TestStream_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, "k").WithLogger(quietLogger())
	_, err := stream(context.Background(), client, ChatRequest{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestStream_ConnectionDroppedMidStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte(contentLine("partial")))
		w.(http.Flusher).Flush()
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer server.Close()

	var fragments []string
	client := NewClient(server.URL, "k").WithLogger(quietLogger())
	text, err := stream(context.Background(), client, ChatRequest{}, func(f string) {
		fragments = append(fragments, f)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Empty(t, text)
	assert.Equal(t, []string{"partial"}, fragments)
}

func TestStream_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k").WithLogger(quietLogger())
	_, err := stream(context.Background(), client, ChatRequest{}, nil)
	assert.ErrorIs(t, err, ErrStreamUnavailable)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestStream_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(contentLine("first")))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(server.URL, "k").WithLogger(quietLogger())

	done := make(chan error, 1)
	go func() {
		_, err := stream(ctx, client, ChatRequest{}, func(string) { cancel() })
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after cancel")
	}
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestNewClient_BaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultBaseURL},
		{"   ", DefaultBaseURL},
		{"http://localhost:8080/v1/", "http://localhost:8080/v1"},
		{" https://example.com/api ", "https://example.com/api"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewClient(tt.in, "").BaseURL(), "input %q", tt.in)
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", MaskKey(""))
	assert.Equal(t, "****", MaskKey("short"))
	masked := MaskKey("sk-abcdefghijklmnop1234")
	assert.Equal(t, "****1234", masked)
	assert.False(t, strings.Contains(masked, "abcdef"))
}

func TestHTTPError_Message(t *testing.T) {
	err := &HTTPError{Status: http.StatusBadGateway}
	assert.Equal(t, "HTTP error! status: 502: Bad Gateway", err.Error())
	assert.False(t, errors.Is(err, ErrAuthFailed))
}
