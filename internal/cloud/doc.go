// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud talks to OpenAI-compatible chat completion endpoints.
//
// The package covers one exchange shape: a streamed POST to
// {BaseURL}/chat/completions whose body is a chunked series of
// "data: {json}" lines, normally closed by "data: [DONE]". The body is read
// until end of data.
//
// # Key Types
//
//   - Client: issues streaming chat requests against a base URL
//   - ChatRequest: request body for chat completions
//   - FrameDecoder: turns raw body chunks into content fragments
//   - HTTPError: non-2xx response with its status and body
//
// # Usage
//
//	client := cloud.NewClient(baseURL, apiKey)
//	body, err := client.OpenStream(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer body.Close()
//	text, err := client.Consume(ctx, body, func(fragment string) {
//	    fmt.Print(fragment)
//	})
//
// # Errors
//
// Network failures wrap ErrTransport. Failure statuses are returned as
// *HTTPError, which matches ErrAuthFailed, ErrModelNotFound and
// ErrRateLimited through errors.Is. API keys are never logged.
package cloud
