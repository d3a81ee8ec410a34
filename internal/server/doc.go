// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the HTTP front of the assistant for browser-hosted
// panels.
//
// Endpoints:
//   - POST /api/assistant/messages   - submit a chat message {text}
//   - POST /api/assistant/analyze    - analyze {text} or a note {path, start, end}
//   - POST /api/assistant/cancel     - cancel the in-flight reply
//   - GET  /api/assistant/transcript - committed messages (?format=md|json|yaml)
//   - GET  /api/assistant/state      - state, partial reply and last error
//   - GET  /api/assistant/events     - Server-Sent Events: partial, commit, state, error
//   - GET  /health                   - health check
//
// The server owns one session. Submits while a reply is in progress are
// answered with 409 Conflict.
//
// Middleware applied to every request, outermost first: panic recovery,
// security headers, request logging, CORS and per-client rate limiting.
package server
