// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assistant is the terminal assistant panel: a Bubble Tea model over
// a session.Session. Session events reach the program through a Bridge.
package assistant
