// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation data types of the assistant.
//
// # Key Types
//
//   - Role: who sent a message (user or assistant)
//   - Message: one committed, immutable chat message
//   - Transcript: the ordered, bounded log of committed messages
//
// # Usage
//
//	t := model.NewTranscript(20)
//	t.Append(model.NewUserMessage("Summarize my notes"))
//	history := t.LastN(20)
//
// The transcript keeps at most its limit of messages; appending past the limit
// evicts the oldest entries, and that eviction is visible in Snapshot.
package model
