// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "sync"

// DefaultLimit is the number of messages a transcript keeps when no limit
// is configured.
const DefaultLimit = 20

// =============================================================================
// TRANSCRIPT TYPE
// =============================================================================

// Transcript is the append-only, bounded log of committed messages.
//
// When an append pushes the length past the limit, messages are evicted from
// the front (oldest first) until the length equals the limit. There is no
// other way to remove or edit a message.
//
// A Transcript is safe for concurrent use: the streaming session commits
// from its exchange goroutine while hosts read snapshots.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
	limit    int
}

// NewTranscript creates an empty transcript bounded to limit messages.
// A non-positive limit falls back to DefaultLimit.
func NewTranscript(limit int) *Transcript {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Transcript{
		messages: make([]Message, 0, limit+1),
		limit:    limit,
	}
}

// Append adds msg at the end and evicts the oldest messages beyond the limit.
func (t *Transcript) Append(msg Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = append(t.messages, msg)
	t.evictLocked()
}

// evictLocked drops messages from the front until the limit holds.
// Caller must hold the write lock.
func (t *Transcript) evictLocked() {
	excess := len(t.messages) - t.limit
	if excess <= 0 {
		return
	}
	// Shift in place so the backing array does not grow without bound.
	n := copy(t.messages, t.messages[excess:])
	for i := n; i < len(t.messages); i++ {
		t.messages[i] = Message{}
	}
	t.messages = t.messages[:n]
}

// Snapshot returns a copy of all current messages in commit order.
func (t *Transcript) Snapshot() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// LastN returns a copy of the most recent n messages in original order.
// n larger than the length returns everything; n <= 0 returns nothing.
func (t *Transcript) LastN(n int) []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 {
		return []Message{}
	}
	if n > len(t.messages) {
		n = len(t.messages)
	}
	out := make([]Message, n)
	copy(out, t.messages[len(t.messages)-n:])
	return out
}

// Len returns the number of messages currently held.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Limit returns the configured bound.
func (t *Transcript) Limit() int {
	return t.limit
}

// Last returns the most recent message and whether one exists.
func (t *Transcript) Last() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}
