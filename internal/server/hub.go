// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/jeranaias/mdnote/internal/cloud"
	"github.com/jeranaias/mdnote/internal/model"
	"github.com/jeranaias/mdnote/internal/session"
)

// Event types sent on the events stream.
const (
	EventPartial = "partial"
	EventCommit  = "commit"
	EventState   = "state"
	EventError   = "error"
)

// subscriberBuffer is how many events a slow client may lag behind. Past
// that, partial events are dropped for it and any other event disconnects it.
const subscriberBuffer = 64

// Event is one message on the events stream.
type Event struct {
	Type string
	Data any
}

// ErrorPayload describes a failed exchange to browser clients.
type ErrorPayload struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// NewErrorPayload converts a session error for the wire.
func NewErrorPayload(err error) ErrorPayload {
	p := ErrorPayload{Message: err.Error()}
	var httpErr *cloud.HTTPError
	if errors.As(err, &httpErr) {
		p.Status = httpErr.Status
	}
	return p
}

// Hub fans session events out to every connected events stream. It
// implements session.Observer.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[chan Event]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new listener. The returned function unsubscribes;
// the channel is closed when the listener is removed or the hub closes.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Subscribers returns the number of connected listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish delivers ev to every listener without blocking. A full listener
// loses partial events, which the next partial supersedes. Commit, state and
// error events are never silently lost: a listener that cannot take one is
// disconnected and has to resubscribe.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			if ev.Type == EventPartial {
				h.logger.Debug("dropping partial event for slow subscriber")
				continue
			}
			h.logger.Warn("disconnecting slow subscriber", "type", ev.Type)
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Close disconnects every listener.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}

// OnStateChange implements session.Observer.
func (h *Hub) OnStateChange(state session.State) {
	h.Publish(Event{Type: EventState, Data: map[string]any{"state": state}})
}

// OnPartial implements session.Observer.
func (h *Hub) OnPartial(text string) {
	h.Publish(Event{Type: EventPartial, Data: map[string]string{"text": text}})
}

// OnCommit implements session.Observer.
func (h *Hub) OnCommit(msg model.Message) {
	h.Publish(Event{Type: EventCommit, Data: msg})
}

// OnError implements session.Observer.
func (h *Hub) OnError(err error) {
	h.Publish(Event{Type: EventError, Data: NewErrorPayload(err)})
}
