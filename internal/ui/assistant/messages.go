// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/mdnote/internal/model"
	"github.com/jeranaias/mdnote/internal/session"
)

// =============================================================================
// SESSION MESSAGES
// =============================================================================

// StateMsg reports a session state change.
type StateMsg struct {
	State session.State
}

// PartialMsg carries the reply accumulated so far.
type PartialMsg struct {
	Text string
}

// CommitMsg reports a message appended to the transcript.
type CommitMsg struct {
	Message model.Message
}

// ErrorMsg reports a failed exchange.
type ErrorMsg struct {
	Err error
}

// ConfigReloadedMsg carries a configuration reloaded from disk.
type ConfigReloadedMsg struct {
	Config session.Config
}

// =============================================================================
// INTERNAL MESSAGES
// =============================================================================

// toastDismissMsg expires the toast with the given id.
type toastDismissMsg struct {
	id int
}

// documentLoadedMsg delivers a document fetched for /analyze or /file.
type documentLoadedMsg struct {
	label string
	text  string
}

// commandFailedMsg reports a slash command that failed asynchronously.
type commandFailedMsg struct {
	err error
}

// =============================================================================
// BRIDGE
// =============================================================================

// Sender accepts messages for a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge implements session.Observer and forwards events to a program in
// order. Callbacks never block: the session may call them from inside
// Update, where a direct Program.Send would deadlock.
type Bridge struct {
	mu      sync.Mutex
	queue   []tea.Msg
	wake    chan struct{}
	done    chan struct{}
	stopped sync.Once
}

// NewBridge creates a bridge. Call Run once the program exists.
func NewBridge() *Bridge {
	return &Bridge{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Run forwards queued events to s until Stop is called.
func (b *Bridge) Run(s Sender) {
	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
		}

		b.mu.Lock()
		pending := b.queue
		b.queue = nil
		b.mu.Unlock()

		for _, msg := range pending {
			s.Send(msg)
		}
	}
}

// Stop ends Run. Events queued afterwards are discarded.
func (b *Bridge) Stop() {
	b.stopped.Do(func() { close(b.done) })
}

func (b *Bridge) push(msg tea.Msg) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// OnStateChange implements session.Observer.
func (b *Bridge) OnStateChange(state session.State) { b.push(StateMsg{State: state}) }

// OnPartial implements session.Observer.
func (b *Bridge) OnPartial(text string) { b.push(PartialMsg{Text: text}) }

// OnCommit implements session.Observer.
func (b *Bridge) OnCommit(msg model.Message) { b.push(CommitMsg{Message: msg}) }

// OnError implements session.Observer.
func (b *Bridge) OnError(err error) { b.push(ErrorMsg{Err: err}) }
