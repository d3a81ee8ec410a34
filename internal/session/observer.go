// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "github.com/jeranaias/mdnote/internal/model"

// Observer receives session events. Calls for one exchange arrive in order
// from a single goroutine. A fragment read just before Cancel may still be
// reported through OnPartial; it is never committed.
type Observer interface {
	// OnStateChange is called after every state transition.
	OnStateChange(state State)
	// OnPartial is called with the full accumulated reply after each fragment.
	OnPartial(text string)
	// OnCommit is called when a message is appended to the transcript.
	OnCommit(msg model.Message)
	// OnError is called exactly once per failed exchange.
	OnError(err error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	StateChange func(State)
	Partial     func(string)
	Commit      func(model.Message)
	Error       func(error)
}

// OnStateChange implements Observer.
func (f ObserverFuncs) OnStateChange(state State) {
	if f.StateChange != nil {
		f.StateChange(state)
	}
}

// OnPartial implements Observer.
func (f ObserverFuncs) OnPartial(text string) {
	if f.Partial != nil {
		f.Partial(text)
	}
}

// OnCommit implements Observer.
func (f ObserverFuncs) OnCommit(msg model.Message) {
	if f.Commit != nil {
		f.Commit(msg)
	}
}

// OnError implements Observer.
func (f ObserverFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Observers fans events out to several observers in order.
type Observers []Observer

// OnStateChange implements Observer.
func (o Observers) OnStateChange(state State) {
	for _, obs := range o {
		obs.OnStateChange(state)
	}
}

// OnPartial implements Observer.
func (o Observers) OnPartial(text string) {
	for _, obs := range o {
		obs.OnPartial(text)
	}
}

// OnCommit implements Observer.
func (o Observers) OnCommit(msg model.Message) {
	for _, obs := range o {
		obs.OnCommit(msg)
	}
}

// OnError implements Observer.
func (o Observers) OnError(err error) {
	for _, obs := range o {
		obs.OnError(err)
	}
}
