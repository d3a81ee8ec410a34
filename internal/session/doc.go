// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives the assistant's streaming chat exchanges.
//
// A Session owns the conversation transcript, the in-flight partial reply and
// the lifecycle of at most one outstanding request. Hosts (the terminal panel,
// the REPL and the HTTP front) each construct and own their Session.
//
// # States
//
//	Idle -> Sending -> Streaming -> Idle
//	Sending|Streaming -> Failed -> Idle
//
// Failed is transient: it is reported to the Observer together with the error
// and the session returns to Idle right after.
//
// # Usage
//
//	s := session.New(cfg, session.WithObserver(obs), session.WithContextLimit(20))
//	if err := s.Submit("What is in this note?"); err != nil {
//	    // ErrEmptyInput or ErrRequestRejected
//	}
//	s.Wait()
//
// Observer callbacks run on the exchange goroutine without the session lock
// held, so they may call back into the Session.
package session
