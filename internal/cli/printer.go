// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/jeranaias/mdnote/internal/model"
	"github.com/jeranaias/mdnote/internal/session"
)

// streamPrinter is a session.Observer for line-oriented commands. It writes
// each new fragment as it arrives and remembers how the exchange ended.
type streamPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	stream  bool
	printed int
	reply   *model.Message
	err     error
}

func newStreamPrinter(w io.Writer, stream bool) *streamPrinter {
	return &streamPrinter{w: w, stream: stream}
}

// reset prepares for the next exchange.
func (p *streamPrinter) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = 0
	p.reply = nil
	p.err = nil
}

// result returns the committed reply, if any, and the exchange error.
func (p *streamPrinter) result() (model.Message, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reply == nil {
		return model.Message{}, false, p.err
	}
	return *p.reply, true, p.err
}

// wrote reports whether any fragment was written this exchange.
func (p *streamPrinter) wrote() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream && p.printed > 0
}

func (p *streamPrinter) OnStateChange(session.State) {}

func (p *streamPrinter) OnPartial(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(text) < p.printed {
		p.printed = 0
	}
	if p.stream {
		fmt.Fprint(p.w, text[p.printed:])
	}
	p.printed = len(text)
}

func (p *streamPrinter) OnCommit(msg model.Message) {
	if msg.Role != model.RoleAssistant {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reply = &msg
}

func (p *streamPrinter) OnError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// exchange submits through submit and blocks until the exchange ends.
func exchange(sess *session.Session, p *streamPrinter, submit func() error) (model.Message, bool, error) {
	p.reset()
	sess.ClearError()
	if err := submit(); err != nil {
		return model.Message{}, false, err
	}
	sess.Wait()
	return p.result()
}
