// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/jeranaias/mdnote/internal/cloud"
	"github.com/jeranaias/mdnote/internal/model"
)

// Error variables for rejected submissions.
var (
	// ErrRequestRejected is returned when a submit arrives while a request is outstanding.
	ErrRequestRejected = errors.New("request rejected: a reply is already in progress")

	// ErrEmptyInput is returned when the submitted text is blank.
	ErrEmptyInput = errors.New("empty input")
)

// =============================================================================
// SESSION
// =============================================================================

// Session owns one conversation and at most one outstanding exchange.
type Session struct {
	mu sync.Mutex

	cfg        Config
	state      State
	partial    strings.Builder
	generation uint64
	cancel     context.CancelFunc
	lastErr    error

	transcript *model.Transcript
	observer   Observer
	httpClient *http.Client
	logger     *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHTTPClient overrides the streaming HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(s *Session) {
		s.httpClient = h
	}
}

// WithContextLimit bounds the transcript (and so the context window) to n messages.
func WithContextLimit(n int) Option {
	return func(s *Session) {
		s.transcript = model.NewTranscript(n)
	}
}

// WithTranscript uses an existing transcript, for example one restored by the host.
func WithTranscript(t *model.Transcript) Option {
	return func(s *Session) {
		if t != nil {
			s.transcript = t
		}
	}
}

// New creates an idle Session.
func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:      cfg,
		state:    StateIdle,
		observer: ObserverFuncs{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transcript == nil {
		s.transcript = model.NewTranscript(model.DefaultLimit)
	}
	return s
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Partial returns the reply accumulated so far for the in-flight exchange.
func (s *Session) Partial() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partial.String()
}

// Transcript returns a snapshot of the committed messages.
func (s *Session) Transcript() []model.Message {
	return s.transcript.Snapshot()
}

// ContextLimit returns the transcript bound.
func (s *Session) ContextLimit() int {
	return s.transcript.Limit()
}

// Config returns a copy of the current configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetConfig replaces the configuration used by the next request.
func (s *Session) SetConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.logger.Debug("session config updated", "config", cfg.String())
}

// LastError returns the error of the most recent failed exchange, if it has
// not been cleared.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ClearError forgets the last error.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

// AnalysisPort returns the entry point document loaders use to request an
// analysis. Failures to submit are logged.
func (s *Session) AnalysisPort() func(documentText string) {
	return func(documentText string) {
		if err := s.SubmitDocumentForAnalysis(documentText); err != nil && !errors.Is(err, ErrRequestRejected) {
			s.logger.Info("analysis not submitted", "error", err)
		}
	}
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Submit sends a chat message. It returns as soon as the request is issued;
// the reply is delivered through the Observer.
// The text is committed as typed; whitespace only matters for the
// emptiness check.
func (s *Session) Submit(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	return s.submit(text)
}

// SubmitDocumentForAnalysis asks the model to analyze documentText. The user
// message is the analysis template wrapping the document verbatim.
func (s *Session) SubmitDocumentForAnalysis(documentText string) error {
	if strings.TrimSpace(documentText) == "" {
		return ErrEmptyInput
	}
	return s.submit(AnalysisPrompt(documentText))
}

func (s *Session) submit(text string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		s.logger.Info("submit rejected", "state", state.String())
		return ErrRequestRejected
	}

	// The window is what survives once the new turn has been appended.
	window := s.transcript.LastN(s.transcript.Limit() - 1)
	userMsg := model.NewUserMessage(text)
	s.transcript.Append(userMsg)

	cfg := s.cfg
	req := buildRequest(cfg, window, userMsg)

	ctx, cancel := context.WithCancel(context.Background())
	s.generation++
	gen := s.generation
	s.cancel = cancel
	s.state = StateSending
	s.partial.Reset()
	s.lastErr = nil
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Debug("submitting chat request",
		"generation", gen,
		"model", cfg.Model,
		"history", len(window))

	s.observer.OnCommit(userMsg)
	s.observer.OnStateChange(StateSending)

	go s.run(ctx, gen, cfg, req)
	return nil
}

// Cancel abandons the outstanding exchange. The partial reply is discarded
// and nothing is committed. It reports whether there was anything to cancel.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if !s.state.Busy() {
		s.mu.Unlock()
		return false
	}
	gen := s.generation
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.partial.Reset()
	s.state = StateIdle
	s.mu.Unlock()

	s.logger.Info("request canceled", "generation", gen)
	s.observer.OnStateChange(StateIdle)
	return true
}

// Wait blocks until every exchange goroutine has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels any outstanding exchange and waits for it to finish.
func (s *Session) Close() {
	s.Cancel()
	s.Wait()
}

// =============================================================================
// EXCHANGE
// =============================================================================

// buildRequest assembles system prompt, history and the new user turn.
func buildRequest(cfg Config, history []model.Message, user model.Message) cloud.ChatRequest {
	messages := make([]cloud.ChatMessage, 0, len(history)+2)
	messages = append(messages, cloud.NewSystemMessage(cfg.SystemPrompt))
	for _, m := range history {
		switch m.Role {
		case model.RoleUser:
			messages = append(messages, cloud.NewUserMessage(m.Text))
		case model.RoleAssistant:
			messages = append(messages, cloud.NewAssistantMessage(m.Text))
		default:
			messages = append(messages, cloud.ChatMessage{Role: m.Role.String(), Content: m.Text})
		}
	}
	messages = append(messages, cloud.NewUserMessage(user.Text))

	return cloud.ChatRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Stream:      true,
	}
}

// run performs one exchange. Every state change it makes is conditional on
// gen still being current.
func (s *Session) run(ctx context.Context, gen uint64, cfg Config, req cloud.ChatRequest) {
	defer s.wg.Done()

	client := cloud.NewClient(cfg.BaseURL, cfg.APIKey).
		WithHTTPClient(s.httpClient).
		WithLogger(s.logger)
	if !client.IsConfigured() {
		s.logger.Debug("no API key configured", "base_url", client.BaseURL())
	}

	body, err := client.OpenStream(ctx, req)
	if err != nil {
		s.fail(gen, err)
		return
	}
	defer body.Close()

	if !s.transition(gen, StateSending, StateStreaming) {
		return
	}

	if _, err := client.Consume(ctx, body, func(fragment string) {
		s.appendFragment(gen, fragment)
	}); err != nil {
		s.fail(gen, err)
		return
	}

	s.finish(gen)
}

// transition moves from one state to another if gen is current.
func (s *Session) transition(gen uint64, from, to State) bool {
	s.mu.Lock()
	if s.generation != gen || s.state != from {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	s.observer.OnStateChange(to)
	return true
}

func (s *Session) appendFragment(gen uint64, fragment string) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.partial.WriteString(fragment)
	text := s.partial.String()
	s.mu.Unlock()

	s.observer.OnPartial(text)
}

// finish commits the accumulated reply, if any, and returns to Idle.
func (s *Session) finish(gen uint64) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	text := s.partial.String()
	s.partial.Reset()
	s.release()
	s.state = StateIdle

	var committed *model.Message
	if text != "" {
		msg := model.NewAssistantMessage(text)
		s.transcript.Append(msg)
		committed = &msg
	}
	s.mu.Unlock()

	if committed != nil {
		s.observer.OnCommit(*committed)
	} else {
		s.logger.Debug("stream ended without content", "generation", gen)
	}
	s.observer.OnStateChange(StateIdle)
}

// fail reports a terminal error for gen and returns to Idle. Errors from a
// canceled exchange are dropped.
func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.partial.Reset()
	s.release()
	s.state = StateFailed
	s.lastErr = err
	s.mu.Unlock()

	s.logger.Warn("chat request failed", "generation", gen, "error", err)
	s.observer.OnStateChange(StateFailed)
	s.observer.OnError(err)

	s.mu.Lock()
	if s.generation != gen || s.state != StateFailed {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.mu.Unlock()
	s.observer.OnStateChange(StateIdle)
}

// release drops the context of the finished exchange. Caller must hold s.mu.
func (s *Session) release() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
