// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/mdnote/internal/export"
	"github.com/jeranaias/mdnote/internal/logging"
	"github.com/jeranaias/mdnote/internal/model"
	"github.com/jeranaias/mdnote/internal/notes"
	"github.com/jeranaias/mdnote/internal/session"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:5055"

	// MaxRequestBodySize caps request bodies (documents for analysis included).
	MaxRequestBodySize = 4 * 1024 * 1024

	// HeartbeatInterval is how often an idle events stream gets a comment line.
	HeartbeatInterval = 15 * time.Second

	// Version is the server version.
	Version = "0.1.0"
)

// ============================================================================
// SERVER
// ============================================================================

// Options configures a Server.
type Options struct {
	Addr               string
	Session            session.Config
	ContextLimit       int
	Notes              notes.DocumentSource
	AllowedOrigins     []string
	RateLimitPerMinute int
	Logger             *slog.Logger
	HTTPClient         *http.Client // for completion requests; nil uses the shared client
}

// Server is the assistant HTTP front. It owns one session.
type Server struct {
	addr    string
	session *session.Session
	hub     *Hub
	notes   notes.DocumentSource
	logger  *slog.Logger
	handler http.Handler
	server  *http.Server
}

// New creates a server and its session.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := opts.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	hub := NewHub(logger)
	s := &Server{
		addr: addr,
		hub:  hub,
		session: session.New(opts.Session,
			session.WithObserver(session.Observers{hub, commitLog(logger)}),
			session.WithContextLimit(opts.ContextLimit),
			session.WithLogger(logger),
			session.WithHTTPClient(opts.HTTPClient)),
		notes:  opts.Notes,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/assistant/messages", s.handleMessages)
	mux.HandleFunc("POST /api/assistant/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/assistant/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/assistant/transcript", s.handleTranscript)
	mux.HandleFunc("GET /api/assistant/state", s.handleState)
	mux.HandleFunc("GET /api/assistant/events", s.handleEvents)
	mux.HandleFunc("GET /health", s.handleHealth)

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(logger),
		CORSMiddleware(DefaultCORSConfig(opts.AllowedOrigins)),
	}
	if opts.RateLimitPerMinute > 0 {
		middlewares = append(middlewares, RateLimitMiddleware(NewRateLimiter(opts.RateLimitPerMinute)))
	}
	s.handler = Chain(middlewares...)(mux)

	return s
}

// commitLog records every committed message for the server log.
func commitLog(logger *slog.Logger) session.Observer {
	return session.ObserverFuncs{
		Commit: func(msg model.Message) {
			logger.Info("message committed", "id", msg.ID, "role", msg.Role.String(), "chars", len(msg.Text))
		},
	}
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Session returns the server's session, for example to push a reloaded config.
func (s *Server) Session() *session.Session {
	return s.session
}

// Hub returns the event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("assistant server listening", "addr", ln.Addr().String(), "version", Version)
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown disconnects event streams, cancels the in-flight reply and stops
// the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("assistant server shutting down")
	s.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Close releases the hub and session without touching the listener.
func (s *Server) Close() {
	s.hub.Close()
	s.session.Close()
}

// ============================================================================
// REQUEST TYPES
// ============================================================================

type messageRequest struct {
	Text string `json:"text"`
}

type analyzeRequest struct {
	Text  string `json:"text"`
	Path  string `json:"path"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

type acceptedResponse struct {
	State session.State `json:"state"`
}

// StateResponse is returned by GET /api/assistant/state.
type StateResponse struct {
	State        session.State `json:"state"`
	Partial      string        `json:"partial"`
	Error        *ErrorPayload `json:"error,omitempty"`
	Model        string        `json:"model"`
	ContextLimit int           `json:"context_limit"`
	Messages     int           `json:"messages"`
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respondSubmit(w, r, s.session.Submit(req.Text))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decode(w, r, &req) {
		return
	}

	text := req.Text
	if req.Path != "" {
		if s.notes == nil {
			writeError(w, http.StatusNotImplemented, "no notes server configured")
			return
		}
		var err error
		if req.Start > 0 {
			text, err = s.notes.ContentRange(r.Context(), req.Path, req.Start, req.End)
		} else {
			text, err = s.notes.Content(r.Context(), req.Path)
		}
		if err != nil {
			s.writeNotesError(w, r, err)
			return
		}
	}

	s.respondSubmit(w, r, s.session.SubmitDocumentForAnalysis(text))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	canceled := s.session.Cancel()
	writeJSON(w, http.StatusOK, map[string]any{
		"canceled": canceled,
		"state":    s.session.State(),
	})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	t := export.NewTranscript(s.session.Config().Model, s.session.Transcript())

	format := r.URL.Query().Get("format")
	if format == "" {
		writeJSON(w, http.StatusOK, map[string]any{"messages": t.Messages})
		return
	}

	exp, err := export.NewExporter(format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := exp.Export(t, &buf); err != nil {
		logging.FromContext(r.Context()).Error("transcript export failed", "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	switch exp.Extension() {
	case "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	case "yaml":
		w.Header().Set("Content-Type", "application/yaml")
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"transcript.%s\"", exp.Extension()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotState())
}

func (s *Server) snapshotState() StateResponse {
	resp := StateResponse{
		State:        s.session.State(),
		Partial:      s.session.Partial(),
		Model:        s.session.Config().Model,
		ContextLimit: s.session.ContextLimit(),
		Messages:     len(s.session.Transcript()),
	}
	if err := s.session.LastError(); err != nil {
		p := NewErrorPayload(err)
		resp.Error = &p
	}
	return resp
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Event streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	state := s.snapshotState()
	if err := writeEvent(w, Event{Type: EventState, Data: map[string]any{"state": state.State}}); err != nil {
		return
	}
	if state.Partial != "" {
		writeEvent(w, Event{Type: EventPartial, Data: map[string]string{"text": state.Partial}})
	}
	if err := rc.Flush(); err != nil {
		return
	}

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: Version})
}

// ============================================================================
// HELPERS
// ============================================================================

// decode reads a JSON body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// respondSubmit maps a submit result to a response.
func (s *Server) respondSubmit(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, acceptedResponse{State: s.session.State()})
	case errors.Is(err, session.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, "text must not be empty")
	case errors.Is(err, session.ErrRequestRejected):
		writeError(w, http.StatusConflict, "a reply is already in progress")
	default:
		logging.FromContext(r.Context()).Error("submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeNotesError(w http.ResponseWriter, r *http.Request, err error) {
	var nerr *notes.Error
	switch {
	case errors.As(err, &nerr) && nerr.Status == http.StatusNotFound:
		writeError(w, http.StatusNotFound, nerr.Message)
	case errors.Is(err, notes.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logging.FromContext(r.Context()).Warn("loading note failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// writeEvent writes one SSE frame.
func writeEvent(w http.ResponseWriter, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	// json.Marshal never emits raw newlines, so one data line is enough.
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, strings.TrimSpace(string(data)))
	return err
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error body in the notebook server's {error} shape.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
