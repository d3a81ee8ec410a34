// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mdnote/internal/cloud"
	"github.com/jeranaias/mdnote/internal/model"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func contentLine(content string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n", content)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is an Observer that keeps every event.
type recorder struct {
	mu       sync.Mutex
	states   []State
	partials []string
	commits  []model.Message
	errs     []error

	partialCh chan string
}

func newRecorder() *recorder {
	return &recorder{partialCh: make(chan string, 64)}
}

func (r *recorder) OnStateChange(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recorder) OnPartial(text string) {
	r.mu.Lock()
	r.partials = append(r.partials, text)
	r.mu.Unlock()
	r.partialCh <- text
}

func (r *recorder) OnCommit(msg model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, msg)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) snapshot() ([]State, []string, []model.Message, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...),
		append([]string(nil), r.partials...),
		append([]model.Message(nil), r.commits...),
		append([]error(nil), r.errs...)
}

func (r *recorder) waitPartial(t *testing.T) string {
	t.Helper()
	select {
	case p := <-r.partialCh:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for partial reply")
		return ""
	}
}

// fakeServer is a scripted chat completion endpoint.
type fakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []cloud.ChatRequest
	received chan cloud.ChatRequest
}

// newFakeServer starts an endpoint that records each request and then runs
// handle to write the response.
func newFakeServer(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) *fakeServer {
	t.Helper()
	fs := &fakeServer{received: make(chan cloud.ChatRequest, 16)}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req cloud.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fs.mu.Lock()
		fs.requests = append(fs.requests, req)
		fs.mu.Unlock()
		fs.received <- req
		handle(w, r)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) requestCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.requests)
}

func (fs *fakeServer) waitRequest(t *testing.T) cloud.ChatRequest {
	t.Helper()
	select {
	case req := <-fs.received:
		return req
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for request")
		return cloud.ChatRequest{}
	}
}

// writeChunks writes each chunk and flushes it separately.
func writeChunks(w http.ResponseWriter, chunks ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, c := range chunks {
		io.WriteString(w, c)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// blockUntil waits for the release channel or the client going away.
func blockUntil(r *http.Request, release <-chan struct{}) {
	select {
	case <-release:
	case <-r.Context().Done():
	}
}

func newTestSession(t *testing.T, url string, rec *recorder, opts ...Option) *Session {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.APIKey = "sk-test"
	all := append([]Option{WithObserver(rec), WithLogger(quietLogger())}, opts...)
	s := New(cfg, all...)
	t.Cleanup(s.Close)
	return s
}

func messageTexts(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Text
	}
	return out
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestSession_HelloScenario(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w,
			"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n",
			"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n"+"data: [DONE]\n",
		)
	})
	rec := newRecorder()
	s := newTestSession(t, srv.URL, rec)

	require.NoError(t, s.Submit("Hi"))
	s.Wait()

	states, partials, commits, errs := rec.snapshot()
	assert.Empty(t, errs)
	assert.Equal(t, []string{"Hel", "Hello"}, partials)
	assert.Equal(t, []State{StateSending, StateStreaming, StateIdle}, states)
	require.Len(t, commits, 2)
	assert.Equal(t, model.RoleUser, commits[0].Role)
	assert.Equal(t, model.RoleAssistant, commits[1].Role)
	assert.Equal(t, "Hello", commits[1].Text)

	assert.Equal(t, []string{"user:Hi", "assistant:Hello"}, messageTexts(s.Transcript()))
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.Partial())
}

func TestSession_MalformedFrameSkipped(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w,
			contentLine("good "),
			"data: {\"choices\": [oops\n",
			contentLine("answer"),
			"data: [DONE]\n",
		)
	})
	rec := newRecorder()
	s := newTestSession(t, srv.URL, rec)

	require.NoError(t, s.Submit("q"))
	s.Wait()

	_, _, _, errs := rec.snapshot()
	assert.Empty(t, errs)
	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "good answer", transcript[1].Text)
}

func TestSession_EmptyReplyCommitsNothing(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n", "data: [DONE]\n")
	})
	rec := newRecorder()
	s := newTestSession(t, srv.URL, rec)

	require.NoError(t, s.Submit("anything?"))
	s.Wait()

	assert.Equal(t, []string{"user:anything?"}, messageTexts(s.Transcript()))
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_RequestCarriesConfigAndHistory(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, contentLine("reply"), "data: [DONE]\n")
	})
	rec := newRecorder()
	s := newTestSession(t, srv.URL, rec)

	cfg := s.Config()
	cfg.Model = "gpt-4"
	cfg.SystemPrompt = "be brief"
	cfg.Temperature = 0.2
	cfg.MaxTokens = 64
	s.SetConfig(cfg)

	require.NoError(t, s.Submit("first"))
	s.Wait()
	srv.waitRequest(t)

	require.NoError(t, s.Submit("second"))
	s.Wait()
	req := srv.waitRequest(t)

	assert.Equal(t, "gpt-4", req.Model)
	assert.InDelta(t, 0.2, req.Temperature, 1e-9)
	assert.Equal(t, 64, req.MaxTokens)
	assert.True(t, req.Stream)

	var got []string
	for _, m := range req.Messages {
		got = append(got, m.Role+":"+m.Content)
	}
	assert.Equal(t, []string{"system:be brief", "user:first", "assistant:reply", "user:second"}, got)
}

// =============================================================================
// CONTEXT WINDOW TESTS
// =============================================================================

func TestSession_EvictionScenario(t *testing.T) {
	release := make(chan struct{})
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		blockUntil(r, release)
		writeChunks(w, "data: [DONE]\n")
	})
	defer close(release)

	transcript := model.NewTranscript(2)
	transcript.Append(model.NewUserMessage("A"))
	transcript.Append(model.NewAssistantMessage("B"))

	rec := newRecorder()
	s := newTestSession(t, srv.URL, rec, WithTranscript(transcript))

	require.NoError(t, s.Submit("C"))

	// Eviction is visible before the reply arrives.
	assert.Equal(t, []string{"assistant:B", "user:C"}, messageTexts(s.Transcript()))

	req := srv.waitRequest(t)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "B", req.Messages[1].Content)
	assert.Equal(t, "user", req.Messages[2].Role)
	assert.Equal(t, "C", req.Messages[2].Content)
}

func TestSession_ContextLimitOption(t *testing.T) {
	s := New(DefaultConfig(), WithContextLimit(3))
	assert.Equal(t, 3, s.ContextLimit())
	assert.Equal(t, model.DefaultLimit, New(DefaultConfig()).ContextLimit())
}

// =============================================================================
// SINGLE-FLIGHT AND CANCEL TESTS
// =============================================================================

func TestSession_SubmitWhileBusyRejected(t *testing.T) {
	release := make(chan struct{})
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, contentLine("work"))
		blockUntil(r, release)
		writeChunks(w, "data: [DONE]\n")
	})

	rec := newRecorder()
	s := newTestSession(t, srv.URL, rec)

	require.NoError(t, s.Submit("one"))
	assert.Equal(t, "work", rec.waitPartial(t))
	assert.Equal(t, StateStreaming, s.State())

	before := s.Transcript()
	err := s.Submit("two")
	assert.ErrorIs(t, err, ErrRequestRejected)
	assert.ErrorIs(t, s.SubmitDocumentForAnalysis("doc"), ErrRequestRejected)

	assert.Equal(t, messageTexts(before), messageTexts(s.Transcript()))
	assert.Equal(t, "work", s.Partial())
	assert.Equal(t, StateStreaming, s.State())

	close(release)
	s.Wait()

	assert.Equal(t, 1, srv.requestCount())
	assert.Equal(t, []string{"user:one", "assistant:work"}, messageTexts(s.Transcript()))
}

func TestSession_SubmitWhileSendingRejected(t *testing.T) {
	release := make(chan struct{})
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		blockUntil(r, release)
		writeChunks(w, "data: [DONE]\n")
	})
	defer close(release)

	s := newTestSession(t, srv.URL, newRecorder())
	require.NoError(t, s.Submit("one"))
	srv.waitRequest(t)

	assert.Equal(t, StateSending, s.State())
	assert.ErrorIs(t, s.Submit("two"), ErrRequestRejected)
	assert.Len(t, s.Transcript(), 1)
}

func TestSession_CancelDiscardsPartial(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, contentLine("half an ans"))
		<-r.Context().Done()
	})

	rec := newRecorder()
	s := newTestSession(t, srv.URL, rec)

	require.NoError(t, s.Submit("question"))
	assert.Equal(t, "half an ans", rec.waitPartial(t))

	assert.True(t, s.Cancel())
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.Partial())

	s.Wait()

	assert.Equal(t, []string{"user:question"}, messageTexts(s.Transcript()))
	_, _, commits, errs := rec.snapshot()
	assert.Len(t, commits, 1)
	assert.Empty(t, errs, "cancel must not surface an error")
	assert.NoError(t, s.LastError())
}

func TestSession_CancelWhileIdle(t *testing.T) {
	rec := newRecorder()
	s := New(DefaultConfig(), WithObserver(rec), WithLogger(quietLogger()))

	assert.False(t, s.Cancel())
	assert.False(t, s.Cancel())
	states, _, _, _ := rec.snapshot()
	assert.Empty(t, states)
}

func TestSession_SubmitAfterCancel(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			writeChunks(w, contentLine("stale"))
			<-r.Context().Done()
			return
		}
		writeChunks(w, contentLine("fresh"), "data: [DONE]\n")
	})

	rec := newRecorder()
	s := newTestSession(t, srv.URL, rec)

	require.NoError(t, s.Submit("first"))
	rec.waitPartial(t)
	require.True(t, s.Cancel())

	require.NoError(t, s.Submit("second"))
	s.Wait()

	assert.Equal(t, []string{"user:first", "user:second", "assistant:fresh"}, messageTexts(s.Transcript()))
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestSession_HTTPError(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Incorrect API key provided"}}`)
	})

	rec := newRecorder()
	s := newTestSession(t, srv.URL, rec)

	require.NoError(t, s.Submit("hello"))
	s.Wait()

	states, _, _, errs := rec.snapshot()
	require.Len(t, errs, 1)
	var httpErr *cloud.HTTPError
	require.ErrorAs(t, errs[0], &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Status)
	assert.ErrorIs(t, errs[0], cloud.ErrAuthFailed)

	assert.Equal(t, []State{StateSending, StateFailed, StateIdle}, states)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, []string{"user:hello"}, messageTexts(s.Transcript()))
	assert.ErrorIs(t, s.LastError(), cloud.ErrAuthFailed)

	s.ClearError()
	assert.NoError(t, s.LastError())
}

func TestSession_TransportErrorDiscardsPartial(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, contentLine("lost"))
		w.(http.Flusher).Flush()
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
			}
		}
	})

	rec := newRecorder()
	s := newTestSession(t, srv.URL, rec)

	require.NoError(t, s.Submit("hello"))
	s.Wait()

	_, partials, _, errs := rec.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], cloud.ErrTransport)
	assert.Equal(t, []string{"lost"}, partials)
	assert.Empty(t, s.Partial())
	assert.Equal(t, []string{"user:hello"}, messageTexts(s.Transcript()))
}

func TestSession_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := newRecorder()
	s := newTestSession(t, url, rec)

	require.NoError(t, s.Submit("hello"))
	s.Wait()

	_, _, _, errs := rec.snapshot()
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], cloud.ErrTransport))
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_SubmitKeepsTextAsTyped(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, contentLine("ok"), "data: [DONE]\n")
	})
	rec := newRecorder()
	s := newTestSession(t, srv.URL, rec)

	typed := "    func main() {}\n"
	require.NoError(t, s.Submit(typed))
	s.Wait()

	req := srv.waitRequest(t)
	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, typed, last.Content)
	require.NotEmpty(t, s.Transcript())
	assert.Equal(t, typed, s.Transcript()[0].Text)
}

func TestSession_ContentAfterDoneIsKept(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, contentLine("Hel"), "data: [DONE]\n", contentLine("lo"))
	})
	rec := newRecorder()
	s := newTestSession(t, srv.URL, rec)

	require.NoError(t, s.Submit("Hi"))
	s.Wait()

	assert.Equal(t, []string{"user:Hi", "assistant:Hello"}, messageTexts(s.Transcript()))
}

func TestObservers_FanOutInOrder(t *testing.T) {
	var got []string
	record := func(name string) Observer {
		return ObserverFuncs{
			StateChange: func(st State) { got = append(got, name+":state:"+st.String()) },
			Partial:     func(text string) { got = append(got, name+":partial:"+text) },
			Commit:      func(msg model.Message) { got = append(got, name+":commit:"+msg.Text) },
			Error:       func(err error) { got = append(got, name+":error:"+err.Error()) },
		}
	}
	obs := Observers{record("a"), record("b")}

	obs.OnStateChange(StateSending)
	obs.OnPartial("x")
	obs.OnCommit(model.NewAssistantMessage("y"))
	obs.OnError(errors.New("z"))

	assert.Equal(t, []string{
		"a:state:" + StateSending.String(), "b:state:" + StateSending.String(),
		"a:partial:x", "b:partial:x",
		"a:commit:y", "b:commit:y",
		"a:error:z", "b:error:z",
	}, got)
}

func TestSession_EmptyInput(t *testing.T) {
	rec := newRecorder()
	s := New(DefaultConfig(), WithObserver(rec), WithLogger(quietLogger()))

	for _, in := range []string{"", "   ", "\n\t"} {
		assert.ErrorIs(t, s.Submit(in), ErrEmptyInput)
		assert.ErrorIs(t, s.SubmitDocumentForAnalysis(in), ErrEmptyInput)
	}
	assert.Empty(t, s.Transcript())
	assert.Equal(t, StateIdle, s.State())
}

// =============================================================================
// CONFIG AND ANALYSIS TESTS
// =============================================================================

func TestSession_ConfigSnapshotPerRequest(t *testing.T) {
	release := make(chan struct{})
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		blockUntil(r, release)
		writeChunks(w, contentLine("ok"), "data: [DONE]\n")
	})

	s := newTestSession(t, srv.URL, newRecorder())

	require.NoError(t, s.Submit("one"))
	first := srv.waitRequest(t)

	cfg := s.Config()
	cfg.Model = "gpt-4-turbo-preview"
	s.SetConfig(cfg)

	close(release)
	s.Wait()

	assert.Equal(t, DefaultModel, first.Model)
	assert.Equal(t, []string{"user:one", "assistant:ok"}, messageTexts(s.Transcript()))

	require.NoError(t, s.Submit("two"))
	s.Wait()
	assert.Equal(t, "gpt-4-turbo-preview", srv.waitRequest(t).Model)
}

func TestSession_AnalysisPort(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, contentLine("Summary: fine."), "data: [DONE]\n")
	})

	s := newTestSession(t, srv.URL, newRecorder())
	doc := "# Title\n\n  indented body\n"

	analyze := s.AnalysisPort()
	analyze(doc)
	s.Wait()

	req := srv.waitRequest(t)
	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, AnalysisPrompt(doc), last.Content)
	assert.Contains(t, last.Content, doc)

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, AnalysisPrompt(doc), transcript[0].Text)
	assert.Equal(t, "Summary: fine.", transcript[1].Text)

	// Blank documents are ignored by the port.
	analyze("   ")
	assert.Len(t, s.Transcript(), 2)
}

func TestConfig_StringMasksKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "sk-secret-value-9876"
	out := cfg.String()
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "9876")
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:      "idle",
		StateSending:   "sending",
		StateStreaming: "streaming",
		StateFailed:    "failed",
		State(42):      "state(42)",
	}
	for state, want := range tests {
		assert.Equal(t, want, state.String())
	}
	assert.True(t, StateSending.Busy())
	assert.False(t, StateFailed.Busy())
}

func TestState_TextRoundTrip(t *testing.T) {
	var s State
	require.NoError(t, s.UnmarshalText([]byte("streaming")))
	assert.Equal(t, StateStreaming, s)
	assert.Error(t, s.UnmarshalText([]byte("bogus")))
}
