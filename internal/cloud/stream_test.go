// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
)

// contentLine builds one SSE line carrying content.
func contentLine(content string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n", content)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func feedAll(d *FrameDecoder, chunks ...string) string {
	var out strings.Builder
	for _, c := range chunks {
		for _, f := range d.Feed([]byte(c)) {
			out.WriteString(f)
		}
	}
	return out.String()
}

// =============================================================================
// FRAME DECODER TESTS
// =============================================================================

func TestFrameDecoder_Ordering(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{
			name:   "single chunk",
			chunks: []string{contentLine("a") + contentLine("b") + contentLine("c")},
			want:   "abc",
		},
		{
			name:   "one line per chunk",
			chunks: []string{contentLine("The "), contentLine("quick "), contentLine("fox")},
			want:   "The quick fox",
		},
		{
			name:   "done and malformed contribute nothing",
			chunks: []string{contentLine("x"), "data: {oops\n", contentLine("y"), "data: [DONE]\n"},
			want:   "xy",
		},
		{
			name:   "non data lines ignored",
			chunks: []string{": keep-alive\n", "event: message\n", "\n", contentLine("ok")},
			want:   "ok",
		},
		{
			name:   "crlf line endings",
			chunks: []string{"data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\r\n", "data: [DONE]\r\n"},
			want:   "hi",
		},
		{
			name:   "empty delta and empty choices",
			chunks: []string{"data: {\"choices\":[{\"delta\":{}}]}\n", "data: {\"choices\":[]}\n", contentLine("z")},
			want:   "z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewFrameDecoder(quietLogger())
			if got := feedAll(d, tt.chunks...); got != tt.want {
				t.Errorf("decoded %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFrameDecoder_DoneNeverAddsTextOrErrors(t *testing.T) {
	d := NewFrameDecoder(quietLogger())

	if got := d.Feed([]byte(contentLine("before"))); len(got) != 1 || got[0] != "before" {
		t.Fatalf("Feed() = %v", got)
	}
	if got := d.Feed([]byte("data: [DONE]\n")); len(got) != 0 {
		t.Errorf("[DONE] produced fragments %v", got)
	}
	if !d.Done() {
		t.Error("Done() = false after [DONE]")
	}
	if got := d.Feed([]byte("data: [DONE]\n")); len(got) != 0 {
		t.Errorf("second [DONE] produced fragments %v", got)
	}
	if got := d.Feed([]byte(contentLine("after"))); len(got) != 1 || got[0] != "after" {
		t.Errorf("line after [DONE] = %v, want [after]", got)
	}
	if d.Skipped() != 0 {
		t.Errorf("Skipped() = %d, want 0", d.Skipped())
	}
}

func TestFrameDecoder_MalformedFrameSkipped(t *testing.T) {
	d := NewFrameDecoder(quietLogger())
	got := feedAll(d,
		contentLine("valid one "),
		"data: {\"choices\":[{\"delta\":{\"content\":\"broken\"}\n",
		contentLine("valid two"),
	)

	if got != "valid one valid two" {
		t.Errorf("decoded %q", got)
	}
	if d.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", d.Skipped())
	}
}

func TestFrameDecoder_SplitChunk(t *testing.T) {
	stream := contentLine("Hello, ") + contentLine("world") + "data: [DONE]\n"

	whole := feedAll(NewFrameDecoder(quietLogger()), stream)

	// Every possible two-way split must decode identically.
	for i := 1; i < len(stream); i++ {
		d := NewFrameDecoder(quietLogger())
		first := d.Feed([]byte(stream[:i]))
		complete := stream[:strings.LastIndex(stream[:i], "\n")+1]
		if want := feedAll(NewFrameDecoder(quietLogger()), complete); strings.Join(first, "") != want {
			t.Fatalf("split at %d: first half produced %q, want only complete lines %q", i, strings.Join(first, ""), want)
		}
		got := strings.Join(first, "") + strings.Join(d.Feed([]byte(stream[i:])), "")
		if got != whole {
			t.Fatalf("split at %d decoded %q, want %q", i, got, whole)
		}
		if d.Skipped() != 0 {
			t.Fatalf("split at %d skipped %d frames", i, d.Skipped())
		}
	}
}

func TestFrameDecoder_PartialLineWaits(t *testing.T) {
	d := NewFrameDecoder(quietLogger())
	line := contentLine("late")
	head, tail := line[:10], line[10:]

	if got := d.Feed([]byte(head)); len(got) != 0 {
		t.Fatalf("partial line produced %v", got)
	}
	if d.Pending() != len(head) {
		t.Errorf("Pending() = %d, want %d", d.Pending(), len(head))
	}
	if d.Skipped() != 0 {
		t.Error("partial line was parsed")
	}

	got := d.Feed([]byte(tail))
	if len(got) != 1 || got[0] != "late" {
		t.Errorf("completed line produced %v", got)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d after full line", d.Pending())
	}
}

func TestFrameDecoder_HelloScenario(t *testing.T) {
	d := NewFrameDecoder(quietLogger())
	var partial strings.Builder
	var progress []string

	chunks := [][]string{
		{"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n"},
		{"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n", "data: [DONE]\n"},
	}
	for _, group := range chunks {
		for _, c := range group {
			for _, f := range d.Feed([]byte(c)) {
				partial.WriteString(f)
				progress = append(progress, partial.String())
			}
		}
	}

	if len(progress) != 2 || progress[0] != "Hel" || progress[1] != "Hello" {
		t.Errorf("progress = %v, want [Hel Hello]", progress)
	}
	if !d.Done() {
		t.Error("Done() = false")
	}
}

// =============================================================================
// CONSUME TESTS
// =============================================================================

// chunkReader returns one chunk per Read call.
type chunkReader struct {
	chunks [][]byte
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestConsume_DropsUnterminatedTail(t *testing.T) {
	c := NewClient("", "").WithLogger(quietLogger())
	r := &chunkReader{chunks: [][]byte{
		[]byte(contentLine("kept")),
		[]byte(`data: {"choices":[{"delta":{"content":"lost"}}]}`),
	}}

	got, err := c.Consume(t.Context(), r, nil)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if got != "kept" {
		t.Errorf("Consume() = %q, want %q", got, "kept")
	}
}

func TestConsume_ReadsPastDone(t *testing.T) {
	c := NewClient("", "").WithLogger(quietLogger())
	r := &chunkReader{chunks: [][]byte{
		[]byte(contentLine("Hel") + "data: [DONE]\n"),
		[]byte(contentLine("lo")),
	}}

	var fragments []string
	got, err := c.Consume(t.Context(), r, func(f string) { fragments = append(fragments, f) })
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if got != "Hello" {
		t.Errorf("Consume() = %q, want %q", got, "Hello")
	}
	if len(fragments) != 2 {
		t.Errorf("fragments = %v, want 2", fragments)
	}
}

func TestConsume_LargeBody(t *testing.T) {
	var stream bytes.Buffer
	var want strings.Builder
	for i := 0; i < 2000; i++ {
		s := fmt.Sprintf("tok%d ", i)
		stream.WriteString(contentLine(s))
		want.WriteString(s)
	}
	stream.WriteString("data: [DONE]\n")

	c := NewClient("", "").WithLogger(quietLogger())
	var calls int
	got, err := c.Consume(t.Context(), &stream, func(string) { calls++ })
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if got != want.String() {
		t.Error("large stream decoded incorrectly")
	}
	if calls != 2000 {
		t.Errorf("onFragment called %d times, want 2000", calls)
	}
}
