// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

const (
	// dataPrefix starts every payload-carrying line.
	dataPrefix = "data: "

	// doneSentinel is the payload that marks the end of a stream.
	doneSentinel = "[DONE]"

	// readBufferSize is the size of each raw read from the body.
	readBufferSize = 4 * 1024
)

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk represents one decoded "data:" payload.
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// GetContent returns the content from the first choice's delta.
func (c *StreamChunk) GetContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// =============================================================================
// FRAME DECODER
// =============================================================================

// FrameDecoder extracts content fragments from raw body chunks.
//
// Chunks are appended to a rolling buffer that is split on '\n'. Only
// complete lines are interpreted; a trailing partial line waits for more
// bytes. Lines without the "data: " prefix are ignored, as are payloads
// that fail to parse. "data: [DONE]" contributes nothing; lines after it are
// still interpreted.
//
// A FrameDecoder is not safe for concurrent use.
type FrameDecoder struct {
	buf     []byte
	done    bool
	skipped int
	logger  *slog.Logger
}

// NewFrameDecoder creates a decoder. A nil logger uses slog.Default.
func NewFrameDecoder(logger *slog.Logger) *FrameDecoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameDecoder{logger: logger}
}

// Feed appends chunk to the buffer and returns the fragments of every line
// it completed, in order. Empty fragments are not returned.
func (d *FrameDecoder) Feed(chunk []byte) []string {
	d.buf = append(d.buf, chunk...)

	var fragments []string
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]

		if fragment, ok := d.decodeLine(line); ok {
			fragments = append(fragments, fragment)
		}
	}

	// Drop the backing array once every byte has been consumed.
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return fragments
}

// decodeLine interprets one complete line.
func (d *FrameDecoder) decodeLine(line []byte) (string, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return "", false
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if string(payload) == doneSentinel {
		d.done = true
		return "", false
	}

	var chunk StreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		d.skipped++
		d.logger.Debug("skipping malformed stream frame", "error", err, "bytes", len(payload))
		return "", false
	}

	content := chunk.GetContent()
	return content, content != ""
}

// Done reports whether the [DONE] sentinel has been seen.
func (d *FrameDecoder) Done() bool {
	return d.done
}

// Skipped returns how many malformed frames were dropped.
func (d *FrameDecoder) Skipped() int {
	return d.skipped
}

// Pending returns the number of buffered bytes that do not yet form a line.
// At end of data these bytes are dropped.
func (d *FrameDecoder) Pending() int {
	return len(d.buf)
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// Consume runs the sequential pull loop over an already opened stream body.
// Reading stops at end of data; bytes after the last newline are
// dropped. Consume does not close body.
func (c *Client) Consume(ctx context.Context, body io.Reader, onFragment func(string)) (string, error) {
	decoder := NewFrameDecoder(c.logger)
	var text strings.Builder
	buf := make([]byte, readBufferSize)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, fragment := range decoder.Feed(buf[:n]) {
				text.WriteString(fragment)
				if onFragment != nil {
					onFragment(fragment)
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: reading stream: %w", ErrTransport, err)
		}
	}

	if pending := decoder.Pending(); pending > 0 {
		c.logger.Debug("dropping unterminated stream line", "bytes", pending)
	}
	if skipped := decoder.Skipped(); skipped > 0 {
		c.logger.Debug("stream finished with skipped frames", "skipped", skipped)
	}
	return text.String(), nil
}
