// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/mdnote/internal/model"
	"github.com/jeranaias/mdnote/internal/util"
)

// Transcript is the exported view of a conversation.
type Transcript struct {
	Model      string          `json:"model,omitempty" yaml:"model,omitempty"`
	ExportedAt time.Time       `json:"exported_at" yaml:"exported_at"`
	Messages   []model.Message `json:"messages" yaml:"messages"`
}

// NewTranscript wraps a transcript snapshot for export.
func NewTranscript(modelName string, messages []model.Message) *Transcript {
	if messages == nil {
		messages = []model.Message{}
	}
	return &Transcript{
		Model:      modelName,
		ExportedAt: time.Now(),
		Messages:   messages,
	}
}

// Exporter defines the interface for all export formats.
type Exporter interface {
	Export(t *Transcript, w io.Writer) error
	Extension() string
}

// NewExporter creates an exporter for format.
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "html", "htm":
		return NewHTMLExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: md, json, yaml, html)", format)
	}
}

// FormatFromPath guesses the export format from a file extension.
func FormatFromPath(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return "md"
	}
	return ext
}

// WriteFile exports t to path atomically. An empty format is inferred from
// the extension.
func WriteFile(path, format string, t *Transcript) error {
	if format == "" {
		format = FormatFromPath(path)
	}
	exp, err := NewExporter(format)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := exp.Export(t, &buf); err != nil {
		return fmt.Errorf("failed to export transcript: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// formatTimestamp formats t for human-readable exports.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("January 2, 2006 at 3:04 PM")
}
