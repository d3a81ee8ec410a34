// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter writes a standalone HTML page. Message Markdown is converted
// with goldmark and fenced code is highlighted with chroma; raw HTML inside
// messages is not passed through.
type HTMLExporter struct {
	markdown goldmark.Markdown
}

// NewHTMLExporter creates an HTML exporter.
func NewHTMLExporter() *HTMLExporter {
	return &HTMLExporter{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(newCodeHighlighter("github").option()),
		),
	}
}

type htmlMessage struct {
	Role  string
	Label string
	Time  string
	Body  template.HTML
}

type htmlPage struct {
	Model    string
	Exported string
	Count    int
	Messages []htmlMessage
}

// Export renders t as HTML.
func (e *HTMLExporter) Export(t *Transcript, w io.Writer) error {
	page := htmlPage{
		Model:    t.Model,
		Exported: formatTimestamp(t.ExportedAt),
		Count:    len(t.Messages),
		Messages: make([]htmlMessage, 0, len(t.Messages)),
	}
	for _, msg := range t.Messages {
		var buf bytes.Buffer
		if err := e.markdown.Convert([]byte(msg.Text), &buf); err != nil {
			return fmt.Errorf("converting message %s: %w", msg.ID, err)
		}
		page.Messages = append(page.Messages, htmlMessage{
			Role:  strings.ToLower(msg.Role.String()),
			Label: msg.Role.DisplayName(),
			Time:  formatTimestamp(msg.CreatedAt),
			// goldmark escapes raw HTML unless WithUnsafe is set.
			Body: template.HTML(buf.String()),
		})
	}
	return htmlTemplate.Execute(w, page)
}

// Extension returns the file extension for this format.
func (e *HTMLExporter) Extension() string {
	return "html"
}

var htmlTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta name="generator" content="mdnote">
    <title>Assistant conversation</title>
    <style>
        :root {
            --bg: #ffffff; --panel: #f7f8fa; --text: #24292e; --muted: #6a737d;
            --border: #e1e4e8; --user: #0366d6; --assistant: #6f42c1; --code: #f6f8fa;
        }
        @media (prefers-color-scheme: dark) {
            :root {
                --bg: #1a1b26; --panel: #24283b; --text: #c0caf5; --muted: #565f89;
                --border: #414868; --user: #7aa2f7; --assistant: #bb9af7; --code: #1a1b26;
            }
        }
        body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; line-height: 1.6;
               color: var(--text); background: var(--bg); margin: 0; padding: 20px; }
        .container { max-width: 900px; margin: 0 auto; background: var(--panel); border-radius: 12px; }
        header { padding: 24px 32px; border-bottom: 2px solid var(--border); }
        header h1 { margin: 0 0 8px; font-size: 24px; }
        .metadata { color: var(--muted); font-size: 14px; display: flex; gap: 16px; flex-wrap: wrap; }
        .message { padding: 20px 32px; border-bottom: 1px solid var(--border); }
        .message-header { display: flex; justify-content: space-between; font-size: 14px; margin-bottom: 8px; }
        .user-message .role-label { color: var(--user); font-weight: 600; }
        .assistant-message .role-label { color: var(--assistant); font-weight: 600; }
        .timestamp { color: var(--muted); }
        pre { background: var(--code); padding: 12px; border-radius: 6px; overflow-x: auto; }
        code { font-family: "SF Mono", "Fira Code", monospace; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>Assistant conversation</h1>
            <div class="metadata">
                {{- if .Model}}<span><strong>Model:</strong> {{.Model}}</span>{{end}}
                <span><strong>Exported:</strong> {{.Exported}}</span>
                <span><strong>Messages:</strong> {{.Count}}</span>
            </div>
        </header>
        <main>
        {{- range .Messages}}
            <div class="message {{.Role}}-message">
                <div class="message-header">
                    <span class="role-label">{{.Label}}</span>
                    <span class="timestamp">{{.Time}}</span>
                </div>
                <div class="message-body">{{.Body}}</div>
            </div>
        {{- end}}
        </main>
    </div>
</body>
</html>
`))
