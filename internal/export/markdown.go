// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"io"
	"time"
)

// MarkdownExporter exports transcripts in Markdown format. Message text is
// already Markdown and is written unchanged.
type MarkdownExporter struct{}

// Export exports a transcript to Markdown format.
func (e *MarkdownExporter) Export(t *Transcript, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# Assistant conversation\n\n"); err != nil {
		return err
	}
	if t.Model != "" {
		_, _ = fmt.Fprintf(w, "**Model:** %s  \n", t.Model)
	}
	_, _ = fmt.Fprintf(w, "**Exported:** %s  \n", t.ExportedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(t.Messages))
	_, _ = fmt.Fprintf(w, "---\n\n")

	for i, msg := range t.Messages {
		_, err := fmt.Fprintf(w, "### %s (%s)\n\n%s\n\n",
			msg.Role.DisplayName(), msg.CreatedAt.Format("2006-01-02 15:04:05"), msg.Text)
		if err != nil {
			return err
		}
		if i < len(t.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}
	return nil
}

// Extension returns the file extension for this format.
func (e *MarkdownExporter) Extension() string {
	return "md"
}
