// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mdnote/internal/notes"
	"github.com/jeranaias/mdnote/internal/session"
)

type analyzeOptions struct {
	oneShotOptions
	note  string
	file  string
	start int
	end   int
}

func newAnalyzeCommand(a *app) *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Summarize a note or file and suggest improvements",
		Example: `  mdnote analyze --note projects/plan.md
  mdnote analyze --note projects/plan.md --start 10 --end 40
  mdnote analyze --file ./README.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.note == "") == (opts.file == "") {
				return newUsageError("exactly one of --note or --file is required")
			}
			if opts.end > 0 && opts.start == 0 {
				return newUsageError("--end requires --start")
			}
			if err := a.setupLogging(false); err != nil {
				return err
			}

			var src notes.DocumentSource = a.notes()
			path := opts.note
			if opts.file != "" {
				src = notes.FileSource{}
				path = opts.file
			}

			text, err := loadDocument(cmd.Context(), src, path, opts.start, opts.end)
			if err != nil {
				return err
			}
			a.logger.Debug("document loaded", "path", path, "bytes", len(text))

			return a.runOneShot(cmd, "analyze", opts.oneShotOptions, func(s *session.Session) error {
				return s.SubmitDocumentForAnalysis(text)
			})
		},
	}
	cmd.Flags().StringVar(&opts.note, "note", "", "note path on the notes server")
	cmd.Flags().StringVar(&opts.file, "file", "", "local file path")
	cmd.Flags().IntVar(&opts.start, "start", 0, "first line (1-based)")
	cmd.Flags().IntVar(&opts.end, "end", 0, "last line, inclusive (default: end of document)")
	opts.bind(cmd)
	return cmd
}

// loadDocument fetches a whole document, or lines start through end of it.
func loadDocument(ctx context.Context, src notes.DocumentSource, path string, start, end int) (string, error) {
	if start > 0 {
		return src.ContentRange(ctx, path, start, end)
	}
	return src.Content(ctx, path)
}
