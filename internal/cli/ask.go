// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/jeranaias/mdnote/internal/model"
	"github.com/jeranaias/mdnote/internal/session"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// renderMarkdown renders content for a terminal of the given width. The raw
// text is returned if rendering fails.
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		return content + "\n"
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content + "\n"
	}
	return rendered
}

// =============================================================================
// ONE-SHOT EXCHANGES
// =============================================================================

// oneShotOptions controls how ask and analyze print the reply.
type oneShotOptions struct {
	json bool
	raw  bool
}

func (o *oneShotOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.json, "json", false, "print the reply as JSON")
	cmd.Flags().BoolVar(&o.raw, "raw", false, "stream raw text even on a terminal")
}

// replyData is the JSON payload of a one-shot reply.
type replyData struct {
	Model   string         `json:"model"`
	Message *model.Message `json:"message"`
}

// runOneShot performs a single exchange. On a terminal the finished reply is
// rendered as Markdown; otherwise it is streamed as it arrives.
func (a *app) runOneShot(cmd *cobra.Command, name string, opts oneShotOptions, submit func(*session.Session) error) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	render := !opts.json && !opts.raw && isTerminal(out)

	printer := newStreamPrinter(out, !opts.json && !render)
	sess := a.newSession(printer)
	defer sess.Close()

	ctx := cmd.Context()
	stop := context.AfterFunc(ctx, func() { sess.Cancel() })
	defer stop()

	if render {
		fmt.Fprintln(errOut, DimStyle.Render("Thinking..."))
	}

	reply, ok, err := exchange(sess, printer, func() error { return submit(sess) })
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		if printer.wrote() {
			fmt.Fprintln(out)
		}
		if opts.json {
			NewJSONErrorResponse(name, err).Write(out)
		}
		return err
	}

	switch {
	case opts.json:
		data := replyData{Model: sess.Config().Model}
		if ok {
			data.Message = &reply
		}
		return NewJSONResponse(name, data).Write(out)
	case render:
		fmt.Fprint(out, renderMarkdown(reply.Text, TerminalWidth(out)))
	case printer.wrote():
		fmt.Fprintln(out)
	}
	return nil
}

// =============================================================================
// ASK COMMAND
// =============================================================================

func newAskCommand(a *app) *cobra.Command {
	var opts oneShotOptions
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the reply",
		Example: `  mdnote ask "How do I link between notes?"
  mdnote ask --json "Summarize Markdown tables" | jq .data.message.text`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setupLogging(false); err != nil {
				return err
			}
			question := strings.Join(args, " ")
			return a.runOneShot(cmd, "ask", opts, func(s *session.Session) error {
				return s.Submit(question)
			})
		},
	}
	opts.bind(cmd)
	return cmd
}
