// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/mdnote/internal/config"
	"github.com/jeranaias/mdnote/internal/export"
	"github.com/jeranaias/mdnote/internal/session"
	"github.com/jeranaias/mdnote/internal/storage"
)

// historyFileName is the chat input history inside the config directory.
const historyFileName = "chat_history"

// =============================================================================
// LINE INPUT
// =============================================================================

// LineReader reads one line of user input.
type LineReader interface {
	ReadInput(prompt string) (string, error)
	Close()
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor whose history lives in historyFile.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{
		line:        line,
		historyFile: historyFile,
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line, adding non-blank input to the history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes the history file, owner-only.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

// newLineReader is replaced in tests.
var newLineReader = func() LineReader {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return NewChatCLI(filepath.Join(dir, historyFileName))
}

func newChatCommand(a *app) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal with line editing and history",
		Long: `Chat with the assistant one line at a time.

Replies stream as they arrive. Ctrl+C cancels a reply in progress; at the
prompt it leaves, as do Ctrl+D and /quit.

Commands:
  /model <name>     switch model for the following requests
  /export <path>    write the transcript (format from the extension)
  /save             save the conversation (see mdnote history)
  /quit             leave`,
		Example: `  mdnote chat
  mdnote chat --resume 3f2a`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setupLogging(false); err != nil {
				return err
			}
			return a.runChat(cmd.OutOrStdout(), cmd.ErrOrStderr(), newLineReader(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.resume, "resume", "", "continue a saved conversation (ID or ID prefix)")
	return cmd
}

type chatOptions struct {
	resume string
}

// chatLoop is one interactive chat. conv is set once the conversation has
// been saved or resumed, so later saves update the same entry.
type chatLoop struct {
	a       *app
	out     io.Writer
	errOut  io.Writer
	sess    *session.Session
	printer *streamPrinter
	conv    *storage.Conversation
}

func (a *app) runChat(out, errOut io.Writer, input LineReader, opts chatOptions) error {
	defer input.Close()

	c := &chatLoop{a: a, out: out, errOut: errOut, printer: newStreamPrinter(out, true)}

	var extra []session.Option
	if opts.resume != "" {
		store, err := a.store()
		if err != nil {
			return err
		}
		conv, err := store.Resolve(opts.resume)
		if err != nil {
			return err
		}
		c.conv = conv
		extra = append(extra, session.WithTranscript(conv.Transcript(a.cfg.ContextLimit)))
	}

	c.sess = a.newSession(c.printer, extra...)
	defer c.sess.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer func() {
		signal.Stop(sig)
		close(sig)
	}()
	go func() {
		for range sig {
			if c.sess.Cancel() {
				fmt.Fprintln(errOut, "\n"+WarningStyle.Render("[Canceled]"))
			}
		}
	}()

	fmt.Fprintln(out, TitleStyle.Render("mdnote chat")+" "+DimStyle.Render(c.sess.Config().Model))
	if c.conv != nil {
		fmt.Fprintln(out, DimStyle.Render(fmt.Sprintf("Resumed %q (%d messages)", c.conv.Title, len(c.sess.Transcript()))))
	}
	fmt.Fprintln(out, DimStyle.Render("Ctrl+C cancels a reply, /quit leaves."))

	for {
		line, err := input.ReadInput("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "/") {
			if quit := c.command(text); quit {
				return nil
			}
			continue
		}

		_, _, err = exchange(c.sess, c.printer, func() error { return c.sess.Submit(text) })
		if c.printer.wrote() {
			fmt.Fprintln(out)
		}
		if err != nil {
			DisplayError(errOut, err)
		}
	}
}

// command runs a slash command and reports whether to leave.
func (c *chatLoop) command(text string) bool {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/model":
		cfg := c.sess.Config()
		if len(fields) > 1 {
			cfg.Model = fields[1]
			c.sess.SetConfig(cfg)
		}
		fmt.Fprintln(c.out, keyValue("Model", cfg.Model))
	case "/export":
		if len(fields) != 2 {
			DisplayError(c.errOut, newUsageError("usage: /export <path>"))
			return false
		}
		t := export.NewTranscript(c.sess.Config().Model, c.sess.Transcript())
		if err := export.WriteFile(fields[1], "", t); err != nil {
			DisplayError(c.errOut, err)
			return false
		}
		fmt.Fprintln(c.out, SuccessStyle.Render("Exported")+" "+fields[1])
	case "/save":
		id, err := c.save()
		if err != nil {
			DisplayError(c.errOut, err)
			return false
		}
		fmt.Fprintln(c.out, SuccessStyle.Render("Saved")+" "+id)
	default:
		DisplayError(c.errOut, newUsageError("unknown command %s", fields[0]))
	}
	return false
}

// save writes the current transcript to the conversation store.
func (c *chatLoop) save() (string, error) {
	msgs := c.sess.Transcript()
	if len(msgs) == 0 {
		return "", newUsageError("nothing to save yet")
	}
	store, err := c.a.store()
	if err != nil {
		return "", err
	}
	if c.conv == nil {
		c.conv = &storage.Conversation{}
	}
	c.conv.Model = c.sess.Config().Model
	c.conv.Messages = msgs
	return store.Save(c.conv)
}
