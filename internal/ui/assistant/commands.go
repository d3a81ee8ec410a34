// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/mdnote/internal/export"
	"github.com/jeranaias/mdnote/internal/notes"
	"github.com/jeranaias/mdnote/internal/storage"
)

// fetchTimeout bounds loading a document for /analyze and /file.
const fetchTimeout = 30 * time.Second

// Command is a parsed slash command.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits "/name arg..." into a Command. It reports false for
// input that is not a slash command.
func ParseCommand(input string) (Command, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return Command{}, false
	}
	fields := strings.Fields(input[1:])
	if len(fields) == 0 {
		return Command{}, false
	}
	return Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}, true
}

// commandHelp lists the slash commands in display order.
var commandHelp = []struct{ usage, desc string }{
	{"/analyze <path> [start end]", "analyze a note, or a line range of it"},
	{"/file <path>", "analyze a local file"},
	{"/model <name>", "switch the model for the next request"},
	{"/export [md|json|yaml|html] <path>", "write the transcript to a file"},
	{"/save", "save the conversation for later"},
	{"/clear-error", "dismiss the last error"},
	{"/help", "show this list"},
	{"/quit", "leave"},
}

// HelpText renders the slash command list.
func HelpText() string {
	var sb strings.Builder
	for _, c := range commandHelp {
		fmt.Fprintf(&sb, "%-36s %s\n", c.usage, c.desc)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m Model) runCommand(input string) (tea.Model, tea.Cmd) {
	cmd, ok := ParseCommand(input)
	if !ok {
		return m.showToast("Unknown command; try /help")
	}

	switch cmd.Name {
	case "analyze":
		return m.cmdAnalyze(cmd.Args)
	case "file":
		return m.cmdFile(cmd.Args)
	case "model":
		return m.cmdModel(cmd.Args)
	case "export":
		return m.cmdExport(cmd.Args)
	case "save":
		return m.cmdSave()
	case "clear-error":
		m.session.ClearError()
		m.toast = nil
		return m, nil
	case "help", "?":
		m.notice = HelpText()
		return m, nil
	case "quit", "exit", "q":
		m.quitting = true
		m.session.Cancel()
		return m, tea.Quit
	default:
		return m.showToast(fmt.Sprintf("Unknown command /%s; try /help", cmd.Name))
	}
}

func (m Model) cmdAnalyze(args []string) (tea.Model, tea.Cmd) {
	if m.notes == nil {
		return m.showToast("No notes server configured")
	}
	if len(args) != 1 && len(args) != 3 {
		return m.showToast("Usage: /analyze <path> [start end]")
	}

	path := args[0]
	start, end := 0, 0
	if len(args) == 3 {
		var err1, err2 error
		start, err1 = strconv.Atoi(args[1])
		end, err2 = strconv.Atoi(args[2])
		if err := errors.Join(err1, err2); err != nil {
			return m.showToast("Line numbers must be integers")
		}
	}

	label := path
	if start > 0 {
		label = fmt.Sprintf("%s:%d-%d", path, start, end)
	}
	m.notice = "Loading " + label
	return m, loadDocument(m.notes, label, path, start, end)
}

func (m Model) cmdFile(args []string) (tea.Model, tea.Cmd) {
	if len(args) != 1 {
		return m.showToast("Usage: /file <path>")
	}
	m.notice = "Loading " + args[0]
	return m, loadDocument(m.files, args[0], args[0], 0, 0)
}

func (m Model) cmdModel(args []string) (tea.Model, tea.Cmd) {
	cfg := m.session.Config()
	if len(args) == 0 {
		m.notice = "Model: " + cfg.Model
		return m, nil
	}
	cfg.Model = args[0]
	m.session.SetConfig(cfg)
	m.notice = "Model set to " + cfg.Model
	return m, nil
}

func (m Model) cmdExport(args []string) (tea.Model, tea.Cmd) {
	var format, path string
	switch len(args) {
	case 1:
		path = args[0]
	case 2:
		format, path = args[0], args[1]
	default:
		return m.showToast("Usage: /export [md|json|yaml|html] <path>")
	}

	t := export.NewTranscript(m.session.Config().Model, m.session.Transcript())
	if err := export.WriteFile(path, format, t); err != nil {
		return m.showToast(err.Error())
	}
	m.notice = fmt.Sprintf("Exported %d messages to %s", len(t.Messages), path)
	return m, nil
}

func (m Model) cmdSave() (tea.Model, tea.Cmd) {
	if m.store == nil {
		return m.showToast("Saving is not available")
	}
	msgs := m.session.Transcript()
	if len(msgs) == 0 {
		return m.showToast("Nothing to save yet")
	}
	if m.saved == nil {
		m.saved = &storage.Conversation{}
	}
	m.saved.Model = m.session.Config().Model
	m.saved.Messages = msgs
	id, err := m.store.Save(m.saved)
	if err != nil {
		return m.showToast(err.Error())
	}
	m.notice = "Saved as " + id
	return m, nil
}

// loadDocument fetches a document off the update loop.
func loadDocument(src notes.DocumentSource, label, path string, start, end int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		var (
			text string
			err  error
		)
		if start > 0 {
			text, err = src.ContentRange(ctx, path, start, end)
		} else {
			text, err = src.Content(ctx, path)
		}
		if err != nil {
			return commandFailedMsg{err: fmt.Errorf("loading %s: %w", label, err)}
		}
		return documentLoadedMsg{label: label, text: text}
	}
}
