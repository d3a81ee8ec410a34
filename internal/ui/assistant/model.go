// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/mdnote/internal/model"
	"github.com/jeranaias/mdnote/internal/notes"
	"github.com/jeranaias/mdnote/internal/session"
	"github.com/jeranaias/mdnote/internal/storage"
	"github.com/jeranaias/mdnote/internal/ui/styles"
)

// ErrorToastDuration is how long an error toast stays up.
const ErrorToastDuration = 8 * time.Second

// Layout rows outside the viewport: header, toast line, input border and
// line, status bar. Kept one larger than rendered so the view never overflows.
const reservedRows = 6

// Options configures a Model.
type Options struct {
	// Notes serves /analyze. Nil disables the command.
	Notes notes.DocumentSource
	// Files serves /file. Defaults to the local filesystem.
	Files notes.DocumentSource
	// Theme defaults to styles.NewTheme().
	Theme *styles.Theme
	// GlamourStyle is a glamour standard style name; "" auto-detects.
	GlamourStyle string
	// Store serves /save. Nil disables the command.
	Store *storage.Store
	// Saved is the conversation the session was resumed from, if any.
	Saved *storage.Conversation
}

type toast struct {
	id   int
	text string
}

// Model is the assistant panel.
type Model struct {
	session *session.Session
	notes   notes.DocumentSource
	files   notes.DocumentSource
	theme   *styles.Theme
	store   *storage.Store
	saved   *storage.Conversation

	glamourStyle string
	renderer     *glamour.TermRenderer
	rendered     map[string]string // message ID -> rendered body

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	state    session.State
	partial  string
	messages []model.Message

	notice   string
	toast    *toast
	toastSeq int

	width    int
	height   int
	quitting bool
}

// New creates the panel for sess. Messages already in the transcript are
// shown immediately.
func New(sess *session.Session, opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme()
	}
	files := opts.Files
	if files == nil {
		files = notes.FileSource{}
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask the assistant, or /help"
	ti.CharLimit = 8192
	ti.Focus()

	vp := viewport.New(80, 18)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = theme.Spinner

	m := Model{
		session:      sess,
		notes:        opts.Notes,
		files:        files,
		theme:        theme,
		store:        opts.Store,
		saved:        opts.Saved,
		glamourStyle: opts.GlamourStyle,
		rendered:     make(map[string]string),
		viewport:     vp,
		input:        ti,
		spinner:      sp,
		state:        sess.State(),
		messages:     sess.Transcript(),
		width:        80,
		height:       24,
	}
	m.renderer = m.newRenderer(m.width)
	m.updateViewport()
	return m
}

// Init starts the cursor blink and spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StateMsg:
		m.state = msg.State
		if !msg.State.Busy() {
			m.partial = ""
		}
		m.updateViewport()
		return m, nil

	case PartialMsg:
		// Late fragments from a canceled exchange are not shown.
		if m.state.Busy() {
			m.partial = msg.Text
			m.updateViewport()
		}
		return m, nil

	case CommitMsg:
		m.messages = append(m.messages, msg.Message)
		if limit := m.session.ContextLimit(); len(m.messages) > limit {
			m.messages = m.messages[len(m.messages)-limit:]
		}
		if msg.Message.Role == model.RoleAssistant {
			m.partial = ""
		}
		m.updateViewport()
		return m, nil

	case ErrorMsg:
		return m.showToast(msg.Err.Error())

	case toastDismissMsg:
		if m.toast != nil && m.toast.id == msg.id {
			m.toast = nil
		}
		return m, nil

	case ConfigReloadedMsg:
		m.session.SetConfig(msg.Config)
		m.notice = "Configuration reloaded (model " + msg.Config.Model + ")"
		return m, nil

	case documentLoadedMsg:
		return m.submitDocument(msg)

	case commandFailedMsg:
		return m.showToast(msg.err.Error())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.state == session.StateSending {
			m.updateViewport()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the panel.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.render()
}

// =============================================================================
// HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	widthChanged := msg.Width != m.width
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	m.viewport.Width = max(msg.Width, 1)
	m.viewport.Height = max(msg.Height-reservedRows, 1)

	// Prompt plus container padding.
	m.input.Width = max(msg.Width-6, 10)

	if widthChanged {
		m.renderer = m.newRenderer(msg.Width)
		m.rendered = make(map[string]string)
	}
	m.updateViewport()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "ctrl+q":
		m.quitting = true
		m.session.Cancel()
		return m, tea.Quit

	case "esc":
		if m.session.Cancel() {
			m.partial = ""
			m.state = m.session.State()
			m.notice = "Reply canceled"
			m.updateViewport()
		}
		return m, nil

	case "enter":
		return m.handleSubmit()

	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	if strings.HasPrefix(text, "/") {
		m.input.Reset()
		return m.runCommand(text)
	}

	if err := m.session.Submit(text); err != nil {
		return m.showSubmitError(err)
	}
	m.input.Reset()
	m.notice = ""
	m.state = m.session.State()
	return m, nil
}

func (m Model) submitDocument(msg documentLoadedMsg) (tea.Model, tea.Cmd) {
	if err := m.session.SubmitDocumentForAnalysis(msg.text); err != nil {
		return m.showSubmitError(err)
	}
	m.notice = "Analyzing " + msg.label
	m.state = m.session.State()
	return m, nil
}

func (m Model) showSubmitError(err error) (tea.Model, tea.Cmd) {
	switch {
	case errors.Is(err, session.ErrRequestRejected):
		return m.showToast("A reply is still in progress; press Esc to cancel it")
	case errors.Is(err, session.ErrEmptyInput):
		return m.showToast("Nothing to send")
	default:
		return m.showToast(err.Error())
	}
}

func (m Model) showToast(text string) (tea.Model, tea.Cmd) {
	m.toastSeq++
	id := m.toastSeq
	m.toast = &toast{id: id, text: text}
	return m, tea.Tick(ErrorToastDuration, func(time.Time) tea.Msg {
		return toastDismissMsg{id: id}
	})
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the last state the panel observed.
func (m Model) State() session.State {
	return m.state
}

// Messages returns the transcript as the panel shows it.
func (m Model) Messages() []model.Message {
	return m.messages
}

// Toast returns the visible toast text, or "".
func (m Model) Toast() string {
	if m.toast == nil {
		return ""
	}
	return m.toast.text
}

// Notice returns the status notice, or "".
func (m Model) Notice() string {
	return m.notice
}
