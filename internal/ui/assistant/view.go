// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/mdnote/internal/model"
	"github.com/jeranaias/mdnote/internal/session"
	"github.com/jeranaias/mdnote/internal/util"
)

// newRenderer builds a glamour renderer wrapping at width. A nil renderer
// means assistant text is shown raw.
func (m Model) newRenderer(width int) *glamour.TermRenderer {
	style := glamour.WithAutoStyle()
	if m.glamourStyle != "" {
		style = glamour.WithStandardStyle(m.glamourStyle)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(max(width-4, 20)))
	if err != nil {
		return nil
	}
	return r
}

// renderBody renders a committed message body, caching assistant markdown.
func (m Model) renderBody(msg model.Message) string {
	if msg.Role != model.RoleAssistant || m.renderer == nil {
		return m.theme.MessageBody.Render(msg.Text)
	}
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}
	out, err := m.renderer.Render(msg.Text)
	if err != nil {
		out = m.theme.MessageBody.Render(msg.Text)
	} else {
		out = strings.Trim(out, "\n")
	}
	m.rendered[msg.ID] = out
	return out
}

func (m Model) renderLabel(role model.Role) string {
	if role == model.RoleUser {
		return m.theme.UserLabel.Render(role.DisplayName())
	}
	return m.theme.AssistantLabel.Render(role.DisplayName())
}

// renderTranscript renders committed messages followed by the reply in
// progress.
func (m Model) renderTranscript() string {
	var sb strings.Builder
	for _, msg := range m.messages {
		sb.WriteString(m.renderLabel(msg.Role))
		sb.WriteString("\n")
		sb.WriteString(m.renderBody(msg))
		sb.WriteString("\n\n")
	}

	switch {
	case m.state == session.StateSending:
		sb.WriteString(m.renderLabel(model.RoleAssistant))
		sb.WriteString("\n  ")
		sb.WriteString(m.spinner.View())
		sb.WriteString(" ")
		sb.WriteString(m.theme.Notice.Render("waiting for reply"))
		sb.WriteString("\n")
	case m.state == session.StateStreaming:
		sb.WriteString(m.renderLabel(model.RoleAssistant))
		sb.WriteString("\n")
		sb.WriteString(m.theme.Partial.Render(m.partial + "▌"))
		sb.WriteString("\n")
	}

	if sb.Len() == 0 {
		return m.theme.Notice.Render("Ask a question, or /analyze a note. /help lists commands.")
	}
	return sb.String()
}

// updateViewport refreshes the viewport and keeps it pinned to the bottom.
func (m *Model) updateViewport() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("mdnote assistant")
	modelName := m.theme.HeaderModel.Render(m.session.Config().Model)
	badge := m.theme.StateBadge(m.state.String())
	left := title + "  " + modelName
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(badge)-2, 1)
	return m.theme.Header.Render(left + strings.Repeat(" ", gap) + badge)
}

func (m Model) renderToastLine() string {
	if m.toast != nil {
		return m.theme.Toast.Render(util.TruncateWidth(m.toast.text, max(m.width-2, 10)))
	}
	if m.notice != "" && !strings.Contains(m.notice, "\n") {
		return m.theme.Notice.Render(util.TruncateWidth(m.notice, max(m.width, 10)))
	}
	return ""
}

func (m Model) renderStatusBar() string {
	keys := []struct{ key, desc string }{
		{"enter", "send"},
		{"esc", "cancel"},
		{"pgup/pgdn", "scroll"},
		{"/help", "commands"},
		{"ctrl+c", "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, m.theme.ShortcutKey.Render(k.key)+" "+m.theme.ShortcutDesc.Render(k.desc))
	}
	return m.theme.StatusBar.Render(strings.Join(parts, "  "))
}

func (m Model) render() string {
	body := m.viewport.View()
	// Multi-line notices (the /help list) replace the transcript until the
	// next action.
	if strings.Contains(m.notice, "\n") {
		body = lipgloss.NewStyle().Height(m.viewport.Height).Render(m.theme.Notice.Render(m.notice))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderToastLine(),
		m.theme.InputContainer.Render(m.input.View()),
		m.renderStatusBar(),
	)
}
