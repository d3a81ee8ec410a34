// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the composed styles of the assistant panel.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	Width  int
	Height int

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderModel lipgloss.Style

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	MessageBody    lipgloss.Style
	Partial        lipgloss.Style

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style

	StatusBar    lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style

	Spinner lipgloss.Style
	Toast   lipgloss.Style
	Notice  lipgloss.Style
}

// NewTheme builds a theme for the current terminal.
func NewTheme() *Theme {
	output := termenv.NewOutput(os.Stdout)
	return newTheme(output.HasDarkBackground(), output.Profile)
}

// NewThemeWithProfile builds a theme for a fixed background and profile.
// Tests use termenv.Ascii to get plain output.
func NewThemeWithProfile(isDark bool, profile termenv.Profile) *Theme {
	return newTheme(isDark, profile)
}

func newTheme(isDark bool, profile termenv.Profile) *Theme {
	lipgloss.SetHasDarkBackground(isDark)
	lipgloss.SetColorProfile(profile)

	t := &Theme{
		IsDark:       isDark,
		ColorProfile: profile,
		Width:        80,
		Height:       24,
	}

	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)
	t.HeaderModel = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.UserLabel = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.AssistantLabel = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)
	t.MessageBody = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(2)
	t.Partial = lipgloss.NewStyle().
		Foreground(TextSecondary).
		PaddingLeft(2)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextMuted).
		Padding(0, 1)
	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan)
	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Amber)
	t.Toast = lipgloss.NewStyle().
		Background(RoseDeep).
		Foreground(TextPrimary).
		Padding(0, 1)
	t.Notice = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	return t
}

// SetSize records the terminal size.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// StateBadge renders a state name in its indicator color.
func (t *Theme) StateBadge(state string) string {
	return lipgloss.NewStyle().Foreground(StateColor(state)).Bold(true).Render("● " + state)
}
