// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Reply wrapping falls back to fallbackWidth when the output is not a
// terminal and never goes below minWidth.
const (
	fallbackWidth = 80
	minWidth      = 40
)

// fdOf returns the descriptor behind w when w is an open file.
func fdOf(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return 0, false
	}
	return int(f.Fd()), true
}

// isTerminal reports whether w writes to a terminal.
func isTerminal(w io.Writer) bool {
	fd, ok := fdOf(w)
	return ok && term.IsTerminal(fd)
}

// TerminalWidth is the column count used to wrap replies and history rows
// written to w.
func TerminalWidth(w io.Writer) int {
	fd, ok := fdOf(w)
	if !ok {
		return fallbackWidth
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return fallbackWidth
	}
	return max(width, minWidth)
}

// outputProfile picks the color profile for command output. NO_COLOR wins
// over FORCE_COLOR; without either, color needs a terminal.
func outputProfile(getenv func(string) string, tty bool) termenv.Profile {
	switch {
	case getenv("NO_COLOR") != "":
		return termenv.Ascii
	case getenv("FORCE_COLOR") != "", tty:
		return termenv.ColorProfile()
	default:
		return termenv.Ascii
	}
}
