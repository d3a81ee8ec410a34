// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles holds the palette and lipgloss styles of the terminal
assistant panel.

Colors are lipgloss.AdaptiveColor values so the panel reads on light and dark
terminals. A Theme bundles the composed styles; NewTheme detects the terminal
background and color profile through termenv.

	theme := styles.NewTheme()
	fmt.Println(theme.UserLabel.Render("You"))
*/
package styles
