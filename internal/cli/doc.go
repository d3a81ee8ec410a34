// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the mdnote command tree.
//
// # Commands
//
//   - (none), tui: full-screen assistant panel
//   - chat: line-edited REPL with history
//   - ask: one-shot question, streamed to stdout
//   - analyze: analyze a note, a line range of it, or a local file
//   - serve: HTTP front for browser-hosted panels
//   - config: show, get, set and locate the configuration
//
// Every command loads the configuration the same way: the config file, then
// MDNOTE_* environment variables, then the global flags.
//
//	os.Exit(cli.Execute())
package cli
