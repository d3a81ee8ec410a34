// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes assistant transcripts to files.
//
// # Supported Formats
//
//   - md: Markdown, message text written unchanged
//   - json: indented JSON of the Transcript
//   - yaml: YAML of the Transcript
//   - html: standalone page, message Markdown converted with goldmark
//
// # Usage
//
//	t := export.NewTranscript(cfg.Model, sess.Transcript())
//	if err := export.WriteFile("chat.md", "", t); err != nil {
//	    return err
//	}
//
// WriteFile infers the format from the extension when none is given and
// replaces the target atomically.
package export
