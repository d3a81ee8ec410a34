// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notes loads document text for the assistant to analyze.
//
// Two sources implement DocumentSource: Client reads notes from the notebook
// server's file API and FileSource reads files from local disk. Both support
// whole documents and 1-based inclusive line ranges.
package notes
