// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the mdnote packages.
//
//   - AtomicWriteFile: crash-safe writes for config files and exports
//   - TruncateWidth, Preview: terminal-width aware shortening of message text
package util
