// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaxDocumentSize caps how much text is read for one analysis.
const MaxDocumentSize = 2 * 1024 * 1024

// ErrInvalidRange is returned for a line range that selects nothing.
var ErrInvalidRange = errors.New("invalid line range")

// DocumentSource provides document text by path.
type DocumentSource interface {
	// Content returns the whole document.
	Content(ctx context.Context, path string) (string, error)
	// ContentRange returns lines start through end, 1-based and inclusive.
	ContentRange(ctx context.Context, path string, start, end int) (string, error)
}

// SliceLines returns lines start through end (1-based, inclusive) of text.
// An end past the last line is clamped; end <= 0 means the last line.
func SliceLines(text string, start, end int) (string, error) {
	lines := strings.Split(text, "\n")
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start < 1 || start > end {
		return "", fmt.Errorf("%w: %d-%d of %d lines", ErrInvalidRange, start, end, len(lines))
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

// =============================================================================
// FILE SOURCE
// =============================================================================

// FileSource reads documents from the local filesystem. Relative paths are
// resolved against Root when it is set.
type FileSource struct {
	Root string
}

func (s FileSource) resolve(path string) string {
	if s.Root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.Root, path)
}

// Content implements DocumentSource.
func (s FileSource) Content(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full := s.resolve(path)

	info, err := os.Stat(full)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxDocumentSize {
		return "", fmt.Errorf("%s is too large to analyze (%d bytes, limit %d)", path, info.Size(), MaxDocumentSize)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// ContentRange implements DocumentSource.
func (s FileSource) ContentRange(ctx context.Context, path string, start, end int) (string, error) {
	text, err := s.Content(ctx, path)
	if err != nil {
		return "", err
	}
	return SliceLines(text, start, end)
}
