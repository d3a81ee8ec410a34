// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/mdnote/internal/cloud"
	"github.com/jeranaias/mdnote/internal/config"
	"github.com/jeranaias/mdnote/internal/notes"
	"github.com/jeranaias/mdnote/internal/session"
	"github.com/jeranaias/mdnote/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError is a bad invocation: wrong arguments or flags.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// newUsageError formats a UsageError.
func newUsageError(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// ConfigError wraps a configuration load or save failure.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// ExitCode maps an error onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		usageErr  *UsageError
		configErr *ConfigError
		validErrs config.ValidateErrors
	)
	switch {
	case errors.As(err, &usageErr), errors.Is(err, session.ErrEmptyInput):
		return ExitUsageError
	case errors.As(err, &configErr), errors.As(err, &validErrs):
		return ExitConfigError
	case errors.Is(err, cloud.ErrAuthFailed):
		return ExitAuthError
	case errors.Is(err, cloud.ErrModelNotFound), notes.IsNotFound(err), errors.Is(err, storage.ErrNotFound):
		return ExitNotFoundError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, cloud.ErrTransport), errors.Is(err, cloud.ErrRateLimited):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}

// errorHint suggests a fix for well-known failures.
func errorHint(err error) string {
	switch {
	case errors.Is(err, cloud.ErrAuthFailed):
		return "Check api_key in the config file or set MDNOTE_API_KEY."
	case errors.Is(err, cloud.ErrModelNotFound):
		return "Check the model name with: mdnote config get model"
	case errors.Is(err, cloud.ErrRateLimited):
		return "The completion service is rate limiting requests; wait and retry."
	case errors.Is(err, cloud.ErrTransport):
		return "Check server_url and your network connection."
	case notes.IsNotFound(err):
		return "Check the note path relative to the notes server root."
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrAmbiguousID):
		return "List saved conversations with: mdnote history list"
	}
	return ""
}

// DisplayError prints err and any hint to w.
func DisplayError(w io.Writer, err error) {
	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+err.Error())
	if hint := errorHint(err); hint != "" {
		fmt.Fprintln(w, DimStyle.Render(hint))
	}
}
