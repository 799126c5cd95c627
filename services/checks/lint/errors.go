// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lint

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates a nil or malformed argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedLanguage indicates no linter exists for the file type.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrToolTimeout indicates the linter exceeded its timeout.
	ErrToolTimeout = errors.New("tool timed out")

	// ErrToolFailed indicates the linter process failed to run.
	ErrToolFailed = errors.New("tool failed")

	// ErrParseOutput indicates the linter's output could not be parsed.
	ErrParseOutput = errors.New("parse output")
)

// ToolError wraps a tool failure with its identity and captured stderr.
type ToolError struct {
	Tool     string
	Language string
	Err      error
	Output   string
}

// NewToolError creates a ToolError.
func NewToolError(tool, language string, err error) *ToolError {
	return &ToolError{Tool: tool, Language: language, Err: err}
}

// WithOutput attaches captured stderr for diagnostics.
func (e *ToolError) WithOutput(output string) *ToolError {
	e.Output = output
	return e
}

func (e *ToolError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s (%s): %v: %s", e.Tool, e.Language, e.Err, e.Output)
	}
	return fmt.Sprintf("%s (%s): %v", e.Tool, e.Language, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
