// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package testsel

import (
	"errors"
	"time"

	"github.com/harborworks/breakwater/services/checks/config"
)

var (
	// ErrInvalidInput indicates a nil or malformed argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoConvention indicates the language has no test convention.
	ErrNoConvention = errors.New("no test convention")
)

// Outcome records one test-mode execution for one edited file.
//
// Thread Safety: Immutable after creation by the dispatcher.
type Outcome struct {
	// Mode is the test-selection mode this outcome belongs to.
	Mode config.TestMode `json:"mode"`

	// Skipped is true when no test command ran for this mode.
	Skipped bool `json:"skipped"`

	// SkipReason explains a skip ("no test artifact", "runner not
	// installed", ...). Empty when not skipped.
	SkipReason string `json:"skip_reason,omitempty"`

	// MissingArtifact is true when focused mode found no test file and
	// require_tests turned that into a failure.
	MissingArtifact bool `json:"missing_artifact,omitempty"`

	// Candidates lists the focused-mode paths that were tried. Populated
	// for focused outcomes so a missing-artifact report can show where a
	// test was expected.
	Candidates []string `json:"candidates,omitempty"`

	// Target is what the command ran against (test file, directory, or
	// empty for all mode).
	Target string `json:"target,omitempty"`

	// Argv is the command that ran (or would have run).
	Argv []string `json:"argv,omitempty"`

	// Passed is true when the command ran and exited zero.
	Passed bool `json:"passed"`

	// Output is the combined tool output, trimmed for reporting.
	Output string `json:"output,omitempty"`

	// Duration is how long the command ran.
	Duration time.Duration `json:"duration"`
}

// Failed reports whether this outcome should fail the run. Skipped
// outcomes never fail; a missing artifact under require_tests does.
func (o *Outcome) Failed() bool {
	if o.MissingArtifact {
		return true
	}
	return !o.Skipped && !o.Passed
}
