// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lint

import (
	"strconv"
	"time"
)

// =============================================================================
// SEVERITY
// =============================================================================

// Severity represents the severity level of a lint issue.
type Severity int

const (
	// SeverityInfo represents informational/style issues.
	SeverityInfo Severity = iota

	// SeverityWarning represents issues worth noting that do not fail a run.
	SeverityWarning

	// SeverityError represents issues that fail the run.
	SeverityError
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// SeverityFromString parses a severity string.
//
// Unknown values default to SeverityWarning.
func SeverityFromString(s string) Severity {
	switch s {
	case "error", "err", "fatal", "critical":
		return SeverityError
	case "warning", "warn":
		return SeverityWarning
	case "info", "note", "style", "hint", "help", "convention", "refactor":
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

// =============================================================================
// RESULT
// =============================================================================

// Result contains the outcome of running one linter over one file.
//
// Thread Safety: Immutable after creation by the runner.
type Result struct {
	// Valid is true if no blocking errors were found.
	Valid bool `json:"valid"`

	// Errors are issues with SeverityError that fail the run.
	Errors []Issue `json:"errors"`

	// Warnings are issues with SeverityWarning.
	Warnings []Issue `json:"warnings"`

	// Infos are informational issues (style, hints).
	Infos []Issue `json:"infos,omitempty"`

	// Duration is how long the linter took to run.
	Duration time.Duration `json:"duration"`

	// Tool is which linter produced this result.
	Tool string `json:"tool"`

	// Language is the language that was linted.
	Language string `json:"language"`

	// FilePath is the file that was linted.
	FilePath string `json:"file_path,omitempty"`

	// ToolAvailable indicates whether the linter binary was found.
	// When false the result is empty and Valid is true: an uninstalled
	// tool never fails a run.
	ToolAvailable bool `json:"tool_available"`
}

// HasErrors returns true if there are any blocking errors.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasIssues returns true if there are any issues of any severity.
func (r *Result) HasIssues() bool {
	return len(r.Errors) > 0 || len(r.Warnings) > 0 || len(r.Infos) > 0
}

// AllIssues returns all issues combined.
func (r *Result) AllIssues() []Issue {
	issues := make([]Issue, 0, len(r.Errors)+len(r.Warnings)+len(r.Infos))
	issues = append(issues, r.Errors...)
	issues = append(issues, r.Warnings...)
	issues = append(issues, r.Infos...)
	return issues
}

// IssueCount returns the total number of issues.
func (r *Result) IssueCount() int {
	return len(r.Errors) + len(r.Warnings) + len(r.Infos)
}

// =============================================================================
// ISSUE
// =============================================================================

// Issue represents a single finding from a linter.
//
// Thread Safety: Immutable after creation.
type Issue struct {
	// File is the path to the file containing the issue.
	File string `json:"file"`

	// Line is the 1-indexed line number where the issue occurs.
	Line int `json:"line"`

	// Column is the 1-indexed column. 0 when the linter omits it.
	Column int `json:"column,omitempty"`

	// EndLine is the ending line for multi-line issues.
	EndLine int `json:"end_line,omitempty"`

	// EndColumn is the ending column for the issue.
	EndColumn int `json:"end_column,omitempty"`

	// Rule is the linter rule that triggered (e.g., "errcheck", "E501").
	Rule string `json:"rule"`

	// RuleURL is a link to documentation for the rule.
	RuleURL string `json:"rule_url,omitempty"`

	// Severity is the severity level of the issue.
	Severity Severity `json:"severity"`

	// Message is the human-readable description of the issue.
	Message string `json:"message"`

	// Suggestion is a suggested fix if available.
	Suggestion string `json:"suggestion,omitempty"`

	// CanAutoFix indicates whether this issue can be automatically fixed.
	CanAutoFix bool `json:"can_auto_fix"`

	// Replacement is the suggested replacement text for auto-fix.
	Replacement string `json:"replacement,omitempty"`

	// Tool is the name of the linter that found this issue.
	Tool string `json:"tool,omitempty"`
}

// Location returns a formatted location string (file:line:col).
func (i *Issue) Location() string {
	if i.Column > 0 {
		return i.File + ":" + strconv.Itoa(i.Line) + ":" + strconv.Itoa(i.Column)
	}
	return i.File + ":" + strconv.Itoa(i.Line)
}
