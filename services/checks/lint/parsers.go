// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lint

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Parser converts a tool's raw JSON output into issues.
type Parser func(output []byte) ([]Issue, error)

// parsers maps catalog parser names to implementations.
var parsers = map[string]Parser{
	"golangci": parseGolangCIOutput,
	"ruff":     parseRuffOutput,
	"eslint":   parseESLintOutput,
	"clippy":   parseClippyOutput,
	"rubocop":  parseRubocopOutput,
}

// GetParser returns the parser registered under a catalog name, or nil.
func GetParser(name string) Parser {
	return parsers[name]
}

// =============================================================================
// GOLANGCI-LINT
// =============================================================================

// golangciOutput mirrors golangci-lint's JSON output format.
type golangciOutput struct {
	Issues []struct {
		FromLinter string   `json:"FromLinter"`
		Text       string   `json:"Text"`
		Severity   string   `json:"Severity"`
		Pos        struct {
			Filename string `json:"Filename"`
			Line     int    `json:"Line"`
			Column   int    `json:"Column"`
		} `json:"Pos"`
		LineRange *struct {
			From int `json:"From"`
			To   int `json:"To"`
		} `json:"LineRange"`
		Replacement *struct {
			NeedOnlyDelete bool     `json:"NeedOnlyDelete"`
			NewLines       []string `json:"NewLines"`
		} `json:"Replacement"`
		SourceLines []string `json:"SourceLines"`
	} `json:"Issues"`
}

func parseGolangCIOutput(output []byte) ([]Issue, error) {
	var parsed golangciOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("golangci output: %w", err)
	}

	issues := make([]Issue, 0, len(parsed.Issues))
	for _, raw := range parsed.Issues {
		issue := Issue{
			File:     raw.Pos.Filename,
			Line:     raw.Pos.Line,
			Column:   raw.Pos.Column,
			Rule:     raw.FromLinter,
			Message:  raw.Text,
			Severity: SeverityFromString(raw.Severity),
			Tool:     "golangci-lint",
		}
		if raw.LineRange != nil {
			issue.EndLine = raw.LineRange.To
		}
		if raw.Replacement != nil {
			issue.CanAutoFix = true
			if len(raw.Replacement.NewLines) > 0 {
				issue.Replacement = strings.Join(raw.Replacement.NewLines, "\n")
			}
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// =============================================================================
// RUFF
// =============================================================================

// ruffIssue mirrors one element of Ruff's JSON array output.
type ruffIssue struct {
	Code     string `json:"code"`
	Filename string `json:"filename"`
	Message  string `json:"message"`
	URL      string `json:"url"`
	Location struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"location"`
	EndLocation struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"end_location"`
	Fix *struct {
		Applicability string `json:"applicability"`
		Message       string `json:"message"`
	} `json:"fix"`
}

func parseRuffOutput(output []byte) ([]Issue, error) {
	var parsed []ruffIssue
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("ruff output: %w", err)
	}

	issues := make([]Issue, 0, len(parsed))
	for _, raw := range parsed {
		issue := Issue{
			File:      raw.Filename,
			Line:      raw.Location.Row,
			Column:    raw.Location.Column,
			EndLine:   raw.EndLocation.Row,
			EndColumn: raw.EndLocation.Column,
			Rule:      raw.Code,
			RuleURL:   raw.URL,
			Message:   raw.Message,
			Severity:  mapRuffSeverity(raw.Code),
			Tool:      "ruff",
		}
		if raw.Fix != nil {
			issue.CanAutoFix = true
			issue.Suggestion = raw.Fix.Message
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// mapRuffSeverity maps Ruff rule-code families to severities.
//
// E (pycodestyle errors), F (Pyflakes), S (bandit security) are errors;
// W and C* are warnings; I (isort) and D (pydocstyle) are informational.
func mapRuffSeverity(code string) Severity {
	if code == "" {
		return SeverityWarning
	}
	switch code[0] {
	case 'E', 'F', 'S':
		return SeverityError
	case 'W', 'C':
		return SeverityWarning
	case 'I', 'D':
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

// =============================================================================
// ESLINT
// =============================================================================

// eslintFile mirrors one element of ESLint's JSON array output.
type eslintFile struct {
	FilePath string `json:"filePath"`
	Messages []struct {
		RuleID    string `json:"ruleId"`
		Severity  int    `json:"severity"`
		Message   string `json:"message"`
		Line      int    `json:"line"`
		Column    int    `json:"column"`
		EndLine   int    `json:"endLine"`
		EndColumn int    `json:"endColumn"`
		Fix       *struct {
			Range []int  `json:"range"`
			Text  string `json:"text"`
		} `json:"fix"`
		Suggestions []struct {
			Desc string `json:"desc"`
		} `json:"suggestions"`
	} `json:"messages"`
}

func parseESLintOutput(output []byte) ([]Issue, error) {
	var parsed []eslintFile
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("eslint output: %w", err)
	}

	var issues []Issue
	for _, file := range parsed {
		for _, msg := range file.Messages {
			issue := Issue{
				File:      file.FilePath,
				Line:      msg.Line,
				Column:    msg.Column,
				EndLine:   msg.EndLine,
				EndColumn: msg.EndColumn,
				Rule:      msg.RuleID,
				Message:   msg.Message,
				Severity:  mapESLintSeverity(msg.Severity),
				Tool:      "eslint",
			}
			if msg.Fix != nil {
				issue.CanAutoFix = true
				issue.Replacement = msg.Fix.Text
			}
			if len(msg.Suggestions) > 0 {
				issue.Suggestion = msg.Suggestions[0].Desc
			}
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

// mapESLintSeverity maps ESLint's numeric severity (0=off, 1=warn, 2=error).
func mapESLintSeverity(severity int) Severity {
	switch severity {
	case 2:
		return SeverityError
	case 1:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// =============================================================================
// CLIPPY
// =============================================================================

// clippyLine mirrors one line of cargo's newline-delimited JSON stream.
type clippyLine struct {
	Reason  string `json:"reason"`
	Message *struct {
		Message string `json:"message"`
		Level   string `json:"level"`
		Code    *struct {
			Code string `json:"code"`
		} `json:"code"`
		Spans []struct {
			FileName             string  `json:"file_name"`
			LineStart            int     `json:"line_start"`
			ColumnStart          int     `json:"column_start"`
			LineEnd              int     `json:"line_end"`
			ColumnEnd            int     `json:"column_end"`
			IsPrimary            bool    `json:"is_primary"`
			SuggestedReplacement *string `json:"suggested_replacement"`
		} `json:"spans"`
	} `json:"message"`
}

// parseClippyOutput parses cargo clippy's --message-format=json stream.
//
// The stream is one JSON object per line; only "compiler-message" lines
// with a primary span become issues. Build-summary lines are skipped.
func parseClippyOutput(output []byte) ([]Issue, error) {
	var issues []Issue
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var parsed clippyLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			return nil, fmt.Errorf("clippy output: %w", err)
		}
		if parsed.Reason != "compiler-message" || parsed.Message == nil {
			continue
		}
		msg := parsed.Message
		for _, span := range msg.Spans {
			if !span.IsPrimary {
				continue
			}
			issue := Issue{
				File:      span.FileName,
				Line:      span.LineStart,
				Column:    span.ColumnStart,
				EndLine:   span.LineEnd,
				EndColumn: span.ColumnEnd,
				Message:   msg.Message,
				Severity:  SeverityFromString(msg.Level),
				Tool:      "clippy",
			}
			if msg.Code != nil {
				issue.Rule = msg.Code.Code
			}
			if span.SuggestedReplacement != nil {
				issue.CanAutoFix = true
				issue.Replacement = *span.SuggestedReplacement
			}
			issues = append(issues, issue)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("clippy output: %w", err)
	}
	return issues, nil
}

// =============================================================================
// RUBOCOP
// =============================================================================

// rubocopOutput mirrors rubocop's --format json output.
type rubocopOutput struct {
	Files []struct {
		Path     string `json:"path"`
		Offenses []struct {
			Severity    string `json:"severity"`
			Message     string `json:"message"`
			CopName     string `json:"cop_name"`
			Correctable bool   `json:"correctable"`
			Location    struct {
				StartLine   int `json:"start_line"`
				StartColumn int `json:"start_column"`
				LastLine    int `json:"last_line"`
				LastColumn  int `json:"last_column"`
			} `json:"location"`
		} `json:"offenses"`
	} `json:"files"`
}

func parseRubocopOutput(output []byte) ([]Issue, error) {
	var parsed rubocopOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("rubocop output: %w", err)
	}

	var issues []Issue
	for _, file := range parsed.Files {
		for _, off := range file.Offenses {
			issues = append(issues, Issue{
				File:       file.Path,
				Line:       off.Location.StartLine,
				Column:     off.Location.StartColumn,
				EndLine:    off.Location.LastLine,
				EndColumn:  off.Location.LastColumn,
				Rule:       off.CopName,
				Message:    off.Message,
				Severity:   SeverityFromString(off.Severity),
				CanAutoFix: off.Correctable,
				Tool:       "rubocop",
			})
		}
	}
	return issues, nil
}
