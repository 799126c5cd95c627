// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gitio answers "what changed" questions for check runs.
//
// The run command's --changed flag scopes checks to files the working
// tree touched, and lint findings can be narrowed to the lines a diff
// actually modified. Both answers come from the git CLI: status in
// porcelain format for the file list, a zero-context unified diff for
// line ranges.
package gitio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/harborworks/breakwater/services/checks/lint"
)

// ErrGit indicates a git invocation failed.
var ErrGit = fmt.Errorf("git")

// =============================================================================
// CLIENT
// =============================================================================

// Client runs git queries against one repository.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	root string
}

// NewClient creates a client for the repository at root.
func NewClient(root string) *Client {
	return &Client{root: root}
}

// Available reports whether the git binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// ChangedFiles lists working-tree paths that differ from HEAD.
//
// Description:
//
//	Parses `git status --porcelain=v1 -z`. Deleted files are omitted
//	(there is nothing to check); renames report the new name. Paths are
//	root-relative with forward slashes.
//
// Inputs:
//
//	ctx - Context for cancellation.
//
// Outputs:
//
//	[]string - Changed paths, in status order.
//	error - ErrGit when the command fails (e.g., not a repository).
func (c *Client) ChangedFiles(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "status", "--porcelain=v1", "-z")
	if err != nil {
		return nil, err
	}

	var files []string
	entries := strings.Split(string(out), "\x00")
	for i := 0; i < len(entries); i++ {
		entry := entries[i]
		if len(entry) < 4 {
			continue
		}
		status := entry[:2]
		path := entry[3:]
		// Renames carry "new -> old" split across NUL: the entry holds
		// the new name and the next record is the old one.
		if strings.ContainsRune(status, 'R') || strings.ContainsRune(status, 'C') {
			i++
		}
		if strings.ContainsRune(status, 'D') {
			continue
		}
		files = append(files, filepath.ToSlash(path))
	}
	return files, nil
}

// =============================================================================
// CHANGED LINES
// =============================================================================

// LineRange is a closed interval of 1-indexed line numbers.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether a line falls inside the range.
func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

// ChangedLines returns the line ranges the working tree modified,
// keyed by root-relative path.
//
// Description:
//
//	Parses a zero-context diff against HEAD so each hunk covers exactly
//	the added/modified lines. Files with only deletions yield no range.
func (c *Client) ChangedLines(ctx context.Context) (map[string][]LineRange, error) {
	out, err := c.run(ctx, "diff", "--unified=0", "HEAD")
	if err != nil {
		return nil, err
	}
	return parseChangedLines(out)
}

// parseChangedLines extracts new-side hunk ranges from a unified diff.
func parseChangedLines(raw []byte) (map[string][]LineRange, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string][]LineRange{}, nil
	}

	fileDiffs, err := diff.ParseMultiFileDiff(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse diff: %v", ErrGit, err)
	}

	ranges := make(map[string][]LineRange)
	for _, fd := range fileDiffs {
		name := strings.TrimPrefix(fd.NewName, "b/")
		if name == "/dev/null" {
			continue
		}
		for _, hunk := range fd.Hunks {
			if hunk.NewLines == 0 {
				continue // pure deletion
			}
			start := int(hunk.NewStartLine)
			end := start + int(hunk.NewLines) - 1
			ranges[name] = append(ranges[name], LineRange{Start: start, End: end})
		}
	}
	return ranges, nil
}

// =============================================================================
// ISSUE FILTERING
// =============================================================================

// FilterIssues keeps only issues on changed lines of the given file.
//
// Issues with no line information are kept: dropping a file-level
// finding because it lacks a position would hide real problems.
func FilterIssues(issues []lint.Issue, ranges []LineRange) []lint.Issue {
	if len(ranges) == 0 {
		return nil
	}
	kept := make([]lint.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.Line == 0 {
			kept = append(kept, issue)
			continue
		}
		for _, r := range ranges {
			if r.Contains(issue.Line) {
				kept = append(kept, issue)
				break
			}
		}
	}
	return kept
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: git %s: %v: %s",
			ErrGit, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
