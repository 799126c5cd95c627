// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ignore decides which files breakwater must not touch.
//
// Two mechanisms compose:
//
//   - A project ignore file (.breakwaterignore by default) of glob
//     patterns, one per line, matched against project-relative paths.
//   - Inline markers near the top of a source file that opt that file
//     out of all checks or of named check kinds.
//
// Both answer before any external tool is spawned: an excluded file
// produces zero process invocations.
package ignore

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// maxIgnoreFileSize bounds the ignore file (256KB). An ignore file
// larger than this is almost certainly a mistake (a binary, a lockfile).
const maxIgnoreFileSize = 256 * 1024

// ErrIgnoreFile indicates the ignore file exists but could not be read.
var ErrIgnoreFile = fmt.Errorf("ignore file")

// =============================================================================
// Matcher
// =============================================================================

// Matcher evaluates project-relative paths against ignore patterns.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Matcher struct {
	patterns []pattern
	source   string
}

// pattern is one parsed ignore line.
type pattern struct {
	raw string
	// segments is the pattern split on "/". A "**" segment matches any
	// number of path segments, including zero.
	segments []string
	// dirOnly patterns (trailing "/") match a directory and everything
	// under it.
	dirOnly bool
}

// Load reads the ignore file under root. A missing file yields an empty
// matcher; a file that exists but cannot be read is an error.
func Load(root, name string) (*Matcher, error) {
	p := filepath.Join(root, name)
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return &Matcher{source: p}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrIgnoreFile, p, err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() > maxIgnoreFileSize {
		return nil, fmt.Errorf("%w: %s: exceeds %d bytes", ErrIgnoreFile, p, maxIgnoreFileSize)
	}

	m := &Matcher{source: p}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.patterns = append(m.patterns, parsePattern(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIgnoreFile, p, err)
	}

	slog.Debug("Ignore file loaded",
		slog.String("path", p),
		slog.Int("patterns", len(m.patterns)),
	)
	return m, nil
}

// NewMatcher builds a matcher from in-memory pattern lines. Used by
// tests and by built-in exclusions.
func NewMatcher(lines ...string) *Matcher {
	m := &Matcher{source: "inline"}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.patterns = append(m.patterns, parsePattern(line))
	}
	return m
}

// Len returns the number of active patterns.
func (m *Matcher) Len() int { return len(m.patterns) }

// Source returns where the patterns came from.
func (m *Matcher) Source() string { return m.source }

// Match reports whether a project-relative path is ignored.
//
// rel must use forward slashes and must not begin with "./" or "/".
// Matching is purely lexical; the file need not exist.
func (m *Matcher) Match(rel string) bool {
	rel = strings.TrimPrefix(path.Clean(rel), "./")
	parts := strings.Split(rel, "/")
	for _, p := range m.patterns {
		if p.match(parts) {
			return true
		}
	}
	return false
}

func parsePattern(line string) pattern {
	p := pattern{raw: line}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	line = strings.TrimPrefix(line, "/")
	p.segments = strings.Split(line, "/")
	return p
}

// match walks pattern segments against path segments. "**" consumes any
// number of path segments; other segments match one path segment with
// path.Match semantics.
func (p pattern) match(parts []string) bool {
	ok := matchSegments(p.segments, parts, p.dirOnly)
	if ok {
		return true
	}
	// A bare-name pattern with no slash ("vendor", "*.min.js") matches at
	// any depth, mirroring gitignore's unanchored behavior.
	if len(p.segments) == 1 && !p.dirOnly {
		for i := range parts {
			if matched, _ := path.Match(p.segments[0], parts[i]); matched {
				return true
			}
		}
	}
	if len(p.segments) == 1 && p.dirOnly {
		// "vendor/" matches any directory named vendor along the path,
		// but not a file with that name at the leaf.
		for i := 0; i < len(parts)-1; i++ {
			if matched, _ := path.Match(p.segments[0], parts[i]); matched {
				return true
			}
		}
	}
	return false
}

func matchSegments(segs, parts []string, dirOnly bool) bool {
	if len(segs) == 0 {
		if dirOnly {
			// Remaining path parts mean we matched a directory prefix.
			return len(parts) > 0
		}
		return len(parts) == 0
	}
	if segs[0] == "**" {
		// "**" matches zero or more segments.
		for skip := 0; skip <= len(parts); skip++ {
			if matchSegments(segs[1:], parts[skip:], dirOnly) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	matched, err := path.Match(segs[0], parts[0])
	if err != nil || !matched {
		return false
	}
	return matchSegments(segs[1:], parts[1:], dirOnly)
}
