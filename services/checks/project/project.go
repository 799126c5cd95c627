// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package project locates the project root and detects which languages
// a project uses.
//
// Root discovery walks from a starting directory toward the filesystem
// root, stopping at the first directory holding any known project
// marker (go.mod, package.json, .git, ...). Language detection then
// reads the markers at the root, falling back to a bounded extension
// scan for marker-less trees.
package project

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harborworks/breakwater/services/checks/catalog"
)

// ErrNoRoot indicates no project marker was found on the ascent.
var ErrNoRoot = fmt.Errorf("no project root found")

// maxScanEntries bounds the fallback extension scan. Detection must stay
// cheap even in a huge tree with no manifests.
const maxScanEntries = 5000

// =============================================================================
// Root discovery
// =============================================================================

// FindRoot ascends from start to the first directory containing a
// project marker.
//
// Inputs:
//
//	start - File or directory to begin from. A file starts at its parent.
//	cat - Language catalog supplying the marker set. ".git" is always a
//	      marker even though no language declares it.
//
// Outputs:
//
//	string - Absolute project root path.
//	error - ErrNoRoot when the ascent reaches the filesystem root with
//	        no marker found.
func FindRoot(start string, cat *catalog.Catalog) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", start, err)
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		abs = filepath.Dir(abs)
	}

	markers := append([]string{".git"}, cat.Markers()...)

	dir := abs
	for {
		for _, m := range markers {
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: ascended from %s", ErrNoRoot, abs)
		}
		dir = parent
	}
}

// =============================================================================
// Language detection
// =============================================================================

// Detection describes how a language was identified at a root.
type Detection struct {
	Language *catalog.Language
	// Marker is the manifest that identified the language, empty when
	// detection fell back to the extension scan.
	Marker string
}

// Detect returns the languages present at root, marker hits first.
//
// Description:
//
//	Phase one checks every catalog marker at the root directory. Phase
//	two, taken only when phase one finds nothing, walks the tree
//	(skipping the catalog's skip dirs) and claims a language for any
//	known extension it encounters. The walk is bounded by
//	maxScanEntries.
func Detect(root string, cat *catalog.Catalog) []Detection {
	var out []Detection
	seen := map[string]bool{}

	for _, name := range cat.Languages() {
		lang := cat.Get(name)
		for _, m := range lang.Markers {
			if _, err := os.Stat(filepath.Join(root, m)); err == nil {
				out = append(out, Detection{Language: lang, Marker: m})
				seen[lang.Name] = true
				break
			}
		}
	}
	if len(out) > 0 {
		return out
	}

	skip := cat.SkipDirs()

	entries := 0
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skip[d.Name()] || strings.HasPrefix(d.Name(), ".") && p != root {
				return fs.SkipDir
			}
			return nil
		}
		entries++
		if entries > maxScanEntries {
			return fs.SkipAll
		}
		lang := cat.ByExtension(filepath.Ext(p))
		if lang != nil && !seen[lang.Name] {
			seen[lang.Name] = true
			out = append(out, Detection{Language: lang})
		}
		return nil
	})

	slog.Debug("Language detection by extension scan",
		slog.String("root", root),
		slog.Int("entries", entries),
		slog.Int("languages", len(out)),
	)
	return out
}

// ForFile resolves the language of one file by extension.
func ForFile(path string, cat *catalog.Catalog) *catalog.Language {
	return cat.ByExtension(filepath.Ext(path))
}

// Rel converts an absolute path to a slash-separated project-relative
// path for ignore matching and reporting.
func Rel(root, abs string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}
