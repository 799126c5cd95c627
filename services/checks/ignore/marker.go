// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ignore

import (
	"bufio"
	"os"
	"strings"
)

// markerScanLines is how deep into a file the marker scan looks. Markers
// belong in the header comment; scanning the whole file would make the
// gate cost proportional to file size.
const markerScanLines = 5

// markerToken introduces an inline disable marker.
const markerToken = "breakwater:disable"

// Marker records a file's inline opt-out state.
type Marker struct {
	// All is true for a bare "breakwater:disable" marker.
	All bool
	// Kinds holds the named kinds of "breakwater:disable=lint,test".
	Kinds map[string]bool
}

// Disables reports whether the marker opts the file out of a check kind
// ("lint", "format", "test").
func (m Marker) Disables(kind string) bool {
	if m.All {
		return true
	}
	return m.Kinds[kind]
}

// Active reports whether any marker was found.
func (m Marker) Active() bool {
	return m.All || len(m.Kinds) > 0
}

// ScanFile reads the head of a file and returns its marker state.
//
// An unreadable file reports no marker: the marker gate must never turn
// a read error into a skipped check.
func ScanFile(path string) Marker {
	f, err := os.Open(path)
	if err != nil {
		return Marker{}
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(lines) < markerScanLines {
		lines = append(lines, scanner.Text())
	}
	return ScanLines(lines)
}

// ScanLines evaluates the marker token over the given header lines.
func ScanLines(lines []string) Marker {
	m := Marker{}
	for i, line := range lines {
		if i >= markerScanLines {
			break
		}
		idx := strings.Index(line, markerToken)
		if idx < 0 {
			continue
		}
		rest := line[idx+len(markerToken):]
		if !strings.HasPrefix(rest, "=") {
			m.All = true
			continue
		}
		// Named kinds: take the comma list up to the first whitespace.
		list := rest[1:]
		if cut := strings.IndexAny(list, " \t"); cut >= 0 {
			list = list[:cut]
		}
		for _, kind := range strings.Split(list, ",") {
			kind = strings.TrimSpace(kind)
			if kind == "" {
				continue
			}
			if m.Kinds == nil {
				m.Kinds = map[string]bool{}
			}
			m.Kinds[kind] = true
		}
	}
	return m
}
