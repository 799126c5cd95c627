// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checks

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// maxListedFiles bounds whole-project runs on pathological trees.
const maxListedFiles = 10000

// SourceFiles lists checkable files under the pipeline's root.
//
// Description:
//
//	Walks the tree honoring catalog skip directories, dot directories,
//	and the project ignore file. Only files whose extension the catalog
//	recognizes are returned, root-relative with forward slashes, in walk
//	order. The list is capped; `run --all` on a monorepo checks the
//	first ten thousand files rather than running unbounded.
func (p *Pipeline) SourceFiles() ([]string, error) {
	skip := p.cat.SkipDirs()

	var files []string
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if len(files) >= maxListedFiles {
			return fs.SkipAll
		}

		name := d.Name()
		if d.IsDir() {
			if path != p.root && (skip[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(name))
		if ext == "" || p.cat.ByExtension(ext) == nil {
			return nil
		}

		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if p.matcher.Match(rel) {
			return nil
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
