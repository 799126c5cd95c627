// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import "time"

// =============================================================================
// Catalog Types
// =============================================================================

// Language describes one language entry in the catalog: how to recognize
// it, which tools check it, and how its tests are located and run.
//
// Thread Safety: Treat as immutable after loading.
type Language struct {
	// Name is the language tag (e.g., "go", "python", "ruby").
	Name string `yaml:"name"`

	// Extensions are file extensions this language owns, including the dot.
	Extensions []string `yaml:"extensions"`

	// Markers are files whose presence at the project root identifies the
	// language (e.g., "go.mod", "Gemfile").
	Markers []string `yaml:"markers"`

	// SkipDirs are directory names excluded from scans and watch mode.
	SkipDirs []string `yaml:"skip_dirs"`

	// Lint is the linter definition, nil if the language has none.
	Lint *ToolSpec `yaml:"lint,omitempty"`

	// Format is the formatter definition, nil if the language has none.
	Format *ToolSpec `yaml:"format,omitempty"`

	// Test describes test-file conventions and runner commands.
	Test *TestConvention `yaml:"test,omitempty"`
}

// ToolSpec defines how to invoke one external check tool.
//
// Thread Safety: Treat as immutable after loading.
type ToolSpec struct {
	// Command is the executable name probed on PATH (e.g., "rubocop").
	Command string `yaml:"command"`

	// Args are arguments for check mode. The target path is appended.
	Args []string `yaml:"args"`

	// FixArgs are arguments for fix mode. Empty if the tool can't fix.
	FixArgs []string `yaml:"fix_args,omitempty"`

	// TimeoutSeconds bounds one invocation. 0 inherits the pipeline
	// default (which may itself be unbounded in hook mode).
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	// Parser names the output parser ("golangci", "ruff", "eslint",
	// "clippy", "rubocop"). Empty means exit-code-only interpretation.
	Parser string `yaml:"parser,omitempty"`

	// DeclaredBy lists manifest dependency names that declare this tool,
	// used to distinguish "optional tool absent" from "declared tool not
	// installed" (e.g., "eslint" in package.json devDependencies).
	DeclaredBy []string `yaml:"declared_by,omitempty"`
}

// Timeout returns the configured timeout as a duration, 0 if unset.
func (t *ToolSpec) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// TestConvention describes how tests are named and run for a language.
//
// Pattern placeholders, substituted by the test dispatcher:
//
//	{base} - edited file's name without extension
//	{ext}  - edited file's extension including the dot
//	{dir}  - edited file's directory relative to the project root
//	{file} - edited file's path relative to the project root
//
// Thread Safety: Treat as immutable after loading.
type TestConvention struct {
	// FocusedPatterns are candidate test-file names, tried in order
	// against each search dir (e.g., "{base}_test.go", "test_{base}.py").
	FocusedPatterns []string `yaml:"focused_patterns"`

	// SearchDirs are directories the patterns are tried in, in order.
	// "." means the edited file's own directory; other entries are
	// project-root relative (e.g., "tests", "spec").
	SearchDirs []string `yaml:"search_dirs"`

	// FocusedCommand runs the matched test artifact. The placeholder
	// {target} is replaced with the match (or its package directory when
	// FocusedTargetsDir is true).
	FocusedCommand []string `yaml:"focused_command"`

	// FocusedTargetsDir runs the focused command against the matched
	// file's directory instead of the file itself. Go has no single-file
	// test invocation, so its focused runs are package-scoped.
	FocusedTargetsDir bool `yaml:"focused_targets_dir,omitempty"`

	// PackageCommand runs the whole-directory test command; {dir} is
	// replaced with the edited file's directory.
	PackageCommand []string `yaml:"package_command"`

	// AllCommand runs the whole-project test command from the root.
	AllCommand []string `yaml:"all_command"`
}

// catalogYAML is the root structure for YAML deserialization.
type catalogYAML struct {
	Languages []Language `yaml:"languages"`
}
