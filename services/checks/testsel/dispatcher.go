// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package testsel selects and runs the tests that cover an edited file.
//
// Three modes exist, configured as an ordered list:
//
//	focused - run the test artifact named for the edited file
//	package - run the edited file's directory
//	all     - run the whole project
//
// Focused candidates come from the catalog's per-language naming
// patterns crossed with its search directories; the first candidate
// that exists on disk wins. A file with no focused artifact is skipped
// silently unless require_tests is set, which records the miss as a
// failure carrying the candidate list.
package testsel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/harborworks/breakwater/services/checks/catalog"
	"github.com/harborworks/breakwater/services/checks/config"
)

// maxOutputTail is how much trailing tool output an outcome keeps. Test
// runners print the failures last.
const maxOutputTail = 4 * 1024

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher resolves test modes into commands and runs them.
//
// Thread Safety: Safe for concurrent use.
type Dispatcher struct {
	catalog *catalog.Catalog
	root    string
	runner  CommandRunner

	timeout      time.Duration
	requireTests bool
	failFast     bool
	progress     io.Writer
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithRunner substitutes the command runner (used by tests).
func WithRunner(r CommandRunner) Option {
	return func(d *Dispatcher) {
		d.runner = r
	}
}

// WithTimeout bounds each test command. Zero means unbounded.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = t
	}
}

// WithRequireTests turns a missing focused artifact into a failure.
func WithRequireTests(require bool) Option {
	return func(d *Dispatcher) {
		d.requireTests = require
	}
}

// WithFailFast stops after the first failing mode.
func WithFailFast(failFast bool) Option {
	return func(d *Dispatcher) {
		d.failFast = failFast
	}
}

// WithProgress sets the writer for progress lines (normally stderr, so
// the agent sees which command is running).
func WithProgress(w io.Writer) Option {
	return func(d *Dispatcher) {
		d.progress = w
	}
}

// NewDispatcher creates a dispatcher for one project root.
func NewDispatcher(cat *catalog.Catalog, root string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog:  cat,
		root:     root,
		runner:   NewExecRunner(),
		progress: io.Discard,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes the configured test modes for one edited file.
//
// Description:
//
//	Each distinct mode runs exactly once, in configuration order;
//	duplicates in the list are collapsed to their first occurrence.
//	With fail-fast, the mode list stops after the first failure.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	filePath - The edited file, absolute or root-relative.
//	modes - Ordered test modes from settings.
//
// Outputs:
//
//	[]Outcome - One outcome per executed (or skipped) mode.
//	error - ErrNoConvention when the language defines no tests, or a
//	        context error.
//
// Thread Safety: Safe for concurrent use.
func (d *Dispatcher) Run(ctx context.Context, filePath string, modes []config.TestMode) ([]Outcome, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: ctx must not be nil", ErrInvalidInput)
	}

	lang := d.catalog.ByExtension(filepath.Ext(filePath))
	if lang == nil || lang.Test == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoConvention, filepath.Ext(filePath))
	}

	abs := filePath
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(d.root, abs)
	}

	outcomes := make([]Outcome, 0, len(modes))
	seen := map[config.TestMode]bool{}
	for _, mode := range modes {
		if seen[mode] {
			continue
		}
		seen[mode] = true

		outcome := d.runMode(ctx, lang, abs, mode)
		outcomes = append(outcomes, outcome)
		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}
		if d.failFast && outcome.Failed() {
			break
		}
	}
	return outcomes, nil
}

func (d *Dispatcher) runMode(ctx context.Context, lang *catalog.Language, abs string, mode config.TestMode) Outcome {
	conv := lang.Test
	ph := d.placeholders(abs)

	switch mode {
	case config.ModeFocused:
		return d.runFocused(ctx, conv, abs, ph)
	case config.ModePackage:
		if len(conv.PackageCommand) == 0 {
			return Outcome{Mode: mode, Skipped: true, SkipReason: "no package command"}
		}
		return d.execute(ctx, mode, expandArgv(conv.PackageCommand, ph), ph["{dir}"])
	case config.ModeAll:
		if len(conv.AllCommand) == 0 {
			return Outcome{Mode: mode, Skipped: true, SkipReason: "no all command"}
		}
		return d.execute(ctx, mode, expandArgv(conv.AllCommand, ph), "")
	default:
		return Outcome{Mode: mode, Skipped: true, SkipReason: "unknown mode"}
	}
}

// =============================================================================
// FOCUSED MODE
// =============================================================================

func (d *Dispatcher) runFocused(ctx context.Context, conv *catalog.TestConvention, abs string, ph map[string]string) Outcome {
	if len(conv.FocusedCommand) == 0 || len(conv.FocusedPatterns) == 0 {
		return Outcome{Mode: config.ModeFocused, Skipped: true, SkipReason: "no focused command"}
	}

	match, candidates := d.findArtifact(conv, abs, ph)
	if match == "" {
		if d.requireTests {
			return Outcome{
				Mode:            config.ModeFocused,
				MissingArtifact: true,
				Candidates:      candidates,
				SkipReason:      "no test artifact",
			}
		}
		return Outcome{
			Mode:       config.ModeFocused,
			Skipped:    true,
			SkipReason: "no test artifact",
			Candidates: candidates,
		}
	}

	target := match
	if conv.FocusedTargetsDir {
		// Package-scoped runners (go test) take the test file's directory.
		dir := filepath.ToSlash(filepath.Dir(match))
		if dir == "." {
			target = "."
		} else {
			target = "./" + dir
		}
	}
	ph["{target}"] = target

	outcome := d.execute(ctx, config.ModeFocused, expandArgv(conv.FocusedCommand, ph), target)
	outcome.Candidates = candidates
	return outcome
}

// findArtifact returns the first existing candidate (root-relative) and
// the full candidate list that was tried.
func (d *Dispatcher) findArtifact(conv *catalog.TestConvention, abs string, ph map[string]string) (string, []string) {
	fileDir := filepath.Dir(abs)

	var candidates []string
	tried := map[string]bool{}
	for _, dir := range conv.SearchDirs {
		for _, pattern := range conv.FocusedPatterns {
			name := expand(pattern, ph)
			var candidate string
			if dir == "." {
				candidate = filepath.Join(fileDir, filepath.FromSlash(name))
			} else {
				candidate = filepath.Join(d.root, dir, filepath.FromSlash(name))
			}
			rel, err := filepath.Rel(d.root, candidate)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if tried[rel] {
				continue
			}
			tried[rel] = true
			candidates = append(candidates, rel)
		}
	}

	for _, rel := range candidates {
		if info, err := os.Stat(filepath.Join(d.root, filepath.FromSlash(rel))); err == nil && !info.IsDir() {
			return rel, candidates
		}
	}
	return "", candidates
}

// =============================================================================
// EXECUTION
// =============================================================================

func (d *Dispatcher) execute(ctx context.Context, mode config.TestMode, argv []string, target string) Outcome {
	outcome := Outcome{Mode: mode, Argv: argv, Target: target}

	if _, err := exec.LookPath(argv[0]); err != nil {
		outcome.Skipped = true
		outcome.SkipReason = fmt.Sprintf("%s not installed", argv[0])
		return outcome
	}

	fmt.Fprintf(d.progress, "→ %s (%s)\n", strings.Join(argv, " "), mode)
	start := time.Now()

	res, err := d.runner.Run(ctx, d.root, d.timeout, argv)
	outcome.Duration = time.Since(start)
	if err != nil {
		outcome.Output = err.Error()
		return outcome
	}

	switch {
	case res.TimedOut:
		outcome.Output = fmt.Sprintf("timed out after %s\n%s", d.timeout, tail(res.Output))
	case res.SpawnErr != nil:
		outcome.Output = res.SpawnErr.Error()
	case res.ExitCode == 0:
		outcome.Passed = true
		outcome.Output = tail(res.Output)
	default:
		outcome.Output = tail(res.Output)
	}

	slog.Debug("Test mode completed",
		slog.String("mode", string(mode)),
		slog.String("target", target),
		slog.Bool("passed", outcome.Passed),
		slog.Duration("duration", outcome.Duration),
	)
	return outcome
}

// =============================================================================
// PLACEHOLDERS
// =============================================================================

// placeholders builds the substitution map for one edited file.
func (d *Dispatcher) placeholders(abs string) map[string]string {
	ext := filepath.Ext(abs)
	base := strings.TrimSuffix(filepath.Base(abs), ext)

	rel, err := filepath.Rel(d.root, abs)
	if err != nil {
		rel = filepath.Base(abs)
	}
	rel = filepath.ToSlash(rel)
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(rel)))

	return map[string]string{
		"{base}": base,
		"{ext}":  ext,
		"{dir}":  dir,
		"{file}": rel,
	}
}

func expand(s string, ph map[string]string) string {
	for key, value := range ph {
		s = strings.ReplaceAll(s, key, value)
	}
	return s
}

func expandArgv(argv []string, ph map[string]string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = expand(a, ph)
	}
	return out
}

// tail trims output to its final maxOutputTail bytes.
func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxOutputTail {
		return s
	}
	return "..." + s[len(s)-maxOutputTail:]
}
