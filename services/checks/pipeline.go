// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package checks orchestrates one check run for one edited file.
//
// # Description
//
// The pipeline sits between the hook/CLI surface and the tool runners:
// exclusion gates (ignore file, inline markers, language toggles) decide
// whether anything applies, then lint, format, and test checks execute
// strictly sequentially. Tool failures become recorded messages, never
// errors; the aggregate verdict is failure exactly when the message list
// is non-empty.
package checks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harborworks/breakwater/services/checks/cache"
	"github.com/harborworks/breakwater/services/checks/catalog"
	"github.com/harborworks/breakwater/services/checks/config"
	"github.com/harborworks/breakwater/services/checks/gitio"
	"github.com/harborworks/breakwater/services/checks/ignore"
	"github.com/harborworks/breakwater/services/checks/lint"
	"github.com/harborworks/breakwater/services/checks/project"
	"github.com/harborworks/breakwater/services/checks/testsel"
)

// Check kinds, in execution order.
const (
	KindLint   = "lint"
	KindFormat = "format"
	KindTest   = "test"
)

// ErrInvalidInput indicates a malformed request.
var ErrInvalidInput = errors.New("invalid input")

// =============================================================================
// REPORT
// =============================================================================

// Invocation records one external-tool execution (or deliberate skip).
type Invocation struct {
	// Kind is the check kind: lint, format, or test.
	Kind string `json:"kind"`

	// Language is the catalog language name.
	Language string `json:"language"`

	// Tool is the command that ran (or would have run).
	Tool string `json:"tool"`

	// Target is what the tool was pointed at.
	Target string `json:"target,omitempty"`

	// Duration is tool wall time. Zero for skips and cache hits.
	Duration time.Duration `json:"duration"`

	// Passed is whether the check succeeded. Meaningless when Skipped.
	Passed bool `json:"passed"`

	// Skipped means the tool did not run.
	Skipped bool `json:"skipped,omitempty"`

	// Cached means the verdict was replayed from the result cache.
	Cached bool `json:"cached,omitempty"`

	// Detail explains skips and failures in one line.
	Detail string `json:"detail,omitempty"`
}

// Report is the aggregate of one pipeline run.
//
// The failure invariant: Failed() is true exactly when Messages is
// non-empty. Every failing invocation contributes at least one message.
type Report struct {
	// RunID uniquely identifies this run.
	RunID string `json:"run_id"`

	// File is the checked file, root-relative with forward slashes.
	File string `json:"file"`

	// Language is the detected catalog language, if any.
	Language string `json:"language,omitempty"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Duration is total pipeline wall time.
	Duration time.Duration `json:"duration"`

	// Applied is whether any check actually executed. A fully gated run
	// (ignored file, unknown extension, disabled language) is not applied
	// and the hook exits 0.
	Applied bool `json:"applied"`

	// SkipReason explains why nothing applied.
	SkipReason string `json:"skip_reason,omitempty"`

	// Invocations lists every tool execution and skip, in order.
	Invocations []Invocation `json:"invocations"`

	// Messages is the ordered failure list.
	Messages []string `json:"messages"`
}

// Failed reports the aggregate verdict.
func (r *Report) Failed() bool {
	return len(r.Messages) > 0
}

// =============================================================================
// PIPELINE
// =============================================================================

// linter is the slice of lint.Runner the pipeline needs. Narrowed to an
// interface so tests can stub tool execution.
type linter interface {
	Lint(ctx context.Context, filePath string) (*lint.Result, error)
	LintFix(ctx context.Context, filePath string) (*lint.Result, error)
	FormatCheck(ctx context.Context, filePath string) (*lint.Result, error)
	FormatFix(ctx context.Context, filePath string) (*lint.Result, error)
}

// Pipeline runs checks for files under one project root.
//
// Thread Safety: Safe for concurrent use once constructed.
type Pipeline struct {
	root       string
	settings   *config.Settings
	cat        *catalog.Catalog
	matcher    *ignore.Matcher
	linter     linter
	dispatcher *testsel.Dispatcher
	testRunner testsel.CommandRunner
	store      *cache.Store
	progress   io.Writer
	logger     *slog.Logger
	fix        bool

	// changedLines, when set, narrows lint findings to the ranges a diff
	// touched, keyed by root-relative path.
	changedLines map[string][]gitio.LineRange
}

// PipelineOption customizes construction.
type PipelineOption func(*Pipeline)

// WithLinter replaces the lint/format runner. Tests use this.
func WithLinter(l linter) PipelineOption {
	return func(p *Pipeline) { p.linter = l }
}

// WithTestRunner replaces process execution for test commands.
func WithTestRunner(r testsel.CommandRunner) PipelineOption {
	return func(p *Pipeline) { p.testRunner = r }
}

// WithCache attaches a result cache. The pipeline does not own the
// store; the caller closes it.
func WithCache(store *cache.Store) PipelineOption {
	return func(p *Pipeline) { p.store = store }
}

// WithProgress directs human-readable progress lines (default stderr).
func WithProgress(w io.Writer) PipelineOption {
	return func(p *Pipeline) { p.progress = w }
}

// WithFix enables fix mode: formatters rewrite files and linters apply
// autofixes. The manual CLI uses this; the hook never does.
func WithFix(fix bool) PipelineOption {
	return func(p *Pipeline) { p.fix = fix }
}

// WithChangedLines narrows lint findings to the given per-file diff
// ranges. Findings outside the ranges are dropped before they become
// messages; file-level findings with no line survive. The run command's
// --diff flag uses this.
func WithChangedLines(ranges map[string][]gitio.LineRange) PipelineOption {
	return func(p *Pipeline) { p.changedLines = ranges }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline builds a pipeline for the project at root.
//
// Inputs:
//
//	root - Absolute project root.
//	settings - Layered effective configuration.
//	cat - Loaded language catalog.
//	opts - Optional overrides.
//
// Outputs:
//
//	*Pipeline - Ready to Run.
//	error - Non-nil when the ignore file exists but cannot be parsed.
func NewPipeline(root string, settings *config.Settings, cat *catalog.Catalog, opts ...PipelineOption) (*Pipeline, error) {
	matcher, err := ignore.Load(root, settings.IgnoreFile)
	if err != nil {
		return nil, fmt.Errorf("load ignore file: %w", err)
	}

	p := &Pipeline{
		root:     root,
		settings: settings,
		cat:      cat,
		matcher:  matcher,
		progress: os.Stderr,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.linter == nil {
		p.linter = lint.NewRunner(cat,
			lint.WithWorkingDir(root),
			lint.WithTimeout(settings.CommandTimeout),
		)
	}

	// The dispatcher is built last so it picks up whatever progress
	// writer and command runner the options settled on.
	dopts := []testsel.Option{
		testsel.WithTimeout(settings.CommandTimeout),
		testsel.WithRequireTests(settings.RequireTests),
		testsel.WithFailFast(settings.FailFast),
	}
	if p.progress != nil {
		dopts = append(dopts, testsel.WithProgress(p.progress))
	}
	if p.testRunner != nil {
		dopts = append(dopts, testsel.WithRunner(p.testRunner))
	}
	p.dispatcher = testsel.NewDispatcher(cat, root, dopts...)
	return p, nil
}

// Root returns the project root the pipeline operates on.
func (p *Pipeline) Root() string { return p.root }

// Run executes the check sequence for one file.
//
// Description:
//
//	Gates first: ignore rules, inline disable markers, language and kind
//	toggles. Whatever survives runs strictly sequentially in the order
//	lint, format, test. Tool failures are recorded as messages; the
//	returned error is reserved for cancellation and malformed input.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	path - File to check, absolute or root-relative.
//
// Outputs:
//
//	*Report - Always non-nil on nil error.
//	error - ErrInvalidInput or context errors.
func (p *Pipeline) Run(ctx context.Context, path string) (*Report, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidInput)
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(p.root, filepath.FromSlash(path))
	}
	rel := project.Rel(p.root, abs)

	start := time.Now()
	report := &Report{
		RunID:     uuid.New().String(),
		File:      rel,
		StartedAt: start,
	}
	ctx, span := startRunSpan(ctx, rel)
	defer func() {
		report.Duration = time.Since(start)
		finishRunSpan(span, report)
		recordRunMetrics(report)
	}()

	logger := p.logger.With("run_id", report.RunID, "file", rel)

	// Gate 1: ignore rules.
	if p.matcher.Match(rel) {
		report.SkipReason = "ignored by " + p.settings.IgnoreFile
		logger.Debug("skipping", "reason", report.SkipReason)
		return report, nil
	}

	// Gate 2: language detection by extension.
	lang := p.cat.ByExtension(strings.ToLower(filepath.Ext(abs)))
	if lang == nil {
		report.SkipReason = "no checks for this file type"
		return report, nil
	}
	report.Language = lang.Name

	// Gate 3: language toggle. Disabled languages get zero invocations.
	if !p.settings.LanguageEnabled(lang.Name) {
		report.SkipReason = lang.Name + " checks disabled in configuration"
		logger.Debug("skipping", "reason", report.SkipReason)
		return report, nil
	}

	// Gate 4: inline opt-out marker.
	marker := ignore.ScanFile(abs)
	if marker.All {
		report.SkipReason = "file opts out of checks"
		return report, nil
	}

	for _, kind := range []string{KindLint, KindFormat, KindTest} {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !p.kindEnabled(kind) || marker.Disables(kind) {
			continue
		}

		before := len(report.Messages)
		switch kind {
		case KindLint:
			p.runLint(ctx, lang, abs, rel, report)
		case KindFormat:
			p.runFormat(ctx, lang, abs, rel, report)
		case KindTest:
			p.runTests(ctx, lang, abs, report)
		}

		if p.settings.FailFast && len(report.Messages) > before {
			logger.Debug("fail-fast stop", "kind", kind)
			break
		}
	}

	for _, inv := range report.Invocations {
		if !inv.Skipped {
			report.Applied = true
			break
		}
	}
	if !report.Applied && report.SkipReason == "" {
		report.SkipReason = "no applicable tools installed"
	}

	logger.Info("run complete",
		"applied", report.Applied,
		"failed", report.Failed(),
		"invocations", len(report.Invocations),
		"duration", report.Duration,
	)
	return report, nil
}

func (p *Pipeline) kindEnabled(kind string) bool {
	switch kind {
	case KindLint:
		return p.settings.Checks.Lint
	case KindFormat:
		return p.settings.Checks.Format
	case KindTest:
		return p.settings.Checks.Test
	default:
		return false
	}
}

// =============================================================================
// LINT
// =============================================================================

func (p *Pipeline) runLint(ctx context.Context, lang *catalog.Language, abs, rel string, report *Report) {
	if lang.Lint == nil {
		return
	}
	tool := lang.Lint.Command

	// Fix mode rewrites the file and diff filtering makes the verdict
	// depend on more than content, so neither may touch the cache.
	cacheable := !p.fix && p.changedLines == nil
	if cacheable && p.replayCached(abs, tool, KindLint, lang.Name, report) {
		return
	}

	p.progressf("→ %s %s", tool, rel)
	var result *lint.Result
	var err error
	if p.fix {
		result, err = p.linter.LintFix(ctx, abs)
	} else {
		result, err = p.linter.Lint(ctx, abs)
	}
	if err != nil {
		report.Invocations = append(report.Invocations, Invocation{
			Kind: KindLint, Language: lang.Name, Tool: tool, Target: rel,
			Detail: err.Error(),
		})
		report.Messages = append(report.Messages,
			fmt.Sprintf("lint: %s failed: %v", tool, err))
		return
	}

	if !result.ToolAvailable {
		p.recordUnavailable(KindLint, lang, tool, report)
		return
	}

	issues := append(result.Errors, result.Warnings...)
	if p.changedLines != nil {
		issues = gitio.FilterIssues(issues, p.changedLines[rel])
	}

	var messages []string
	for _, issue := range issues {
		messages = append(messages,
			fmt.Sprintf("lint: %s %s (%s)", issue.Location(), issue.Message, issue.Rule))
	}

	report.Invocations = append(report.Invocations, Invocation{
		Kind: KindLint, Language: lang.Name, Tool: tool, Target: rel,
		Duration: result.Duration,
		Passed:   len(messages) == 0,
	})
	report.Messages = append(report.Messages, messages...)

	if cacheable {
		p.storeCached(abs, tool, KindLint, len(messages) == 0, messages)
	}
}

// =============================================================================
// FORMAT
// =============================================================================

func (p *Pipeline) runFormat(ctx context.Context, lang *catalog.Language, abs, rel string, report *Report) {
	if lang.Format == nil {
		return
	}
	tool := lang.Format.Command

	// Fix mode rewrites the file, so cached verdicts only apply to
	// check mode.
	if !p.fix && p.replayCached(abs, tool, KindFormat, lang.Name, report) {
		return
	}

	p.progressf("→ %s %s", tool, rel)
	var result *lint.Result
	var err error
	if p.fix {
		result, err = p.linter.FormatFix(ctx, abs)
	} else {
		result, err = p.linter.FormatCheck(ctx, abs)
	}
	if err != nil {
		report.Invocations = append(report.Invocations, Invocation{
			Kind: KindFormat, Language: lang.Name, Tool: tool, Target: rel,
			Detail: err.Error(),
		})
		report.Messages = append(report.Messages,
			fmt.Sprintf("format: %s failed: %v", tool, err))
		return
	}

	if !result.ToolAvailable {
		p.recordUnavailable(KindFormat, lang, tool, report)
		return
	}

	var messages []string
	if !result.Valid {
		messages = append(messages,
			fmt.Sprintf("format: %s is not formatted (run `%s`)", rel, formatFixHint(lang)))
	}

	report.Invocations = append(report.Invocations, Invocation{
		Kind: KindFormat, Language: lang.Name, Tool: tool, Target: rel,
		Duration: result.Duration,
		Passed:   result.Valid,
	})
	report.Messages = append(report.Messages, messages...)

	if !p.fix {
		p.storeCached(abs, tool, KindFormat, result.Valid, messages)
	}
}

func formatFixHint(lang *catalog.Language) string {
	if lang.Format == nil {
		return ""
	}
	parts := append([]string{lang.Format.Command}, lang.Format.FixArgs...)
	return strings.Join(parts, " ")
}

// =============================================================================
// TESTS
// =============================================================================

func (p *Pipeline) runTests(ctx context.Context, lang *catalog.Language, abs string, report *Report) {
	outcomes, err := p.dispatcher.Run(ctx, abs, p.settings.TestModes)
	if errors.Is(err, testsel.ErrNoConvention) {
		return
	}
	if err != nil {
		report.Messages = append(report.Messages, fmt.Sprintf("test: %v", err))
		return
	}

	for _, o := range outcomes {
		inv := Invocation{
			Kind:     KindTest,
			Language: lang.Name,
			Tool:     strings.Join(o.Argv, " "),
			Target:   o.Target,
			Duration: o.Duration,
			Passed:   o.Passed,
			Skipped:  o.Skipped,
			Detail:   o.SkipReason,
		}
		report.Invocations = append(report.Invocations, inv)

		switch {
		case o.MissingArtifact:
			report.Messages = append(report.Messages,
				fmt.Sprintf("test (%s): no test file found; looked for %s",
					o.Mode, strings.Join(o.Candidates, ", ")))
		case !o.Skipped && !o.Passed:
			msg := fmt.Sprintf("test (%s): failed", o.Mode)
			if o.Output != "" {
				msg += "\n" + o.Output
			}
			report.Messages = append(report.Messages, msg)
		}
	}
}

// =============================================================================
// SHARED
// =============================================================================

// recordUnavailable handles a missing tool: silence unless the project
// manifest declares it, then a distinct not-installed failure.
func (p *Pipeline) recordUnavailable(kind string, lang *catalog.Language, tool string, report *Report) {
	declared := p.toolDeclared(lang, kind)
	detail := tool + " not installed"
	if declared {
		detail += " but declared by the project manifest"
	}
	report.Invocations = append(report.Invocations, Invocation{
		Kind: kind, Language: lang.Name, Tool: tool,
		Skipped: true, Detail: detail,
	})
	if declared {
		report.Messages = append(report.Messages,
			fmt.Sprintf("%s: %s", kind, detail))
	}
}

// toolDeclared consults the language's manifest for the tool's
// declared_by names.
func (p *Pipeline) toolDeclared(lang *catalog.Language, kind string) bool {
	spec := lang.Lint
	if kind == KindFormat {
		spec = lang.Format
	}
	if spec == nil || len(spec.DeclaredBy) == 0 {
		return false
	}

	switch lang.Name {
	case "go":
		// A checked-in linter config declares the tool as surely as a
		// go.mod tool directive does.
		m, err := project.ReadGoModule(p.root)
		for _, name := range spec.DeclaredBy {
			if name == "golangci-lint" && project.HasGolangciConfig(p.root) {
				return true
			}
			if err == nil && m.DeclaresTool(name) {
				return true
			}
		}
	case "rust":
		m, err := project.ReadRustManifest(p.root)
		for _, name := range spec.DeclaredBy {
			if name != "clippy" {
				continue
			}
			if project.HasClippyConfig(p.root) {
				return true
			}
			if err == nil && m.ClippyLints {
				return true
			}
		}
	case "python":
		m, err := project.ReadPythonManifest(p.root)
		if err != nil {
			return false
		}
		for _, name := range spec.DeclaredBy {
			if m.DeclaresTool(name) {
				return true
			}
		}
	case "typescript", "javascript":
		m, err := project.ReadNodeManifest(p.root)
		if err != nil {
			return false
		}
		for _, name := range spec.DeclaredBy {
			if m.DeclaresTool(name) {
				return true
			}
		}
	case "ruby":
		m, err := project.ReadRubyManifest(p.root)
		if err != nil {
			return false
		}
		for _, name := range spec.DeclaredBy {
			if m.DeclaresGem(name) {
				return true
			}
		}
	}
	return false
}

// replayCached replays a stored verdict. Returns true on a hit.
func (p *Pipeline) replayCached(abs, tool, kind, language string, report *Report) bool {
	entry := p.lookupCache(abs, tool, kind)
	if entry == nil {
		return false
	}

	inv := Invocation{
		Kind: kind, Language: language, Tool: tool,
		Target: project.Rel(p.root, abs),
		Passed: entry.Passed, Cached: true,
	}
	report.Invocations = append(report.Invocations, inv)

	if !entry.Passed {
		var messages []string
		if err := unmarshalPayload(entry, &messages); err == nil {
			report.Messages = append(report.Messages, messages...)
		} else {
			report.Messages = append(report.Messages,
				fmt.Sprintf("%s: %s failed (cached)", kind, tool))
		}
	}
	return true
}

func (p *Pipeline) lookupCache(abs, tool, kind string) *cache.Entry {
	if p.store == nil || !p.settings.CacheEnabled {
		return nil
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil
	}
	entry, err := p.store.Get(cache.Key(content, tool, kind))
	if err != nil {
		p.logger.Warn("cache lookup failed", "error", err)
		return nil
	}
	return entry
}

func (p *Pipeline) storeCached(abs, tool, kind string, passed bool, messages []string) {
	if p.store == nil || !p.settings.CacheEnabled {
		return
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return
	}
	entry := &cache.Entry{Tool: tool, Kind: kind, Passed: passed}
	if err := marshalPayload(entry, messages); err != nil {
		return
	}
	if err := p.store.Put(cache.Key(content, tool, kind), entry); err != nil {
		p.logger.Warn("cache store failed", "error", err)
	}
}

func (p *Pipeline) progressf(format string, args ...any) {
	if p.progress != nil {
		fmt.Fprintf(p.progress, format+"\n", args...)
	}
}
