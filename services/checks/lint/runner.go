// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lint executes linters and format checkers and parses their
// output into structured issues.
//
// Tool commands, arguments, and parsers come from the language catalog;
// this package owns execution, parsing, and rule policy.
package lint

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harborworks/breakwater/services/checks/catalog"
)

// defaultToolTimeout applies when neither the catalog nor the runner
// sets a bound.
const defaultToolTimeout = 60 * time.Second

// =============================================================================
// RUNNER
// =============================================================================

// Runner executes lint and format tools and processes their output.
//
// Description:
//
//	Resolves tools through the catalog, probes PATH for availability,
//	runs the tool with a bounded subprocess, parses JSON output, and
//	applies rule policy. An uninstalled tool yields an empty valid
//	result rather than an error.
//
// Thread Safety: Safe for concurrent use.
type Runner struct {
	catalog  *catalog.Catalog
	policies *PolicyRegistry

	available map[string]bool
	availMu   sync.RWMutex

	workingDir string
	// timeout, when positive, overrides every catalog tool timeout.
	timeout time.Duration
}

// Option configures the Runner.
type Option func(*Runner)

// WithWorkingDir sets the working directory for tool execution.
func WithWorkingDir(dir string) Option {
	return func(r *Runner) {
		r.workingDir = dir
	}
}

// WithPolicies sets a custom policy registry.
func WithPolicies(policies *PolicyRegistry) Option {
	return func(r *Runner) {
		r.policies = policies
	}
}

// WithTimeout overrides per-tool catalog timeouts. Zero keeps them.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// NewRunner creates a runner over a loaded catalog.
func NewRunner(cat *catalog.Catalog, opts ...Option) *Runner {
	r := &Runner{
		catalog:   cat,
		policies:  NewPolicyRegistry(),
		available: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DetectAvailable probes PATH for every catalog tool command.
//
// Outputs:
//
//	map[string]bool - Tool command to availability.
//
// Thread Safety: Safe for concurrent use.
func (r *Runner) DetectAvailable() map[string]bool {
	r.availMu.Lock()
	defer r.availMu.Unlock()

	result := make(map[string]bool)
	probe := func(spec *catalog.ToolSpec, language, kind string) {
		if spec == nil {
			return
		}
		if _, done := result[spec.Command]; done {
			return
		}
		_, err := exec.LookPath(spec.Command)
		ok := err == nil
		r.available[spec.Command] = ok
		result[spec.Command] = ok
		if !ok {
			slog.Debug("Tool not installed",
				slog.String("language", language),
				slog.String("kind", kind),
				slog.String("command", spec.Command),
			)
		}
	}

	for _, name := range r.catalog.Languages() {
		lang := r.catalog.Get(name)
		probe(lang.Lint, name, "lint")
		probe(lang.Format, name, "format")
	}
	return result
}

// IsAvailable reports whether a tool command is on PATH.
//
// The first query for a command probes PATH and memoizes the answer, so
// callers need not run DetectAvailable up front.
func (r *Runner) IsAvailable(command string) bool {
	r.availMu.RLock()
	ok, probed := r.available[command]
	r.availMu.RUnlock()
	if probed {
		return ok
	}

	_, err := exec.LookPath(command)
	ok = err == nil

	r.availMu.Lock()
	r.available[command] = ok
	r.availMu.Unlock()
	return ok
}

// =============================================================================
// LINT
// =============================================================================

// Lint runs the language's linter on a file.
//
// Description:
//
//	Resolves the language from the file extension, runs its lint tool,
//	parses the JSON output, and applies rule policy to categorize
//	issues.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	filePath - File to lint, absolute or relative to the working dir.
//
// Outputs:
//
//	*Result - Categorized issues. For an uninstalled tool, an empty
//	          valid result with ToolAvailable=false.
//	error - ErrUnsupportedLanguage, ErrToolTimeout, ErrToolFailed, or
//	        ErrParseOutput.
//
// Thread Safety: Safe for concurrent use.
func (r *Runner) Lint(ctx context.Context, filePath string) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: ctx must not be nil", ErrInvalidInput)
	}
	lang := r.catalog.ByExtension(filepath.Ext(filePath))
	if lang == nil || lang.Lint == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, filepath.Ext(filePath))
	}
	return r.runLint(ctx, lang, filePath, false)
}

// LintFix runs the linter in fix mode when the catalog declares fix
// arguments, falling back to a plain lint otherwise.
func (r *Runner) LintFix(ctx context.Context, filePath string) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: ctx must not be nil", ErrInvalidInput)
	}
	lang := r.catalog.ByExtension(filepath.Ext(filePath))
	if lang == nil || lang.Lint == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, filepath.Ext(filePath))
	}
	return r.runLint(ctx, lang, filePath, len(lang.Lint.FixArgs) > 0)
}

func (r *Runner) runLint(ctx context.Context, lang *catalog.Language, filePath string, fix bool) (*Result, error) {
	spec := lang.Lint
	ctx, span := startToolSpan(ctx, "lint", lang.Name, filePath)
	defer span.End()
	start := time.Now()

	if !r.IsAvailable(spec.Command) {
		setToolSpanResult(span, 0, 0, false)
		recordToolMetrics(ctx, "lint", lang.Name, time.Since(start), 0, 0, true)
		return unavailableResult(spec.Command, lang.Name, filePath, start), nil
	}

	args := spec.Args
	if fix {
		args = spec.FixArgs
	}
	out, err := r.execute(ctx, lang.Name, spec, args, filePath)
	if err != nil {
		recordToolMetrics(ctx, "lint", lang.Name, time.Since(start), 0, 0, false)
		return nil, err
	}

	issues, err := r.parseOutput(spec.Parser, out)
	if err != nil {
		recordToolMetrics(ctx, "lint", lang.Name, time.Since(start), 0, 0, false)
		return nil, fmt.Errorf("%w: %v", ErrParseOutput, err)
	}

	errs, warnings, infos := ApplyPolicy(issues, r.policies.Get(lang.Name))

	result := &Result{
		Valid:         len(errs) == 0,
		Errors:        errs,
		Warnings:      warnings,
		Infos:         infos,
		Duration:      time.Since(start),
		Tool:          spec.Command,
		Language:      lang.Name,
		FilePath:      filePath,
		ToolAvailable: true,
	}

	setToolSpanResult(span, len(errs), len(warnings), true)
	recordToolMetrics(ctx, "lint", lang.Name, time.Since(start), len(errs), len(warnings), true)

	slog.Debug("Lint completed",
		slog.String("file", filePath),
		slog.String("tool", spec.Command),
		slog.Duration("duration", result.Duration),
		slog.Int("errors", len(errs)),
		slog.Int("warnings", len(warnings)),
	)
	return result, nil
}

// =============================================================================
// FORMAT
// =============================================================================

// FormatCheck verifies a file's formatting without rewriting it.
//
// Description:
//
//	Runs the language's format tool in check mode. Formatters have no
//	common JSON output, so the verdict is positional: a non-zero exit
//	or the file's name in stdout means the file is unformatted, which
//	yields a single blocking issue.
//
// Thread Safety: Safe for concurrent use.
func (r *Runner) FormatCheck(ctx context.Context, filePath string) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: ctx must not be nil", ErrInvalidInput)
	}
	lang := r.catalog.ByExtension(filepath.Ext(filePath))
	if lang == nil || lang.Format == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, filepath.Ext(filePath))
	}
	return r.runFormat(ctx, lang, filePath, false)
}

// FormatFix rewrites a file with the language's formatter.
func (r *Runner) FormatFix(ctx context.Context, filePath string) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: ctx must not be nil", ErrInvalidInput)
	}
	lang := r.catalog.ByExtension(filepath.Ext(filePath))
	if lang == nil || lang.Format == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, filepath.Ext(filePath))
	}
	return r.runFormat(ctx, lang, filePath, len(lang.Format.FixArgs) > 0)
}

func (r *Runner) runFormat(ctx context.Context, lang *catalog.Language, filePath string, fix bool) (*Result, error) {
	spec := lang.Format
	ctx, span := startToolSpan(ctx, "format", lang.Name, filePath)
	defer span.End()
	start := time.Now()

	if !r.IsAvailable(spec.Command) {
		setToolSpanResult(span, 0, 0, false)
		recordToolMetrics(ctx, "format", lang.Name, time.Since(start), 0, 0, true)
		return unavailableResult(spec.Command, lang.Name, filePath, start), nil
	}

	args := spec.Args
	if fix {
		args = spec.FixArgs
	}
	res, err := r.run(ctx, lang.Name, spec, args, filePath)
	if err != nil {
		recordToolMetrics(ctx, "format", lang.Name, time.Since(start), 0, 0, false)
		return nil, err
	}

	result := &Result{
		Valid:         true,
		Errors:        make([]Issue, 0),
		Warnings:      make([]Issue, 0),
		Duration:      time.Since(start),
		Tool:          spec.Command,
		Language:      lang.Name,
		FilePath:      filePath,
		ToolAvailable: true,
	}

	unformatted := !fix && (res.exitCode != 0 ||
		strings.Contains(res.stdout, filepath.Base(filePath)))
	if unformatted {
		result.Valid = false
		result.Errors = append(result.Errors, Issue{
			File:       filePath,
			Line:       1,
			Rule:       "format",
			Severity:   SeverityError,
			Message:    fmt.Sprintf("file is not formatted (%s)", spec.Command),
			CanAutoFix: len(spec.FixArgs) > 0,
			Tool:       spec.Command,
		})
	}

	setToolSpanResult(span, len(result.Errors), 0, true)
	recordToolMetrics(ctx, "format", lang.Name, time.Since(start), len(result.Errors), 0, true)
	return result, nil
}

// =============================================================================
// EXECUTION
// =============================================================================

// execute runs a tool and returns stdout, treating a non-zero exit with
// output as findings rather than failure.
func (r *Runner) execute(ctx context.Context, language string, spec *catalog.ToolSpec, args []string, filePath string) ([]byte, error) {
	res, err := r.run(ctx, language, spec, args, filePath)
	if err != nil {
		return nil, err
	}
	// Linters exit non-zero when they find issues. Only an empty stdout
	// marks an actual failure.
	if res.exitCode != 0 && len(strings.TrimSpace(res.stdout)) == 0 {
		return nil, NewToolError(spec.Command, language, ErrToolFailed).
			WithOutput(strings.TrimSpace(res.stderr))
	}
	return []byte(res.stdout), nil
}

func (r *Runner) run(ctx context.Context, language string, spec *catalog.ToolSpec, args []string, filePath string) (*execResult, error) {
	full := make([]string, 0, len(args)+1)
	full = append(full, args...)
	full = append(full, filePath)

	timeout := r.timeout
	if timeout <= 0 {
		timeout = spec.Timeout()
	}
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}

	dir := r.workingDir
	if dir == "" {
		dir = filepath.Dir(filePath)
	}

	res, err := runCommand(ctx, dir, timeout, spec.Command, full...)
	if err != nil {
		return nil, err
	}
	if res.timedOut {
		return nil, NewToolError(spec.Command, language, ErrToolTimeout).
			WithOutput(strings.TrimSpace(res.stderr))
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if res.spawnErr != nil {
		return nil, NewToolError(spec.Command, language, ErrToolFailed).
			WithOutput(res.spawnErr.Error())
	}
	return res, nil
}

// parseOutput parses tool JSON output with the named parser.
func (r *Runner) parseOutput(parserName string, output []byte) ([]Issue, error) {
	if len(strings.TrimSpace(string(output))) == 0 {
		return nil, nil
	}
	parser := GetParser(parserName)
	if parser == nil {
		return nil, fmt.Errorf("no parser named %q", parserName)
	}
	return parser(output)
}

// Policies returns the policy registry for customization.
func (r *Runner) Policies() *PolicyRegistry {
	return r.policies
}

func unavailableResult(tool, language, filePath string, start time.Time) *Result {
	return &Result{
		Valid:         true,
		Errors:        make([]Issue, 0),
		Warnings:      make([]Issue, 0),
		Duration:      time.Since(start),
		Tool:          tool,
		Language:      language,
		FilePath:      filePath,
		ToolAvailable: false,
	}
}
