// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checks

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harborworks/breakwater/services/checks/cache"
	"github.com/harborworks/breakwater/services/checks/catalog"
	"github.com/harborworks/breakwater/services/checks/config"
	"github.com/harborworks/breakwater/services/checks/gitio"
	"github.com/harborworks/breakwater/services/checks/lint"
	"github.com/harborworks/breakwater/services/checks/testsel"
)

// fakeLinter scripts lint/format results without spawning tools.
type fakeLinter struct {
	lintResult   *lint.Result
	formatResult *lint.Result
	lintCalls    int
	formatCalls  int
}

func (f *fakeLinter) Lint(_ context.Context, path string) (*lint.Result, error) {
	f.lintCalls++
	return f.result(f.lintResult, path), nil
}

func (f *fakeLinter) LintFix(ctx context.Context, path string) (*lint.Result, error) {
	return f.Lint(ctx, path)
}

func (f *fakeLinter) FormatCheck(_ context.Context, path string) (*lint.Result, error) {
	f.formatCalls++
	return f.result(f.formatResult, path), nil
}

func (f *fakeLinter) FormatFix(ctx context.Context, path string) (*lint.Result, error) {
	return f.FormatCheck(ctx, path)
}

func (f *fakeLinter) result(r *lint.Result, path string) *lint.Result {
	if r != nil {
		return r
	}
	return &lint.Result{Valid: true, ToolAvailable: true, FilePath: path}
}

// fakeTestRunner answers every test command with a scripted result.
type fakeTestRunner struct {
	calls  [][]string
	result *testsel.ExecResult
}

func (f *fakeTestRunner) Run(_ context.Context, _ string, _ time.Duration, argv []string) (*testsel.ExecResult, error) {
	f.calls = append(f.calls, argv)
	if f.result != nil {
		return f.result, nil
	}
	return &testsel.ExecResult{Output: "ok"}, nil
}

func loadCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	catalog.Reset()
	t.Cleanup(catalog.Reset)
	cat, err := catalog.Load(context.Background())
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	return cat
}

// stubBinaries puts no-op executables on PATH so LookPath succeeds.
func stubBinaries(t *testing.T, names ...string) {
	t.Helper()
	bin := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\n"), 0700); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

// testSettings returns defaults with tests disabled; individual cases
// re-enable what they exercise.
func testSettings() *config.Settings {
	s := config.Default()
	s.Checks.Test = false
	return s
}

func newTestPipeline(t *testing.T, root string, s *config.Settings, opts ...PipelineOption) *Pipeline {
	t.Helper()
	cat := loadCatalog(t)
	opts = append([]PipelineOption{WithProgress(nil)}, opts...)
	p, err := NewPipeline(root, s, cat, opts...)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func TestRunAllPassed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")

	fl := &fakeLinter{}
	p := newTestPipeline(t, root, testSettings(), WithLinter(fl))

	report, err := p.Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Failed() {
		t.Errorf("messages = %v", report.Messages)
	}
	if !report.Applied {
		t.Error("Applied = false")
	}
	if report.Language != "go" {
		t.Errorf("Language = %q", report.Language)
	}
	if report.RunID == "" {
		t.Error("RunID empty")
	}
	if fl.lintCalls != 1 || fl.formatCalls != 1 {
		t.Errorf("calls = %d/%d", fl.lintCalls, fl.formatCalls)
	}
	if len(report.Invocations) != 2 {
		t.Errorf("invocations = %+v", report.Invocations)
	}
}

func TestRunDefaultRunnerFindsTools(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	stubBinaries(t, "golangci-lint", "gofmt")

	// No WithLinter: the default runner must find the stubbed tools and
	// execute them rather than recording "not installed" skips.
	p := newTestPipeline(t, root, testSettings())

	report, err := p.Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !report.Applied {
		t.Fatalf("installed tools must run: %+v", report)
	}
	for _, inv := range report.Invocations {
		if inv.Skipped {
			t.Errorf("invocation skipped: %+v", inv)
		}
	}
	if report.Failed() {
		t.Errorf("messages = %v", report.Messages)
	}
}

func TestRunIgnoredFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".breakwaterignore", "vendor/\n")
	writeFile(t, root, "vendor/dep.go", "package dep\n")

	fl := &fakeLinter{}
	p := newTestPipeline(t, root, testSettings(), WithLinter(fl))

	report, err := p.Run(context.Background(), "vendor/dep.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Applied || report.Failed() {
		t.Errorf("report = %+v", report)
	}
	if !strings.Contains(report.SkipReason, ".breakwaterignore") {
		t.Errorf("SkipReason = %q", report.SkipReason)
	}
	if fl.lintCalls != 0 {
		t.Error("no tool should run for ignored files")
	}
}

func TestRunUnknownExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "notes.txt", "scratch\n")

	p := newTestPipeline(t, root, testSettings(), WithLinter(&fakeLinter{}))

	report, err := p.Run(context.Background(), "notes.txt")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Applied || report.SkipReason == "" {
		t.Errorf("report = %+v", report)
	}
}

func TestRunLanguageDisabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")

	s := testSettings()
	s.Languages["go"] = false
	fl := &fakeLinter{}
	p := newTestPipeline(t, root, s, WithLinter(fl))

	report, err := p.Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// A disabled language guarantees zero invocations.
	if len(report.Invocations) != 0 || fl.lintCalls != 0 {
		t.Errorf("report = %+v", report)
	}
	if !strings.Contains(report.SkipReason, "disabled") {
		t.Errorf("SkipReason = %q", report.SkipReason)
	}
}

func TestRunMarkerDisablesAll(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "gen.go", "// breakwater:disable\npackage gen\n")

	fl := &fakeLinter{}
	p := newTestPipeline(t, root, testSettings(), WithLinter(fl))

	report, err := p.Run(context.Background(), "gen.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Applied || fl.lintCalls != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestRunMarkerDisablesOneKind(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "// breakwater:disable=format\npackage main\n")

	fl := &fakeLinter{}
	p := newTestPipeline(t, root, testSettings(), WithLinter(fl))

	report, err := p.Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fl.lintCalls != 1 || fl.formatCalls != 0 {
		t.Errorf("calls = %d/%d", fl.lintCalls, fl.formatCalls)
	}
	if !report.Applied {
		t.Error("lint still applies")
	}
}

func TestRunLintFindingsBecomeMessages(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")

	fl := &fakeLinter{
		lintResult: &lint.Result{
			ToolAvailable: true,
			Errors: []lint.Issue{
				{File: "main.go", Line: 3, Column: 1, Rule: "errcheck",
					Message: "error return value not checked", Severity: lint.SeverityError},
			},
			Warnings: []lint.Issue{
				{File: "main.go", Line: 9, Rule: "govet", Message: "shadowed variable",
					Severity: lint.SeverityWarning},
			},
		},
	}
	p := newTestPipeline(t, root, testSettings(), WithLinter(fl))

	report, err := p.Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !report.Failed() {
		t.Fatal("findings must fail the aggregate")
	}
	// Warnings block the aggregate just like errors.
	if len(report.Messages) != 2 {
		t.Errorf("messages = %v", report.Messages)
	}
	if !strings.Contains(report.Messages[0], "errcheck") {
		t.Errorf("message = %q", report.Messages[0])
	}
	if report.Invocations[0].Passed {
		t.Error("lint invocation should be recorded as failed")
	}
}

func TestRunUnformattedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")

	fl := &fakeLinter{
		formatResult: &lint.Result{ToolAvailable: true, Valid: false},
	}
	p := newTestPipeline(t, root, testSettings(), WithLinter(fl))

	report, err := p.Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Failed() {
		t.Fatal("unformatted file must fail")
	}
	// The message names the fix command.
	if !strings.Contains(report.Messages[0], "gofmt") {
		t.Errorf("message = %q", report.Messages[0])
	}
}

func TestRunFailFastStopsKinds(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")

	s := testSettings()
	s.FailFast = true
	fl := &fakeLinter{
		lintResult: &lint.Result{
			ToolAvailable: true,
			Errors:        []lint.Issue{{Rule: "errcheck", Message: "unchecked"}},
		},
	}
	p := newTestPipeline(t, root, s, WithLinter(fl))

	report, err := p.Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fl.formatCalls != 0 {
		t.Error("fail-fast should stop before format")
	}
	if len(report.Messages) != 1 {
		t.Errorf("messages = %v", report.Messages)
	}
}

func TestRunToolUnavailableUndeclared(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.py", "x = 1\n")

	fl := &fakeLinter{
		lintResult:   &lint.Result{Valid: true, ToolAvailable: false},
		formatResult: &lint.Result{Valid: true, ToolAvailable: false},
	}
	p := newTestPipeline(t, root, testSettings(), WithLinter(fl))

	report, err := p.Run(context.Background(), "app.py")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Nothing ran, nothing declared: silent skip, hook exits 0.
	if report.Applied || report.Failed() {
		t.Errorf("report = %+v", report)
	}
	if report.SkipReason == "" {
		t.Error("SkipReason should explain the empty run")
	}
}

func TestRunToolUnavailableButDeclared(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.py", "x = 1\n")
	writeFile(t, root, "pyproject.toml", "[tool.ruff]\nline-length = 100\n")

	fl := &fakeLinter{
		lintResult:   &lint.Result{Valid: true, ToolAvailable: false},
		formatResult: &lint.Result{Valid: true, ToolAvailable: false},
	}
	p := newTestPipeline(t, root, testSettings(), WithLinter(fl))

	report, err := p.Run(context.Background(), "app.py")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The project declares ruff: its absence is a recorded failure.
	if !report.Failed() {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(report.Messages[0], "not installed") {
		t.Errorf("message = %q", report.Messages[0])
	}
}

func TestRunGoToolDirectiveDeclares(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "go.mod",
		"module example.com/widget\n\ngo 1.25\n\ntool github.com/golangci/golangci-lint/cmd/golangci-lint\n")

	fl := &fakeLinter{
		lintResult: &lint.Result{Valid: true, ToolAvailable: false},
	}
	p := newTestPipeline(t, root, testSettings(), WithLinter(fl))

	report, err := p.Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The tool directive declares the linter: its absence must surface.
	if !report.Failed() {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(report.Messages[0], "golangci-lint not installed") {
		t.Errorf("message = %q", report.Messages[0])
	}
}

func TestRunGolangciConfigDeclares(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, ".golangci.yml", "linters:\n  enable:\n    - errcheck\n")

	fl := &fakeLinter{
		lintResult: &lint.Result{Valid: true, ToolAvailable: false},
	}
	p := newTestPipeline(t, root, testSettings(), WithLinter(fl))

	report, err := p.Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Failed() || !strings.Contains(report.Messages[0], "not installed") {
		t.Errorf("report = %+v", report)
	}
}

func TestRunClippyLintsDeclare(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.rs", "fn main() {}\n")
	writeFile(t, root, "Cargo.toml",
		"[package]\nname = \"widget\"\nversion = \"0.1.0\"\n\n[lints.clippy]\nall = \"deny\"\n")

	fl := &fakeLinter{
		lintResult: &lint.Result{Valid: true, ToolAvailable: false},
	}
	p := newTestPipeline(t, root, testSettings(), WithLinter(fl))

	report, err := p.Run(context.Background(), "app.rs")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// [lints.clippy] declares clippy; the missing cargo toolchain fails.
	if !report.Failed() {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(report.Messages[0], "cargo not installed") {
		t.Errorf("message = %q", report.Messages[0])
	}
}

func TestRunTestFailureRecorded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "main_test.go", "package main\n")
	stubBinaries(t, "go")

	s := testSettings()
	s.Checks.Test = true
	s.Checks.Lint = false
	s.Checks.Format = false

	tr := &fakeTestRunner{result: &testsel.ExecResult{Output: "FAIL", ExitCode: 1}}
	p := newTestPipeline(t, root, s, WithLinter(&fakeLinter{}), WithTestRunner(tr))

	report, err := p.Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !report.Failed() {
		t.Fatal("test failure must fail the aggregate")
	}
	if !strings.Contains(report.Messages[0], "test (focused)") {
		t.Errorf("message = %q", report.Messages[0])
	}
	if len(tr.calls) != 1 {
		t.Errorf("calls = %v", tr.calls)
	}
}

func TestRunTestProgressLine(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "main_test.go", "package main\n")
	stubBinaries(t, "go")

	s := testSettings()
	s.Checks.Test = true
	s.Checks.Lint = false
	s.Checks.Format = false

	var progress bytes.Buffer
	p := newTestPipeline(t, root, s,
		WithLinter(&fakeLinter{}), WithTestRunner(&fakeTestRunner{}),
		WithProgress(&progress))

	if _, err := p.Run(context.Background(), "main.go"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The dispatcher announces each test command on the progress writer.
	out := progress.String()
	if !strings.Contains(out, "go test") || !strings.Contains(out, "(focused)") {
		t.Errorf("progress = %q", out)
	}
}

func TestRunMissingArtifactRequired(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "svc/parser.py", "x = 1\n")

	s := testSettings()
	s.Checks.Test = true
	s.Checks.Lint = false
	s.Checks.Format = false
	s.RequireTests = true

	p := newTestPipeline(t, root, s,
		WithLinter(&fakeLinter{}), WithTestRunner(&fakeTestRunner{}))

	report, err := p.Run(context.Background(), "svc/parser.py")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !report.Failed() {
		t.Fatal("missing artifact under require-tests must fail")
	}
	// The message names every candidate path tried.
	if !strings.Contains(report.Messages[0], "tests/test_parser.py") {
		t.Errorf("message = %q", report.Messages[0])
	}
}

func TestRunCacheReplay(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")

	store, err := cache.Open(cache.Config{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	s := testSettings()
	s.CacheEnabled = true
	s.Checks.Format = false

	fl := &fakeLinter{
		lintResult: &lint.Result{
			ToolAvailable: true,
			Errors:        []lint.Issue{{Rule: "errcheck", Message: "unchecked"}},
		},
	}
	p := newTestPipeline(t, root, s, WithLinter(fl), WithCache(store))

	first, err := p.Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := p.Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if fl.lintCalls != 1 {
		t.Errorf("lintCalls = %d, second run should hit the cache", fl.lintCalls)
	}
	if !second.Invocations[0].Cached {
		t.Errorf("invocation = %+v", second.Invocations[0])
	}
	// The replayed verdict carries the original messages.
	if len(second.Messages) != len(first.Messages) || second.Messages[0] != first.Messages[0] {
		t.Errorf("first = %v, second = %v", first.Messages, second.Messages)
	}
}

func TestRunFixBypassesLintCache(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")

	store, err := cache.Open(cache.Config{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	s := testSettings()
	s.CacheEnabled = true
	s.Checks.Format = false

	seed := &fakeLinter{
		lintResult: &lint.Result{
			ToolAvailable: true,
			Errors:        []lint.Issue{{Rule: "errcheck", Message: "unchecked"}},
		},
	}
	if _, err := newTestPipeline(t, root, s, WithLinter(seed), WithCache(store)).
		Run(context.Background(), "main.go"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Fix mode must run the linter even though the verdict is cached.
	fixer := &fakeLinter{}
	report, err := newTestPipeline(t, root, s,
		WithLinter(fixer), WithCache(store), WithFix(true)).
		Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fixer.lintCalls != 1 {
		t.Errorf("lintCalls = %d, fix run replayed the cache", fixer.lintCalls)
	}
	if report.Failed() {
		t.Errorf("messages = %v", report.Messages)
	}
	for _, inv := range report.Invocations {
		if inv.Cached {
			t.Errorf("invocation = %+v", inv)
		}
	}

	// Nor may the fix run store its verdict: a later check-mode run
	// still sees the seeded failure.
	after, err := newTestPipeline(t, root, s,
		WithLinter(&fakeLinter{}), WithCache(store)).
		Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !after.Failed() {
		t.Error("fix run overwrote the cached verdict")
	}
}

func TestRunChangedLinesFilterFindings(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")

	fl := &fakeLinter{
		lintResult: &lint.Result{
			ToolAvailable: true,
			Errors: []lint.Issue{
				{File: "main.go", Line: 3, Rule: "errcheck", Message: "unchecked"},
				{File: "main.go", Line: 40, Rule: "govet", Message: "shadowed"},
			},
		},
	}
	s := testSettings()
	s.Checks.Format = false
	p := newTestPipeline(t, root, s, WithLinter(fl),
		WithChangedLines(map[string][]gitio.LineRange{
			"main.go": {{Start: 1, End: 10}},
		}))

	report, err := p.Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Only the finding inside the changed range survives.
	if len(report.Messages) != 1 || !strings.Contains(report.Messages[0], "errcheck") {
		t.Errorf("messages = %v", report.Messages)
	}
}

func TestRunChangedLinesDropUntouchedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")

	fl := &fakeLinter{
		lintResult: &lint.Result{
			ToolAvailable: true,
			Errors:        []lint.Issue{{File: "main.go", Line: 3, Rule: "errcheck", Message: "unchecked"}},
		},
	}
	s := testSettings()
	s.Checks.Format = false
	p := newTestPipeline(t, root, s, WithLinter(fl),
		WithChangedLines(map[string][]gitio.LineRange{
			"other.go": {{Start: 1, End: 10}},
		}))

	report, err := p.Run(context.Background(), "main.go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed() {
		t.Errorf("findings in an untouched file must be dropped: %v", report.Messages)
	}
}

func TestRunEmptyPath(t *testing.T) {
	p := newTestPipeline(t, t.TempDir(), testSettings(), WithLinter(&fakeLinter{}))
	if _, err := p.Run(context.Background(), ""); err == nil {
		t.Error("empty path should error")
	}
}

func TestSourceFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".breakwaterignore", "generated/\n")
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "svc/app.py", "x = 1\n")
	writeFile(t, root, "docs/readme.md", "hi\n")
	writeFile(t, root, "vendor/dep.go", "package dep\n")
	writeFile(t, root, "generated/api.go", "package api\n")
	writeFile(t, root, ".git/config.py", "ignored\n")

	p := newTestPipeline(t, root, testSettings(), WithLinter(&fakeLinter{}))

	files, err := p.SourceFiles()
	if err != nil {
		t.Fatalf("SourceFiles: %v", err)
	}

	got := map[string]bool{}
	for _, f := range files {
		got[f] = true
	}
	if !got["main.go"] || !got["svc/app.py"] {
		t.Errorf("files = %v", files)
	}
	for _, bad := range []string{"docs/readme.md", "vendor/dep.go", "generated/api.go", ".git/config.py"} {
		if got[bad] {
			t.Errorf("files should not include %s", bad)
		}
	}
}
