// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harborworks/breakwater/services/checks/catalog"
)

// fakeTool installs an executable shell script named cmd into a temp
// bin dir prepended to PATH for the test.
func fakeTool(t *testing.T, bin, cmd, script string) {
	t.Helper()
	path := filepath.Join(bin, cmd)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0700); err != nil {
		t.Fatal(err)
	}
}

func testRunner(t *testing.T, opts ...Option) (*Runner, string) {
	t.Helper()
	catalog.Reset()
	t.Cleanup(catalog.Reset)
	cat, err := catalog.Load(context.Background())
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}

	bin := t.TempDir()
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	return NewRunner(cat, opts...), bin
}

func tempGoFile(t *testing.T) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "main.go")
	if err := os.WriteFile(file, []byte("package main\n"), 0600); err != nil {
		t.Fatal(err)
	}
	return file
}

func TestLintWithPolicy(t *testing.T) {
	r, bin := testRunner(t)
	// errcheck blocks, govet warns, lll is ignored.
	fakeTool(t, bin, "golangci-lint", `cat <<'EOF'
{"Issues": [
  {"FromLinter": "errcheck", "Text": "unchecked error", "Pos": {"Filename": "main.go", "Line": 3, "Column": 2}},
  {"FromLinter": "govet", "Text": "shadowed variable", "Pos": {"Filename": "main.go", "Line": 9, "Column": 1}},
  {"FromLinter": "lll", "Text": "line too long", "Pos": {"Filename": "main.go", "Line": 12, "Column": 1}}
]}
EOF`)
	r.DetectAvailable()

	file := filepath.Join(t.TempDir(), "main.go")
	if err := os.WriteFile(file, []byte("package main\n"), 0600); err != nil {
		t.Fatal(err)
	}

	res, err := r.Lint(context.Background(), file)
	if err != nil {
		t.Fatalf("Lint: %v", err)
	}

	if res.Valid {
		t.Error("errcheck issue should invalidate the result")
	}
	if len(res.Errors) != 1 || res.Errors[0].Rule != "errcheck" {
		t.Errorf("Errors = %+v", res.Errors)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Rule != "govet" {
		t.Errorf("Warnings = %+v", res.Warnings)
	}
	if res.IssueCount() != 2 {
		t.Errorf("ignored rule should be dropped, count = %d", res.IssueCount())
	}
	if !res.ToolAvailable {
		t.Error("ToolAvailable should be true")
	}
}

func TestLintToolUnavailable(t *testing.T) {
	r, _ := testRunner(t)
	// DetectAvailable not finding the tool must not fail the run.
	t.Setenv("PATH", t.TempDir())
	r.DetectAvailable()

	res, err := r.Lint(context.Background(), "/proj/main.go")
	if err != nil {
		t.Fatalf("Lint: %v", err)
	}
	if !res.Valid || res.ToolAvailable {
		t.Errorf("result = %+v, want valid with ToolAvailable=false", res)
	}
	if res.IssueCount() != 0 {
		t.Error("unavailable tool must yield no issues")
	}
}

func TestLintWithoutDetectAvailable(t *testing.T) {
	r, bin := testRunner(t)
	fakeTool(t, bin, "golangci-lint", `cat <<'EOF'
{"Issues": [{"FromLinter": "errcheck", "Text": "x", "Pos": {"Filename": "main.go", "Line": 1}}]}
EOF`)

	// No DetectAvailable call: the runner must consult PATH on demand
	// and still execute the installed tool.
	res, err := r.Lint(context.Background(), tempGoFile(t))
	if err != nil {
		t.Fatalf("Lint: %v", err)
	}
	if !res.ToolAvailable {
		t.Fatal("installed tool reported unavailable without an upfront scan")
	}
	if len(res.Errors) != 1 {
		t.Errorf("Errors = %+v", res.Errors)
	}
}

func TestIsAvailableLazyLookup(t *testing.T) {
	r, bin := testRunner(t)
	fakeTool(t, bin, "gofmt", "")

	if !r.IsAvailable("gofmt") {
		t.Error("installed tool reported unavailable")
	}
	if r.IsAvailable("no-such-tool") {
		t.Error("missing tool reported available")
	}
}

func TestLintUnsupportedExtension(t *testing.T) {
	r, _ := testRunner(t)
	if _, err := r.Lint(context.Background(), "/proj/readme.txt"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("err = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestLintToolFailure(t *testing.T) {
	r, bin := testRunner(t)
	// Non-zero exit with empty stdout is a real failure.
	fakeTool(t, bin, "golangci-lint", `echo "panic: config broken" >&2
exit 3`)
	r.DetectAvailable()

	_, err := r.Lint(context.Background(), tempGoFile(t))
	if !errors.Is(err, ErrToolFailed) {
		t.Fatalf("err = %v, want ErrToolFailed", err)
	}
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Output == "" {
		t.Errorf("stderr should be captured: %v", err)
	}
}

func TestLintNonZeroExitWithFindings(t *testing.T) {
	r, bin := testRunner(t)
	// Linters exit non-zero when they find issues; stdout still counts.
	fakeTool(t, bin, "golangci-lint", `cat <<'EOF'
{"Issues": [{"FromLinter": "errcheck", "Text": "x", "Pos": {"Filename": "main.go", "Line": 1}}]}
EOF
exit 1`)
	r.DetectAvailable()

	res, err := r.Lint(context.Background(), tempGoFile(t))
	if err != nil {
		t.Fatalf("Lint: %v", err)
	}
	if len(res.Errors) != 1 {
		t.Errorf("Errors = %+v", res.Errors)
	}
}

func TestLintTimeout(t *testing.T) {
	r, bin := testRunner(t, WithTimeout(100*time.Millisecond))
	fakeTool(t, bin, "golangci-lint", "sleep 5")
	r.DetectAvailable()

	_, err := r.Lint(context.Background(), tempGoFile(t))
	if !errors.Is(err, ErrToolTimeout) {
		t.Fatalf("err = %v, want ErrToolTimeout", err)
	}
}

func TestFormatCheck(t *testing.T) {
	r, bin := testRunner(t)
	// gofmt -l prints the names of unformatted files.
	fakeTool(t, bin, "gofmt", `case "$*" in
  *dirty.go*) echo "dirty.go" ;;
esac`)
	r.DetectAvailable()

	dir := t.TempDir()
	for _, name := range []string{"dirty.go", "clean.go"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("package x\n"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	res, err := r.FormatCheck(context.Background(), filepath.Join(dir, "dirty.go"))
	if err != nil {
		t.Fatalf("FormatCheck: %v", err)
	}
	if res.Valid {
		t.Error("unformatted file should fail the check")
	}
	if len(res.Errors) != 1 || res.Errors[0].Rule != "format" {
		t.Errorf("Errors = %+v", res.Errors)
	}
	if !res.Errors[0].CanAutoFix {
		t.Error("gofmt declares fix args; issue should be auto-fixable")
	}

	res, err = r.FormatCheck(context.Background(), filepath.Join(dir, "clean.go"))
	if err != nil {
		t.Fatalf("FormatCheck(clean): %v", err)
	}
	if !res.Valid {
		t.Errorf("clean file should pass: %+v", res.Errors)
	}
}

func TestPolicyMatching(t *testing.T) {
	p := &RulePolicy{
		BlockOn: []string{"errcheck", "SA"},
		WarnOn:  []string{"unused"},
		Ignore:  []string{"lll"},
	}

	tests := []struct {
		rule string
		want Severity
	}{
		{"errcheck", SeverityError},
		{"errcheck/assert", SeverityError}, // hierarchy match
		{"SA1000", SeverityError},          // code prefix match
		{"SAX", SeverityWarning},           // prefix without digit does not match
		{"unused", SeverityWarning},
		{"lll", SeverityInfo},
		{"anything-else", SeverityWarning},
	}
	for _, tt := range tests {
		if got := p.GetSeverity(tt.rule); got != tt.want {
			t.Errorf("GetSeverity(%q) = %v, want %v", tt.rule, got, tt.want)
		}
	}
}

func TestApplyPolicyNil(t *testing.T) {
	issues := []Issue{{Rule: "x"}, {Rule: "y"}}
	errs, warnings, infos := ApplyPolicy(issues, nil)
	if len(errs) != 0 || len(warnings) != 2 || len(infos) != 0 {
		t.Errorf("nil policy should warn on everything: %d/%d/%d",
			len(errs), len(warnings), len(infos))
	}
}
