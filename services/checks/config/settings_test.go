// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	s := Default()

	if !s.Checks.Lint || !s.Checks.Format || !s.Checks.Test {
		t.Error("all check kinds should default to enabled")
	}
	if len(s.TestModes) != 1 || s.TestModes[0] != ModeFocused {
		t.Errorf("TestModes = %v, want [focused]", s.TestModes)
	}
	if s.CommandTimeout != 0 {
		t.Errorf("CommandTimeout = %v, want 0 (unbounded)", s.CommandTimeout)
	}
	if s.FailFast {
		t.Error("FailFast should default to false")
	}
	if !s.LanguageEnabled("go") {
		t.Error("languages should default to enabled")
	}
}

func TestLoadEmptyRoot(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.IgnoreFile != ".breakwaterignore" {
		t.Errorf("IgnoreFile = %q", s.IgnoreFile)
	}
}

func TestProjectFileLayer(t *testing.T) {
	root := t.TempDir()
	yaml := `
fail_fast: true
test_modes: [focused, package]
languages:
  ruby: false
checks:
  lint: true
  format: false
  test: true
`
	if err := os.WriteFile(filepath.Join(root, ProjectFileName), []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !s.FailFast {
		t.Error("FailFast should come from the project file")
	}
	if len(s.TestModes) != 2 || s.TestModes[1] != ModePackage {
		t.Errorf("TestModes = %v", s.TestModes)
	}
	if s.LanguageEnabled("ruby") {
		t.Error("ruby should be disabled")
	}
	if s.Checks.Format {
		t.Error("format should be disabled")
	}
}

func TestProjectFileInvalid(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ProjectFileName), []byte("test_modes: [sometimes]"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(root)
	if !errors.Is(err, ErrProjectFile) {
		t.Errorf("err = %v, want ErrProjectFile", err)
	}
}

func TestProjectFileUnknownKey(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ProjectFileName), []byte("fial_fast: true"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(root); err == nil {
		t.Error("typoed keys should be rejected")
	}
}

func TestEnvironmentLayer(t *testing.T) {
	s := Default()
	environ := []string{
		"BREAKWATER_FAIL_FAST=true",
		"BREAKWATER_TEST_MODES=package,all",
		"BREAKWATER_DISABLE=python,ruby",
		"BREAKWATER_TIMEOUT=90s",
		"PATH=/usr/bin", // unrelated entries ignored
	}

	if err := s.applyEnvironment(environ); err != nil {
		t.Fatalf("applyEnvironment: %v", err)
	}

	if !s.FailFast {
		t.Error("FailFast not applied")
	}
	if len(s.TestModes) != 2 || s.TestModes[0] != ModePackage || s.TestModes[1] != ModeAll {
		t.Errorf("TestModes = %v", s.TestModes)
	}
	if s.LanguageEnabled("python") || s.LanguageEnabled("ruby") {
		t.Error("disabled languages not applied")
	}
	if s.LanguageEnabled("go") == false {
		t.Error("go should stay enabled")
	}
	if s.CommandTimeout != 90*time.Second {
		t.Errorf("CommandTimeout = %v", s.CommandTimeout)
	}
}

func TestEnvironmentLayerBadValues(t *testing.T) {
	tests := []string{
		"BREAKWATER_FAIL_FAST=maybe",
		"BREAKWATER_TIMEOUT=soon",
		"BREAKWATER_TEST_MODES=focused,sometimes",
	}
	for _, entry := range tests {
		s := Default()
		if err := s.applyEnvironment([]string{entry}); err == nil {
			t.Errorf("applyEnvironment(%q) should fail", entry)
		}
	}
}

func TestOverrideScript(t *testing.T) {
	root := t.TempDir()
	script := `#!/bin/sh
# conditional override: tighten in CI
if [ -n "$TEST_FAKE_CI" ]; then
  echo "BREAKWATER_FAIL_FAST=true"
fi
echo "BREAKWATER_TEST_MODES=all"
`
	if err := os.WriteFile(filepath.Join(root, OverrideScriptName), []byte(script), 0700); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TEST_FAKE_CI", "1")

	s, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.FailFast {
		t.Error("override script FAIL_FAST not applied")
	}
	if len(s.TestModes) != 1 || s.TestModes[0] != ModeAll {
		t.Errorf("TestModes = %v, want [all]", s.TestModes)
	}
}

func TestOverrideScriptSeesCurrentSettings(t *testing.T) {
	root := t.TempDir()
	// Flip fail-fast relative to whatever the earlier layers resolved.
	script := `#!/bin/sh
if [ "$BREAKWATER_FAIL_FAST" = "true" ]; then
  echo "BREAKWATER_FAIL_FAST=false"
else
  echo "BREAKWATER_FAIL_FAST=true"
fi
`
	if err := os.WriteFile(filepath.Join(root, OverrideScriptName), []byte(script), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ProjectFileName), []byte("fail_fast: true"), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.FailFast {
		t.Error("script should have seen fail_fast=true and flipped it")
	}
}

func TestOverrideScriptFailureIsFatal(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"non-zero exit", "#!/bin/sh\nexit 3\n"},
		{"malformed output", "#!/bin/sh\necho not-a-kv-line\n"},
		{"foreign namespace", "#!/bin/sh\necho PATH=/tmp\n"},
		{"bad value", "#!/bin/sh\necho BREAKWATER_FAIL_FAST=perhaps\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			if err := os.WriteFile(filepath.Join(root, OverrideScriptName), []byte(tt.script), 0700); err != nil {
				t.Fatal(err)
			}
			_, err := Load(root)
			if !errors.Is(err, ErrOverrideScript) {
				t.Errorf("err = %v, want ErrOverrideScript", err)
			}
		})
	}
}

func TestExportRoundTrip(t *testing.T) {
	s := Default()
	s.FailFast = true
	s.TestModes = []TestMode{ModeFocused, ModeAll}
	s.Languages["python"] = false

	env := s.Export()

	if env.Get("BREAKWATER_FAIL_FAST") != "true" {
		t.Error("FAIL_FAST not exported")
	}
	if env.Get("BREAKWATER_TEST_MODES") != "focused,all" {
		t.Errorf("TEST_MODES = %q", env.Get("BREAKWATER_TEST_MODES"))
	}
	if env.Get("BREAKWATER_DISABLE") != "python" {
		t.Errorf("DISABLE = %q", env.Get("BREAKWATER_DISABLE"))
	}

	// Applying the export to fresh defaults reproduces the settings.
	fresh := Default()
	if err := fresh.applyEnvironment(env.ToSlice()); err != nil {
		t.Fatalf("applyEnvironment: %v", err)
	}
	if !fresh.FailFast || len(fresh.TestModes) != 2 || fresh.LanguageEnabled("python") {
		t.Error("export did not round-trip")
	}
}

func TestEnvVarRedaction(t *testing.T) {
	ev := EnvVar{Key: "BREAKWATER_AUTH_TOKEN", Value: "hunter2", Sensitive: true}
	if ev.Redacted() != "BREAKWATER_AUTH_TOKEN=[REDACTED]" {
		t.Errorf("Redacted = %q", ev.Redacted())
	}
	if !isSensitiveKey("MY_API_KEY") || isSensitiveKey("BREAKWATER_TIMEOUT") {
		t.Error("sensitive key detection wrong")
	}
}

func TestEnvVarValidation(t *testing.T) {
	bad := EnvVar{Key: "BREAK WATER", Value: "x"}
	if err := bad.Validate(); err == nil {
		t.Error("key with space should fail validation")
	}
	if _, err := NewEnvVars(bad); err == nil {
		t.Error("NewEnvVars should reject invalid keys")
	}
}
