// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config resolves breakwater settings from layered sources.
//
// Resolution order, later layers win:
//
//  1. Built-in defaults
//  2. Project .breakwater.yaml
//  3. BREAKWATER_* environment variables
//  4. Project .breakwater.local.sh override script
//
// The override script sits last so a project can apply arbitrary logic,
// including conditional overrides by environment. A script that fails to
// load is fatal: required configuration that cannot be resolved must stop
// the run rather than silently degrade.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Settings
// =============================================================================

// ProjectFileName is the declarative per-project settings file.
const ProjectFileName = ".breakwater.yaml"

// OverrideScriptName is the executable per-project override script.
const OverrideScriptName = ".breakwater.local.sh"

// TestMode identifies one test-selection strategy.
type TestMode string

const (
	// ModeFocused targets the test artifact for the edited file.
	ModeFocused TestMode = "focused"

	// ModePackage targets the edited file's containing directory.
	ModePackage TestMode = "package"

	// ModeAll targets the whole project.
	ModeAll TestMode = "all"
)

// CheckToggles enables or disables whole check kinds.
type CheckToggles struct {
	Lint   bool `yaml:"lint"`
	Format bool `yaml:"format"`
	Test   bool `yaml:"test"`
}

// TelemetrySettings selects trace/metric exporters.
//
// Hook invocations default to "none" for both: a hook must not dial
// collectors on the edit path.
type TelemetrySettings struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`
	MetricExporter string `yaml:"metric_exporter" validate:"omitempty,oneof=prometheus otlp stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

// Settings is the effective configuration for one run.
//
// Lifetime is a single invocation; nothing is persisted across runs.
//
// Thread Safety: Treat as immutable after Load.
type Settings struct {
	// Languages maps language name to enabled. A language absent from the
	// map is enabled; an explicit false guarantees zero invocations for it.
	Languages map[string]bool `yaml:"languages"`

	// Checks toggles whole check kinds.
	Checks CheckToggles `yaml:"checks"`

	// TestModes is the ordered list of test-selection modes to run.
	TestModes []TestMode `yaml:"test_modes" validate:"dive,oneof=focused package all"`

	// RequireTests makes a missing focused-test artifact a recorded
	// failure instead of a silent skip.
	RequireTests bool `yaml:"require_tests"`

	// FailFast halts the check list after the first failure.
	FailFast bool `yaml:"fail_fast"`

	// CommandTimeout bounds each external command. 0 disables the bound;
	// tools then run to completion (hook default).
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// CacheEnabled turns on the content-hash result cache.
	CacheEnabled bool `yaml:"cache"`

	// CacheDir is the badger directory. Empty selects ~/.breakwater/cache.
	CacheDir string `yaml:"cache_dir"`

	// IgnoreFile names the project ignore file.
	IgnoreFile string `yaml:"ignore_file"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// Telemetry selects exporters.
	Telemetry TelemetrySettings `yaml:"telemetry"`
}

// Default returns the built-in settings layer.
func Default() *Settings {
	return &Settings{
		Languages: map[string]bool{},
		Checks:    CheckToggles{Lint: true, Format: true, Test: true},
		TestModes: []TestMode{ModeFocused},
		FailFast:  false,
		// No ceiling: tools run to completion unless configured otherwise.
		CommandTimeout: 0,
		CacheEnabled:   false,
		IgnoreFile:     ".breakwaterignore",
		LogLevel:       "warn",
		Telemetry: TelemetrySettings{
			TraceExporter:  "none",
			MetricExporter: "none",
			OTLPEndpoint:   "localhost:4317",
		},
	}
}

// LanguageEnabled reports whether checks may run for a language.
func (s *Settings) LanguageEnabled(language string) bool {
	enabled, present := s.Languages[language]
	if !present {
		return true
	}
	return enabled
}

// validate is shared across layers; struct tags carry the rules.
var validate = validator.New()

// =============================================================================
// Layered Load
// =============================================================================

// Load resolves the effective settings for a project root.
//
// Description:
//
//	Applies all four layers in order. YAML and environment layers are
//	tolerant of absence; the override script layer is fatal on any
//	failure (spawn error, non-zero exit, malformed output).
//
// Inputs:
//
//	root - Project root directory. Layers 2 and 4 are looked up here.
//
// Outputs:
//
//	*Settings - The effective settings.
//	error - Non-nil on YAML parse/validation failure or override failure.
func Load(root string) (*Settings, error) {
	s := Default()

	if err := s.applyProjectFile(filepath.Join(root, ProjectFileName)); err != nil {
		return nil, err
	}

	if err := s.applyEnvironment(os.Environ()); err != nil {
		return nil, err
	}

	if err := s.applyOverrideScript(root); err != nil {
		return nil, err
	}

	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	return s, nil
}

// applyProjectFile merges .breakwater.yaml when present.
//
// Absence is not an error; a file that exists but fails to parse or
// validate is.
func (s *Settings) applyProjectFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrProjectFile, path, err)
	}

	// Decode over the current values so absent keys keep their layer-1
	// defaults. KnownFields rejects typoed keys early.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrProjectFile, path, err)
	}

	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrProjectFile, path, err)
	}
	return nil
}
