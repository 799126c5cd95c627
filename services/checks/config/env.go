// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is the namespace for breakwater environment variables.
const EnvPrefix = "BREAKWATER_"

// envVarKeyPattern validates environment variable key names.
// Keys must start with a letter or underscore and contain only
// alphanumerics and underscores. This follows POSIX conventions and
// prevents shell metacharacter injection via the override script.
var envVarKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidEnvVarKey is returned when an environment variable key is invalid.
var ErrInvalidEnvVarKey = fmt.Errorf("invalid environment variable key")

// =============================================================================
// EnvVar / EnvVars
// =============================================================================

// EnvVar represents a single environment variable.
//
// # Example
//
//	ev := EnvVar{Key: "BREAKWATER_TOKEN", Value: "secret", Sensitive: true}
//	fmt.Println(ev.Redacted()) // BREAKWATER_TOKEN=[REDACTED]
type EnvVar struct {
	// Key is the environment variable name.
	// Must match pattern: ^[a-zA-Z_][a-zA-Z0-9_]*$
	Key string

	// Value is the environment variable value.
	// May be empty string (valid in POSIX).
	Value string

	// Sensitive indicates this value should be redacted in logs.
	Sensitive bool
}

// String returns the KEY=VALUE format.
func (e EnvVar) String() string {
	return fmt.Sprintf("%s=%s", e.Key, e.Value)
}

// Redacted returns KEY=[REDACTED] for sensitive vars, otherwise String().
func (e EnvVar) Redacted() string {
	if e.Sensitive {
		return fmt.Sprintf("%s=[REDACTED]", e.Key)
	}
	return e.String()
}

// Validate checks if the key is valid.
func (e EnvVar) Validate() error {
	if !envVarKeyPattern.MatchString(e.Key) {
		return fmt.Errorf("%w: %q must match pattern [a-zA-Z_][a-zA-Z0-9_]*", ErrInvalidEnvVarKey, e.Key)
	}
	return nil
}

// EnvVars is a validated collection of environment variables.
//
// Used to pass settings into the override script and to log the
// environment safely.
//
// # Thread Safety
//
// EnvVars is NOT thread-safe. Do not modify concurrently.
type EnvVars struct {
	vars []EnvVar
}

// NewEnvVars creates a validated EnvVars collection.
func NewEnvVars(vars ...EnvVar) (*EnvVars, error) {
	for _, v := range vars {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return &EnvVars{vars: vars}, nil
}

// EmptyEnvVars returns an empty EnvVars.
func EmptyEnvVars() *EnvVars {
	return &EnvVars{vars: []EnvVar{}}
}

// Add appends a validated environment variable.
func (e *EnvVars) Add(key, value string, sensitive bool) error {
	ev := EnvVar{Key: key, Value: value, Sensitive: sensitive}
	if err := ev.Validate(); err != nil {
		return err
	}
	e.vars = append(e.vars, ev)
	return nil
}

// MustAdd adds a variable or panics. Use only for compile-time keys.
func (e *EnvVars) MustAdd(key, value string, sensitive bool) {
	if err := e.Add(key, value, sensitive); err != nil {
		panic(err)
	}
}

// Get returns the value for a key, or empty string if not found.
func (e *EnvVars) Get(key string) string {
	if e == nil {
		return ""
	}
	// Return last value for key (in case of duplicates)
	for i := len(e.vars) - 1; i >= 0; i-- {
		if e.vars[i].Key == key {
			return e.vars[i].Value
		}
	}
	return ""
}

// Len returns the number of environment variables.
func (e *EnvVars) Len() int {
	if e == nil {
		return 0
	}
	return len(e.vars)
}

// ToSlice converts to []string format for exec.Cmd.Env.
func (e *EnvVars) ToSlice() []string {
	if e == nil {
		return nil
	}
	result := make([]string, len(e.vars))
	for i, v := range e.vars {
		result[i] = v.String()
	}
	return result
}

// RedactedSlice returns []string with sensitive values masked.
// Safe for logging.
func (e *EnvVars) RedactedSlice() []string {
	if e == nil {
		return nil
	}
	result := make([]string, len(e.vars))
	for i, v := range e.vars {
		result[i] = v.Redacted()
	}
	return result
}

// isSensitiveKey detects common sensitive key patterns.
func isSensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	return strings.Contains(upper, "TOKEN") ||
		strings.Contains(upper, "SECRET") ||
		strings.Contains(upper, "PASSWORD") ||
		strings.Contains(upper, "CREDENTIAL") ||
		strings.Contains(upper, "API_KEY") ||
		strings.Contains(upper, "AUTH")
}

// =============================================================================
// Environment Layer
// =============================================================================

// applyEnvironment merges BREAKWATER_* variables over the current settings.
//
// environ is os.Environ()-shaped ("KEY=VALUE" entries). Unknown
// BREAKWATER_ keys are ignored so the namespace can grow without breaking
// older binaries.
func (s *Settings) applyEnvironment(environ []string) error {
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if err := s.applyEnvVar(key, value); err != nil {
			return err
		}
	}
	return nil
}

// applyEnvVar applies one BREAKWATER_* key. Shared by the environment
// layer and the override-script output parser.
func (s *Settings) applyEnvVar(key, value string) error {
	switch key {
	case "BREAKWATER_FAIL_FAST":
		return setBool(&s.FailFast, key, value)
	case "BREAKWATER_REQUIRE_TESTS":
		return setBool(&s.RequireTests, key, value)
	case "BREAKWATER_LINT":
		return setBool(&s.Checks.Lint, key, value)
	case "BREAKWATER_FORMAT":
		return setBool(&s.Checks.Format, key, value)
	case "BREAKWATER_TEST":
		return setBool(&s.Checks.Test, key, value)
	case "BREAKWATER_CACHE":
		return setBool(&s.CacheEnabled, key, value)
	case "BREAKWATER_CACHE_DIR":
		s.CacheDir = value
	case "BREAKWATER_IGNORE_FILE":
		s.IgnoreFile = value
	case "BREAKWATER_LOG_LEVEL":
		s.LogLevel = value
	case "BREAKWATER_TIMEOUT":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidSettings, key, value, err)
		}
		s.CommandTimeout = d
	case "BREAKWATER_TEST_MODES":
		modes, err := parseTestModes(value)
		if err != nil {
			return err
		}
		s.TestModes = modes
	case "BREAKWATER_DISABLE":
		for _, lang := range splitList(value) {
			s.Languages[lang] = false
		}
	case "BREAKWATER_ENABLE":
		for _, lang := range splitList(value) {
			s.Languages[lang] = true
		}
	case "BREAKWATER_TRACE_EXPORTER":
		s.Telemetry.TraceExporter = value
	case "BREAKWATER_METRIC_EXPORTER":
		s.Telemetry.MetricExporter = value
	case "BREAKWATER_OTLP_ENDPOINT":
		s.Telemetry.OTLPEndpoint = value
	}
	return nil
}

// Export returns the current settings as BREAKWATER_* variables, the
// environment handed to the override script.
func (s *Settings) Export() *EnvVars {
	env := EmptyEnvVars()
	env.MustAdd("BREAKWATER_FAIL_FAST", strconv.FormatBool(s.FailFast), false)
	env.MustAdd("BREAKWATER_REQUIRE_TESTS", strconv.FormatBool(s.RequireTests), false)
	env.MustAdd("BREAKWATER_LINT", strconv.FormatBool(s.Checks.Lint), false)
	env.MustAdd("BREAKWATER_FORMAT", strconv.FormatBool(s.Checks.Format), false)
	env.MustAdd("BREAKWATER_TEST", strconv.FormatBool(s.Checks.Test), false)
	env.MustAdd("BREAKWATER_CACHE", strconv.FormatBool(s.CacheEnabled), false)
	env.MustAdd("BREAKWATER_IGNORE_FILE", s.IgnoreFile, false)
	env.MustAdd("BREAKWATER_LOG_LEVEL", s.LogLevel, false)
	env.MustAdd("BREAKWATER_TIMEOUT", s.CommandTimeout.String(), false)

	modes := make([]string, len(s.TestModes))
	for i, m := range s.TestModes {
		modes[i] = string(m)
	}
	env.MustAdd("BREAKWATER_TEST_MODES", strings.Join(modes, ","), false)

	var disabled []string
	for lang, enabled := range s.Languages {
		if !enabled {
			disabled = append(disabled, lang)
		}
	}
	if len(disabled) > 0 {
		env.MustAdd("BREAKWATER_DISABLE", strings.Join(disabled, ","), false)
	}
	return env
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: want true/false", ErrInvalidSettings, key, value)
	}
	*dst = b
	return nil
}

func parseTestModes(value string) ([]TestMode, error) {
	parts := splitList(value)
	modes := make([]TestMode, 0, len(parts))
	for _, p := range parts {
		switch TestMode(p) {
		case ModeFocused, ModePackage, ModeAll:
			modes = append(modes, TestMode(p))
		default:
			return nil, fmt.Errorf("%w: unknown test mode %q", ErrInvalidSettings, p)
		}
	}
	return modes, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
