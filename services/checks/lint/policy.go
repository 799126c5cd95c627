// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lint

import (
	"strings"
	"sync"
)

// =============================================================================
// RULE POLICY
// =============================================================================

// RulePolicy defines how to treat specific linter rules.
//
// Rules are matched by exact name, hierarchy prefix ("errcheck" matches
// "errcheck/assert"), or code prefix ("SA" matches "SA1000").
//
// Thread Safety: Treat as immutable after creation.
type RulePolicy struct {
	// BlockOn are rules treated as errors.
	BlockOn []string

	// WarnOn are rules treated as warnings.
	WarnOn []string

	// Ignore are rules dropped entirely.
	Ignore []string
}

// ShouldBlock returns true if the rule is treated as an error.
func (p *RulePolicy) ShouldBlock(rule string) bool {
	return matchesAny(rule, p.BlockOn)
}

// ShouldWarn returns true if the rule is treated as a warning.
func (p *RulePolicy) ShouldWarn(rule string) bool {
	return matchesAny(rule, p.WarnOn)
}

// ShouldIgnore returns true if the rule is dropped.
func (p *RulePolicy) ShouldIgnore(rule string) bool {
	return matchesAny(rule, p.Ignore)
}

// GetSeverity returns the severity for a rule based on policy.
//
// Ignore takes precedence, then BlockOn, then WarnOn. The default is
// SeverityWarning.
func (p *RulePolicy) GetSeverity(rule string) Severity {
	if p.ShouldIgnore(rule) {
		return SeverityInfo
	}
	if p.ShouldBlock(rule) {
		return SeverityError
	}
	if p.ShouldWarn(rule) {
		return SeverityWarning
	}
	return SeverityWarning
}

func matchesAny(rule string, patterns []string) bool {
	rule = strings.ToLower(rule)
	for _, pattern := range patterns {
		if matchesRule(rule, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// matchesRule checks if a rule matches a pattern by exact match,
// hierarchy ("errcheck/assert" matches "errcheck"), or code prefix
// where the pattern is followed by a digit ("SA1000" matches "SA").
func matchesRule(rule, pattern string) bool {
	if rule == pattern {
		return true
	}
	if strings.HasPrefix(rule, pattern+"/") {
		return true
	}
	if strings.HasPrefix(rule, pattern) && len(rule) > len(pattern) {
		next := rule[len(pattern)]
		if next >= '0' && next <= '9' {
			return true
		}
	}
	return false
}

// =============================================================================
// DEFAULT POLICIES
// =============================================================================

// DefaultGoPolicy blocks on correctness and security issues, warns on
// code quality, and ignores pure style (formatting is its own check).
var DefaultGoPolicy = RulePolicy{
	BlockOn: []string{
		"errcheck",
		"typecheck",
		"staticcheck",
		"SA",
		"gosec",
		"G",
		"nilness",
		"nilerr",
		"datarace",
	},
	WarnOn: []string{
		"ineffassign",
		"unused",
		"deadcode",
		"govet",
		"shadow",
		"prealloc",
		"copylock",
		"unconvert",
		"unparam",
	},
	Ignore: []string{
		"lll",
		"gofmt",
		"goimports",
		"whitespace",
		"wsl",
		"gocyclo",
		"gocognit",
		"funlen",
		"revive/var-naming",
		"stylecheck/ST1003",
	},
}

// DefaultPythonPolicy covers Ruff's rule-code families.
var DefaultPythonPolicy = RulePolicy{
	BlockOn: []string{
		"F",   // Pyflakes: logic errors
		"S",   // bandit security rules
		"PGH", // pygrep-hooks
	},
	WarnOn: []string{
		"E",
		"W",
		"C90", // mccabe complexity
		"I",
	},
	Ignore: []string{
		"E501", // line length fights diffs
		"W291",
		"W293",
		"E302",
		"E303",
		"D",
	},
}

// DefaultTSPolicy covers ESLint rules for TypeScript and JavaScript.
var DefaultTSPolicy = RulePolicy{
	BlockOn: []string{
		"@typescript-eslint/no-unsafe",
		"@typescript-eslint/no-explicit-any",
		"no-undef",
		"no-unused-vars",
		"no-eval",
		"no-implied-eval",
	},
	WarnOn: []string{
		"eqeqeq",
		"no-console",
		"prefer-const",
		"complexity",
	},
	Ignore: []string{
		// Formatting belongs to prettier.
		"indent",
		"semi",
		"quotes",
		"comma-dangle",
		"max-len",
	},
}

// DefaultRustPolicy covers clippy lint groups.
var DefaultRustPolicy = RulePolicy{
	BlockOn: []string{
		"clippy::correctness",
		"clippy::suspicious",
		"clippy::unwrap_used",
		"clippy::expect_used",
	},
	WarnOn: []string{
		"clippy::perf",
		"clippy::complexity",
	},
	Ignore: []string{
		"clippy::style",
		"clippy::pedantic",
	},
}

// DefaultRubyPolicy covers rubocop cop departments.
var DefaultRubyPolicy = RulePolicy{
	BlockOn: []string{
		"lint",
		"security",
	},
	WarnOn: []string{
		"performance",
		"metrics",
	},
	Ignore: []string{
		// Layout cops are formatting.
		"layout",
	},
}

// =============================================================================
// POLICY REGISTRY
// =============================================================================

// PolicyRegistry manages policies per language.
//
// Thread Safety: Safe for concurrent use after initialization.
type PolicyRegistry struct {
	mu       sync.RWMutex
	policies map[string]*RulePolicy
}

// NewPolicyRegistry creates a registry with default policies.
func NewPolicyRegistry() *PolicyRegistry {
	r := &PolicyRegistry{
		policies: make(map[string]*RulePolicy),
	}
	r.policies["go"] = &DefaultGoPolicy
	r.policies["python"] = &DefaultPythonPolicy
	r.policies["typescript"] = &DefaultTSPolicy
	r.policies["javascript"] = &DefaultTSPolicy
	r.policies["rust"] = &DefaultRustPolicy
	r.policies["ruby"] = &DefaultRubyPolicy
	return r
}

// Get returns the policy for a language, or nil if none is registered.
func (r *PolicyRegistry) Get(language string) *RulePolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policies[language]
}

// Register adds or replaces a policy for a language.
func (r *PolicyRegistry) Register(language string, policy *RulePolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[language] = policy
}

// ApplyPolicy recategorizes issues by policy severity.
//
// Inputs:
//
//	issues - Raw issues from a parser.
//	policy - The policy to apply. Nil treats everything as a warning.
//
// Outputs:
//
//	errors, warnings, infos - Issues split by effective severity.
//	Ignored rules are dropped.
func ApplyPolicy(issues []Issue, policy *RulePolicy) (errors, warnings, infos []Issue) {
	if policy == nil {
		return nil, issues, nil
	}

	errors = make([]Issue, 0)
	warnings = make([]Issue, 0)
	infos = make([]Issue, 0)

	for _, issue := range issues {
		if policy.ShouldIgnore(issue.Rule) {
			continue
		}
		issue.Severity = policy.GetSeverity(issue.Rule)
		switch issue.Severity {
		case SeverityError:
			errors = append(errors, issue)
		case SeverityWarning:
			warnings = append(warnings, issue)
		case SeverityInfo:
			infos = append(infos, issue)
		}
	}
	return errors, warnings, infos
}
