// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package project

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
)

// maxManifestSize bounds any single manifest read (1MB).
const maxManifestSize = 1 << 20

// ErrManifest indicates a manifest exists but could not be parsed.
var ErrManifest = fmt.Errorf("manifest")

// =============================================================================
// Go
// =============================================================================

// GoModule describes the root go.mod.
type GoModule struct {
	Path      string
	GoVersion string
	// Tools holds tool directive paths, e.g.
	// "github.com/golangci/golangci-lint/cmd/golangci-lint".
	Tools map[string]bool
}

// ReadGoModule parses go.mod at root.
//
// The strict parser is required here: ParseLax drops tool directives.
func ReadGoModule(root string) (*GoModule, error) {
	p := filepath.Join(root, "go.mod")
	data, err := readManifest(p)
	if err != nil {
		return nil, err
	}
	f, err := modfile.Parse(p, data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifest, p, err)
	}
	m := &GoModule{Tools: map[string]bool{}}
	if f.Module != nil {
		m.Path = f.Module.Mod.Path
	}
	if f.Go != nil {
		m.GoVersion = f.Go.Version
	}
	for _, tool := range f.Tool {
		m.Tools[tool.Path] = true
	}
	return m, nil
}

// DeclaresTool reports whether go.mod carries a tool directive for the
// named command, matched on the full module path or its final element
// (the directive names a package path, declared_by names a binary).
func (m *GoModule) DeclaresTool(name string) bool {
	if m == nil {
		return false
	}
	if m.Tools[name] {
		return true
	}
	for path := range m.Tools {
		if path[strings.LastIndex(path, "/")+1:] == name {
			return true
		}
	}
	return false
}

// golangciConfigNames are the config files golangci-lint searches for.
var golangciConfigNames = []string{
	".golangci.yml", ".golangci.yaml", ".golangci.toml", ".golangci.json",
}

// HasGolangciConfig reports whether a golangci-lint config file exists
// at root. A checked-in config counts as declaring the tool.
func HasGolangciConfig(root string) bool {
	for _, name := range golangciConfigNames {
		if info, err := os.Stat(filepath.Join(root, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// =============================================================================
// Node
// =============================================================================

// NodeManifest describes the root package.json.
type NodeManifest struct {
	Name            string            `json:"name"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// ReadNodeManifest parses package.json at root.
func ReadNodeManifest(root string) (*NodeManifest, error) {
	p := filepath.Join(root, "package.json")
	data, err := readManifest(p)
	if err != nil {
		return nil, err
	}
	var m NodeManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifest, p, err)
	}
	return &m, nil
}

// DeclaresTool reports whether the manifest declares a tool as a
// dependency or references it in a script.
func (m *NodeManifest) DeclaresTool(name string) bool {
	if m == nil {
		return false
	}
	if _, ok := m.Dependencies[name]; ok {
		return true
	}
	if _, ok := m.DevDependencies[name]; ok {
		return true
	}
	for _, cmd := range m.Scripts {
		for _, word := range strings.Fields(cmd) {
			if word == name {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// Python
// =============================================================================

// PythonManifest describes the root pyproject.toml.
type PythonManifest struct {
	Name string
	// Tools holds the section names under [tool], e.g. "ruff", "pytest".
	Tools map[string]bool
}

// ReadPythonManifest parses pyproject.toml at root.
func ReadPythonManifest(root string) (*PythonManifest, error) {
	p := filepath.Join(root, "pyproject.toml")
	data, err := readManifest(p)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Project struct {
			Name string `toml:"name"`
		} `toml:"project"`
		// Section names under [tool] are what matters; values are not.
		Tool map[string]any `toml:"tool"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifest, p, err)
	}
	m := &PythonManifest{Name: raw.Project.Name, Tools: map[string]bool{}}
	for name := range raw.Tool {
		m.Tools[name] = true
	}
	return m, nil
}

// DeclaresTool reports whether pyproject.toml carries a [tool.<name>]
// section.
func (m *PythonManifest) DeclaresTool(name string) bool {
	return m != nil && m.Tools[name]
}

// =============================================================================
// Rust
// =============================================================================

// RustManifest describes the root Cargo.toml.
type RustManifest struct {
	Name      string
	Workspace bool
	// ClippyLints is whether the manifest carries a [lints.clippy] table,
	// at the package or workspace level.
	ClippyLints bool
}

// ReadRustManifest parses Cargo.toml at root.
func ReadRustManifest(root string) (*RustManifest, error) {
	p := filepath.Join(root, "Cargo.toml")
	data, err := readManifest(p)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
		Lints     map[string]any `toml:"lints"`
		Workspace *struct {
			Lints map[string]any `toml:"lints"`
		} `toml:"workspace"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifest, p, err)
	}
	m := &RustManifest{Name: raw.Package.Name, Workspace: raw.Workspace != nil}
	if _, ok := raw.Lints["clippy"]; ok {
		m.ClippyLints = true
	}
	if raw.Workspace != nil {
		if _, ok := raw.Workspace.Lints["clippy"]; ok {
			m.ClippyLints = true
		}
	}
	return m, nil
}

// clippyConfigNames are the config files clippy searches for.
var clippyConfigNames = []string{"clippy.toml", ".clippy.toml"}

// HasClippyConfig reports whether a clippy config file exists at root.
func HasClippyConfig(root string) bool {
	for _, name := range clippyConfigNames {
		if info, err := os.Stat(filepath.Join(root, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// =============================================================================
// Ruby
// =============================================================================

var gemLinePattern = regexp.MustCompile(`^\s*gem\s+['"]([^'"]+)['"]`)

// RubyManifest describes the root Gemfile.
type RubyManifest struct {
	Gems map[string]bool
}

// ReadRubyManifest scans the Gemfile's gem declarations. The Gemfile is
// Ruby source, so this is a line-level scan of the common declaration
// form, not an evaluation.
func ReadRubyManifest(root string) (*RubyManifest, error) {
	p := filepath.Join(root, "Gemfile")
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifest, p, err)
	}
	defer f.Close()

	m := &RubyManifest{Gems: map[string]bool{}}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if match := gemLinePattern.FindStringSubmatch(scanner.Text()); match != nil {
			m.Gems[match[1]] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifest, p, err)
	}
	return m, nil
}

// DeclaresGem reports whether the Gemfile declares a gem.
func (m *RubyManifest) DeclaresGem(name string) bool {
	return m != nil && m.Gems[name]
}

func readManifest(p string) ([]byte, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifest, p, err)
	}
	if info.Size() > maxManifestSize {
		return nil, fmt.Errorf("%w: %s: exceeds %d bytes", ErrManifest, p, maxManifestSize)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifest, p, err)
	}
	return data, nil
}
