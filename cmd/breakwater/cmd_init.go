// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harborworks/breakwater/pkg/ux"
	"github.com/harborworks/breakwater/services/checks/config"
	"github.com/harborworks/breakwater/services/checks/project"
)

// initCmd interactively writes a starter .breakwater.yaml.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a .breakwater.yaml for this project",
	Args:  cobra.NoArgs,
	RunE:  runInitCommand,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInitCommand(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd.Context(), "", "init", false)
	if err != nil {
		return err
	}
	defer e.close()

	path := filepath.Join(e.root, config.ProjectFileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists; edit it directly", path)
	}

	// Preselect what the project actually contains.
	var detected []string
	for _, d := range project.Detect(e.root, e.cat) {
		detected = append(detected, d.Language.Name)
	}

	var langOptions []huh.Option[string]
	for _, name := range e.cat.Languages() {
		langOptions = append(langOptions, huh.NewOption(name, name))
	}

	enabled := detected
	checkKinds := []string{"lint", "format", "test"}
	testModes := []string{"focused"}
	failFast := false
	requireTests := false

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Languages to check").
				Description("Unselected languages are disabled entirely.").
				Options(langOptions...).
				Value(&enabled),
			huh.NewMultiSelect[string]().
				Title("Check kinds").
				Options(
					huh.NewOption("lint", "lint"),
					huh.NewOption("format", "format"),
					huh.NewOption("test", "test"),
				).
				Value(&checkKinds),
		),
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Test modes (run in this order)").
				Options(
					huh.NewOption("focused: the file's own tests", "focused"),
					huh.NewOption("package: the containing directory", "package"),
					huh.NewOption("all: the whole project", "all"),
				).
				Value(&testModes),
			huh.NewConfirm().
				Title("Fail fast?").
				Description("Stop the check list at the first failure.").
				Value(&failFast),
			huh.NewConfirm().
				Title("Require tests?").
				Description("Treat a missing test file as a failure.").
				Value(&requireTests),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	doc := buildConfigYAML(e.cat.Languages(), enabled, checkKinds, testModes, failFast, requireTests)
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	ux.Success("wrote " + path)
	ux.Muted("run `breakwater install` to wire up the hook")
	return nil
}

// buildConfigYAML renders the wizard's answers as a commented config.
func buildConfigYAML(allLanguages, enabled, kinds, modes []string, failFast, requireTests bool) string {
	on := map[string]bool{}
	for _, l := range enabled {
		on[l] = true
	}
	kind := map[string]bool{}
	for _, k := range kinds {
		kind[k] = true
	}

	settings := map[string]any{
		"checks": map[string]bool{
			"lint":   kind["lint"],
			"format": kind["format"],
			"test":   kind["test"],
		},
		"test_modes":    modes,
		"fail_fast":     failFast,
		"require_tests": requireTests,
	}

	// Only write explicit false entries; absence means enabled.
	languages := map[string]bool{}
	for _, l := range allLanguages {
		if !on[l] {
			languages[l] = false
		}
	}
	if len(languages) > 0 {
		settings["languages"] = languages
	}

	var b strings.Builder
	b.WriteString("# breakwater configuration. Layered under BREAKWATER_* environment\n")
	b.WriteString("# variables and .breakwater.local.sh overrides.\n")
	data, _ := yaml.Marshal(settings)
	b.Write(data)
	return b.String()
}
