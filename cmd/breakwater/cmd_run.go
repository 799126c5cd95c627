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

	"github.com/spf13/cobra"

	"github.com/harborworks/breakwater/services/checks"
	"github.com/harborworks/breakwater/services/checks/gitio"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	runChanged  bool // check files the working tree touched
	runAll      bool // check every recognized source file
	runFix      bool // let formatters/linters rewrite files
	runJSON     bool // machine-readable output
	runOnlyDiff bool // keep only lint findings on changed lines
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// runCmd is the manual CLI over the same pipeline the hook uses.
//
// Exit codes: 0 = clean, 2 = findings, 1 = error. Unlike the hook, a
// clean run exits 0 because a human is reading, not an agent.
var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Run checks on explicit files, changed files, or the whole project",
	Long: `Runs the check pipeline outside the hook.

Examples:
  breakwater run main.go            # one file
  breakwater run --changed          # files modified since HEAD
  breakwater run --changed --diff   # ...keeping only findings on changed lines
  breakwater run --all              # every recognized source file
  breakwater run --all --fix        # let formatters rewrite files`,
	RunE: runRunCommand,
}

func init() {
	runCmd.Flags().BoolVar(&runChanged, "changed", false,
		"Check files the working tree modified (requires git)")
	runCmd.Flags().BoolVar(&runAll, "all", false,
		"Check every recognized source file under the project root")
	runCmd.Flags().BoolVar(&runFix, "fix", false,
		"Apply formatter and linter fixes instead of reporting")
	runCmd.Flags().BoolVar(&runJSON, "json", false,
		"Emit reports as JSON")
	runCmd.Flags().BoolVar(&runOnlyDiff, "diff", false,
		"With --changed: drop lint findings outside changed lines")
	rootCmd.AddCommand(runCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runRunCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if runChanged && runAll {
		return fmt.Errorf("--changed and --all are mutually exclusive")
	}
	if len(args) == 0 && !runChanged && !runAll {
		return fmt.Errorf("name files to check, or pass --changed or --all")
	}
	if runOnlyDiff && !runChanged {
		return fmt.Errorf("--diff requires --changed")
	}

	e, err := setup(ctx, "", "run", false)
	if err != nil {
		return err
	}
	defer e.close()

	opts := []checks.PipelineOption{checks.WithFix(runFix)}
	if runJSON {
		opts = append(opts, checks.WithProgress(nil))
	}

	if runChanged && !gitio.Available() {
		return fmt.Errorf("--changed requires git on PATH")
	}
	if runOnlyDiff {
		// One diff parse covers every file in the run.
		changedLines, err := gitio.NewClient(e.root).ChangedLines(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, checks.WithChangedLines(changedLines))
	}

	p, err := e.pipeline(opts...)
	if err != nil {
		return err
	}

	files := args
	switch {
	case runChanged:
		files, err = gitio.NewClient(e.root).ChangedFiles(ctx)
		if err != nil {
			return err
		}
	case runAll:
		files, err = p.SourceFiles()
		if err != nil {
			return err
		}
	}

	var reports []*checks.Report
	failed := false
	for _, file := range files {
		report, err := p.Run(ctx, file)
		if err != nil {
			return err
		}
		reports = append(reports, report)
		if report.Failed() {
			failed = true
		}
		if !runJSON {
			printReportStyled(report)
		}
		if failed && e.settings.FailFast {
			break
		}
	}

	if runJSON {
		if err := writeReportsJSON(cmd.OutOrStdout(), reports); err != nil {
			return err
		}
	}

	if failed {
		os.Exit(2)
	}
	return nil
}
