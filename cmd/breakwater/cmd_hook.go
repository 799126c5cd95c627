// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/harborworks/breakwater/services/checks"
	"github.com/harborworks/breakwater/services/checks/hook"
)

// Hook exit codes. 2 is deliberate on success: the calling agent treats
// a non-zero exit as "read the output", so clean runs surface their
// report instead of vanishing.
const (
	exitNothingApplied = 0
	exitEnvError       = 1
	exitChecksRan      = 2
)

// hookCmd is the lifecycle entry point invoked by the coding assistant.
//
// # Description
//
// Reads the hook payload from stdin, runs the check pipeline for the
// edited file, and reports on stderr. Non-edit events and fully gated
// files exit 0; completed check runs exit 2 regardless of verdict;
// environment failures (bad config, unreadable payload) exit 1.
var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Run checks from an assistant lifecycle hook (reads stdin)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		os.Exit(runHook(cmd))
	},
}

func init() {
	rootCmd.AddCommand(hookCmd)
}

func runHook(cmd *cobra.Command) int {
	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()

	raw, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 1))
	if err != nil {
		fmt.Fprintf(stderr, "breakwater: read payload: %v\n", err)
		return exitEnvError
	}

	// Empty stdin means no payload context: check the whole project.
	wholeProject := len(raw) == 0

	var file, cwd string
	if !wholeProject {
		payload, err := hook.Decode(io.MultiReader(bytes.NewReader(raw), cmd.InOrStdin()))
		if err != nil {
			fmt.Fprintf(stderr, "breakwater: decode payload: %v\n", err)
			return exitEnvError
		}
		file = payload.EditedFile()
		if file == "" {
			// Notification for a non-edit tool; nothing to check.
			return exitNothingApplied
		}
		cwd = payload.CWD
	}

	e, err := setup(ctx, cwd, "hook", true)
	if err != nil {
		fmt.Fprintf(stderr, "breakwater: %v\n", err)
		return exitEnvError
	}
	defer e.close()

	p, err := e.pipeline(checks.WithProgress(stderr))
	if err != nil {
		fmt.Fprintf(stderr, "breakwater: %v\n", err)
		return exitEnvError
	}

	var reports []*checks.Report
	if wholeProject {
		files, err := p.SourceFiles()
		if err != nil {
			fmt.Fprintf(stderr, "breakwater: list files: %v\n", err)
			return exitEnvError
		}
		for _, f := range files {
			report, err := p.Run(ctx, f)
			if err != nil {
				fmt.Fprintf(stderr, "breakwater: %v\n", err)
				return exitEnvError
			}
			reports = append(reports, report)
		}
	} else {
		report, err := p.Run(ctx, file)
		if err != nil {
			fmt.Fprintf(stderr, "breakwater: %v\n", err)
			return exitEnvError
		}
		reports = append(reports, report)
	}

	applied := false
	for _, report := range reports {
		writeReportText(stderr, report)
		if report.Applied {
			applied = true
		}
	}
	if !applied {
		return exitNothingApplied
	}
	return exitChecksRan
}
