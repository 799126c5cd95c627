// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os/exec"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harborworks/breakwater/pkg/ux"
	"github.com/harborworks/breakwater/services/checks/gitio"
	"github.com/harborworks/breakwater/services/checks/project"
)

// doctorCmd reports which catalog tools are installed.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check which linters, formatters, and test runners are installed",
	Args:  cobra.NoArgs,
	RunE:  runDoctorCommand,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// probe is one tool availability result.
type probe struct {
	language string
	kind     string
	command  string
	path     string
	found    bool
}

func runDoctorCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	e, err := setup(ctx, "", "doctor", false)
	if err != nil {
		return err
	}
	defer e.close()

	// Collect every distinct command the catalog can invoke.
	type job struct{ language, kind, command string }
	var jobs []job
	for _, name := range e.cat.Languages() {
		lang := e.cat.Get(name)
		if lang.Lint != nil {
			jobs = append(jobs, job{name, "lint", lang.Lint.Command})
		}
		if lang.Format != nil {
			jobs = append(jobs, job{name, "format", lang.Format.Command})
		}
		if lang.Test != nil {
			seen := map[string]bool{}
			for _, argv := range [][]string{
				lang.Test.FocusedCommand, lang.Test.PackageCommand, lang.Test.AllCommand,
			} {
				if len(argv) > 0 && !seen[argv[0]] {
					seen[argv[0]] = true
					jobs = append(jobs, job{name, "test", argv[0]})
				}
			}
		}
	}

	// Probes are pure LookPath calls; run them concurrently.
	var mu sync.Mutex
	results := make([]probe, 0, len(jobs))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, j := range jobs {
		g.Go(func() error {
			path, err := exec.LookPath(j.command)
			mu.Lock()
			results = append(results, probe{
				language: j.language, kind: j.kind, command: j.command,
				path: path, found: err == nil,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(results, func(i, k int) bool {
		if results[i].language != results[k].language {
			return results[i].language < results[k].language
		}
		return results[i].kind < results[k].kind
	})

	ux.Title("breakwater doctor")
	ux.Muted("project root: " + e.root)

	detections := project.Detect(e.root, e.cat)
	if len(detections) == 0 {
		ux.Muted("no languages detected at the root")
	}
	for _, d := range detections {
		if d.Marker != "" {
			ux.Info(fmt.Sprintf("detected %s (%s)", d.Language.Name, d.Marker))
		} else {
			ux.Info(fmt.Sprintf("detected %s (by extension)", d.Language.Name))
		}
	}

	missing := 0
	for _, r := range results {
		label := fmt.Sprintf("%-10s %-7s %s", r.language, r.kind, r.command)
		if r.found {
			ux.Success(label)
		} else {
			missing++
			ux.Warning(label + " (not installed)")
		}
	}

	if gitio.Available() {
		ux.Success("git")
	} else {
		ux.Warning("git (not installed; --changed unavailable)")
	}

	if missing > 0 {
		ux.Muted(fmt.Sprintf("%d tool(s) missing; their checks will be skipped", missing))
	}
	return nil
}
