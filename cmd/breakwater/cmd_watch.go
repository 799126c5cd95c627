// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harborworks/breakwater/pkg/ux"
	"github.com/harborworks/breakwater/services/checks"
	"github.com/harborworks/breakwater/services/checks/ignore"
	"github.com/harborworks/breakwater/services/checks/telemetry"
	"github.com/harborworks/breakwater/services/checks/tui"
	"github.com/harborworks/breakwater/services/checks/watch"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	watchServeAddr string // status server address, empty disables
	watchNoTUI     bool   // plain log lines instead of the dashboard
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// watchCmd runs checks continuously as files change.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the project and run checks on every save",
	Args:  cobra.NoArgs,
	RunE:  runWatchCommand,
}

func init() {
	watchCmd.Flags().StringVar(&watchServeAddr, "serve", "",
		"Serve watch status on this address (e.g. localhost:9470)")
	watchCmd.Flags().BoolVar(&watchNoTUI, "no-tui", false,
		"Print plain result lines instead of the dashboard")
	rootCmd.AddCommand(watchCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runWatchCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx, "", "watch", !watchNoTUI)
	if err != nil {
		return err
	}
	defer e.close()

	// Watch sessions are long-lived: telemetry exporters make sense
	// here, unlike in hook mode.
	shutdown, err := telemetry.Init(ctx, telemetry.FromSettings(e.settings, version))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	p, err := e.pipeline(checks.WithProgress(nil))
	if err != nil {
		return err
	}

	matcher, err := ignore.Load(e.root, e.settings.IgnoreFile)
	if err != nil {
		return err
	}

	hub := watch.NewHub(e.logger.Slog())
	runCh := make(chan watch.Run, 64)

	run := func(ctx context.Context, path string) watch.Run {
		started := time.Now()
		report, err := p.Run(ctx, path)
		if err != nil {
			return watch.Run{
				ID:        uuid.New().String(),
				Path:      path,
				StartedAt: started,
				Duration:  time.Since(started),
				Failures:  []string{err.Error()},
				Summary:   "pipeline error",
			}
		}
		return reportToRun(report)
	}

	w, err := watch.NewWatcher(e.root, e.cat, matcher, run, &watch.Options{
		Logger: e.logger.Slog(),
		OnRun: func(r watch.Run) {
			hub.Broadcast(r)
			select {
			case runCh <- r:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer w.Stop()

	if err := w.Start(ctx); err != nil {
		return err
	}

	if watchServeAddr != "" {
		server := watch.NewServer(w.History(), hub, e.logger.Slog())
		go func() {
			if err := server.Serve(ctx, watchServeAddr); err != nil {
				e.logger.Error("status server stopped", "error", err)
			}
		}()
	}

	if watchNoTUI || !ux.IsInteractive() {
		return watchPlain(ctx, runCh)
	}

	program := tea.NewProgram(
		tui.NewDashboardModel(e.root, runCh),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err = program.Run()
	return err
}

// watchPlain logs run results line by line until interrupted.
func watchPlain(ctx context.Context, runs <-chan watch.Run) error {
	ux.Info("watching for changes (ctrl-c to stop)")
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-runs:
			if r.Passed {
				ux.Success(r.Summary)
			} else {
				ux.Error(r.Summary)
				for _, f := range r.Failures {
					ux.Info("  " + f)
				}
			}
		}
	}
}

// reportToRun condenses a pipeline report into a watch run record.
func reportToRun(report *checks.Report) watch.Run {
	r := watch.Run{
		ID:        report.RunID,
		Path:      report.File,
		Language:  report.Language,
		StartedAt: report.StartedAt,
		Duration:  report.Duration,
		Passed:    !report.Failed(),
		Failures:  report.Messages,
	}
	switch {
	case !report.Applied:
		r.Summary = fmt.Sprintf("%s skipped (%s)", report.File, report.SkipReason)
	case report.Failed():
		r.Summary = fmt.Sprintf("%s: %d problem(s)", report.File, len(report.Messages))
	default:
		r.Summary = fmt.Sprintf("%s: all checks passed (%s)",
			report.File, report.Duration.Round(time.Millisecond))
	}
	// Multi-line tool output stays in the dashboard detail pane, not
	// the one-line summary.
	r.Summary = strings.Split(r.Summary, "\n")[0]
	return r
}
