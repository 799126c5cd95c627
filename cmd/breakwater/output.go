// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/harborworks/breakwater/pkg/ux"
	"github.com/harborworks/breakwater/services/checks"
)

// writeReportText renders one report as plain text. Used on the hook's
// stderr, where the reader is usually the coding agent itself.
func writeReportText(w io.Writer, report *checks.Report) {
	if !report.Applied {
		if report.SkipReason != "" {
			fmt.Fprintf(w, "breakwater: %s: skipped (%s)\n", report.File, report.SkipReason)
		}
		return
	}

	if report.Failed() {
		fmt.Fprintf(w, "breakwater: %s: %d problem(s)\n", report.File, len(report.Messages))
		for _, msg := range report.Messages {
			fmt.Fprintf(w, "  %s\n", msg)
		}
		return
	}

	fmt.Fprintf(w, "breakwater: %s: all checks passed (%s)\n",
		report.File, report.Duration.Round(time.Millisecond))
}

// printReportStyled renders one report for a human terminal using the
// ux palette. Machine personality degrades to plain prefixed lines.
func printReportStyled(report *checks.Report) {
	switch {
	case !report.Applied:
		if report.SkipReason != "" {
			ux.Muted(fmt.Sprintf("%s: skipped (%s)", report.File, report.SkipReason))
		}
	case report.Failed():
		ux.Error(fmt.Sprintf("%s: %d problem(s)", report.File, len(report.Messages)))
		for _, msg := range report.Messages {
			ux.Info("  " + msg)
		}
	default:
		ux.Success(fmt.Sprintf("%s: all checks passed (%s)",
			report.File, report.Duration.Round(time.Millisecond)))
	}
}

// writeReportsJSON emits reports as a JSON array for scripting.
func writeReportsJSON(w io.Writer, reports []*checks.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}
