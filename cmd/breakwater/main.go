// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// breakwater runs third-party linters, formatters, and test runners at
// AI coding-assistant lifecycle points. The hook subcommand is wired
// into the assistant's settings; the rest is a manual CLI over the same
// pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harborworks/breakwater/pkg/ux"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "breakwater",
	Short: "Run quality checks when an AI coding agent edits your code",
	Long: `breakwater shells out to the linters, formatters, and test runners your
project already uses, at the moments an AI coding assistant touches a file.

It does no analysis of its own: file-type detection, exclusion rules, tool
invocation, and pass/fail aggregation. Install the hook once and every edit
gets checked before the agent moves on.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(ux.InitPersonality)
	rootCmd.SetVersionTemplate(fmt.Sprintf("breakwater %s\n", version))
}
