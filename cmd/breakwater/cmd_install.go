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

	"github.com/spf13/cobra"

	"github.com/harborworks/breakwater/pkg/ux"
	"github.com/harborworks/breakwater/services/checks/hook"
)

var installCommandOverride string

// installCmd wires the hook into the assistant's project settings.
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Add the breakwater hook to this project's assistant settings",
	Args:  cobra.NoArgs,
	RunE:  runInstallCommand,
}

func init() {
	installCmd.Flags().StringVar(&installCommandOverride, "command", "",
		"Hook command to register (default: absolute path of this binary + ' hook')")
	rootCmd.AddCommand(installCmd)
}

func runInstallCommand(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd.Context(), "", "install", false)
	if err != nil {
		return err
	}
	defer e.close()

	command := installCommandOverride
	if command == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable path: %w", err)
		}
		command = exe + " hook"
	}

	changed, err := hook.Install(e.root, command)
	if err != nil {
		return err
	}

	settingsPath := filepath.Join(e.root, filepath.FromSlash(hook.SettingsRelPath))
	if changed {
		ux.Success("hook installed in " + settingsPath)
	} else {
		ux.Info("hook already installed in " + settingsPath)
	}
	ux.Muted("command: " + command)
	return nil
}
