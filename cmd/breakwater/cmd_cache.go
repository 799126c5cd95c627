// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harborworks/breakwater/pkg/ux"
)

// cacheCmd groups result-cache maintenance subcommands.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the check result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry count and on-disk size",
	Args:  cobra.NoArgs,
	RunE:  runCacheStatsCommand,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached check result",
	Args:  cobra.NoArgs,
	RunE:  runCacheClearCommand,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStatsCommand(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd.Context(), "", "cache", false)
	if err != nil {
		return err
	}
	defer e.close()

	if e.store == nil {
		ux.Info("cache is disabled")
		return nil
	}

	stats, err := e.store.Stats()
	if err != nil {
		return err
	}

	ux.Title("breakwater cache")
	ux.Info(fmt.Sprintf("entries:  %d", stats.Entries))
	ux.Info(fmt.Sprintf("lsm:      %s", humanBytes(stats.LSMSize)))
	ux.Info(fmt.Sprintf("vlog:     %s", humanBytes(stats.VLogSize)))
	return nil
}

func runCacheClearCommand(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd.Context(), "", "cache", false)
	if err != nil {
		return err
	}
	defer e.close()

	if e.store == nil {
		ux.Info("cache is disabled; nothing to clear")
		return nil
	}

	if err := e.store.Purge(); err != nil {
		return err
	}
	ux.Success("cache cleared")
	return nil
}

// humanBytes renders a byte count with a binary unit suffix.
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
