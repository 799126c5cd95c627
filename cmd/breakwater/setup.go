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
	"os"
	"path/filepath"

	"github.com/harborworks/breakwater/pkg/logging"
	"github.com/harborworks/breakwater/services/checks"
	"github.com/harborworks/breakwater/services/checks/cache"
	"github.com/harborworks/breakwater/services/checks/catalog"
	"github.com/harborworks/breakwater/services/checks/config"
	"github.com/harborworks/breakwater/services/checks/project"
)

// env holds everything a command needs to run the pipeline.
type env struct {
	root     string
	settings *config.Settings
	cat      *catalog.Catalog
	store    *cache.Store // nil unless the cache is enabled
	logger   *logging.Logger
}

// setup resolves root, settings, and catalog for one invocation.
//
// Description:
//
//	Finds the project root by ascending from start (cwd when empty),
//	loads the layered configuration from it, and loads the catalog.
//	Opens the result cache when enabled. Errors here are environment
//	errors: the hook maps them to exit 1.
func setup(ctx context.Context, start, service string, quiet bool) (*env, error) {
	if start == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		start = cwd
	}

	cat, err := catalog.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	root, err := project.FindRoot(start, cat)
	if err != nil {
		// No markers anywhere above: treat the starting directory as the
		// project root rather than refusing to run.
		root = start
	}

	settings, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(settings.LogLevel),
		Service: service,
		Quiet:   quiet,
	})
	logger.SetAsDefault()

	e := &env{root: root, settings: settings, cat: cat, logger: logger}

	if settings.CacheEnabled {
		dir := settings.CacheDir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("resolve cache directory: %w", err)
			}
			dir = filepath.Join(home, ".breakwater", "cache")
		}
		store, err := cache.Open(cache.Config{Path: dir, Logger: logger.Slog()})
		if err != nil {
			logger.Warn("cache unavailable, continuing without it", "error", err)
		} else {
			e.store = store
		}
	}

	return e, nil
}

// close releases resources held by the environment.
func (e *env) close() {
	if e.store != nil {
		_ = e.store.Close()
	}
	if e.logger != nil {
		_ = e.logger.Close()
	}
}

// pipeline builds the check pipeline from the environment.
func (e *env) pipeline(opts ...checks.PipelineOption) (*checks.Pipeline, error) {
	if e.store != nil {
		opts = append(opts, checks.WithCache(e.store))
	}
	opts = append(opts, checks.WithLogger(e.logger.Slog()))
	return checks.NewPipeline(e.root, e.settings, e.cat, opts...)
}
