// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import "errors"

var (
	// ErrInvalidSettings indicates a settings value failed validation.
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrProjectFile indicates .breakwater.yaml exists but failed to load.
	ErrProjectFile = errors.New("project settings file")

	// ErrOverrideScript indicates .breakwater.local.sh exists but failed.
	// This is fatal: a project override that cannot be loaded stops the run.
	ErrOverrideScript = errors.New("override script")
)
