// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import "errors"

var (
	// ErrCatalogInvalid indicates the catalog YAML failed validation.
	ErrCatalogInvalid = errors.New("invalid catalog")

	// ErrCatalogUnreadable indicates an external catalog path could not be read.
	ErrCatalogUnreadable = errors.New("catalog unreadable")

	// ErrCatalogTooLarge indicates an external catalog exceeds the size limit.
	ErrCatalogTooLarge = errors.New("catalog file too large")
)
