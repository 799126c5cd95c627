// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package catalog provides the language and tool registry for breakwater.
//
// The registry ships embedded in the binary so a hook invocation has zero
// file dependencies; a project can replace it wholesale by pointing
// BREAKWATER_CATALOG at its own YAML file.
//
// Thread Safety:
//
//	All exported functions and types are safe for concurrent use.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Constants (file size limits)
// =============================================================================

const (
	// MaxYAMLFileSize is the maximum allowed catalog file size (1MB).
	// Prevents memory issues from large override files.
	MaxYAMLFileSize = 1024 * 1024

	// MaxLanguages is the maximum language entries allowed in a catalog.
	MaxLanguages = 64

	// MaxPatternsPerLanguage is the maximum focused patterns per language.
	MaxPatternsPerLanguage = 32

	// CatalogEnvVar names the environment variable holding an external
	// catalog path that replaces the embedded registry.
	CatalogEnvVar = "BREAKWATER_CATALOG"
)

// =============================================================================
// Embedded Default Catalog
// =============================================================================

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	catalogLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "breakwater_catalog_load_errors_total",
		Help: "Total catalog load errors",
	})

	catalogLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "breakwater_catalog_load_duration_seconds",
		Help:    "Duration of catalog loading",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5},
	})

	catalogLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "breakwater_catalog_lookups_total",
		Help: "Total catalog lookups by result",
	}, []string{"result"})
)

var catalogTracer = otel.Tracer("breakwater.catalog")

// =============================================================================
// Catalog
// =============================================================================

// Catalog is the loaded language registry with lookup indexes.
//
// Thread Safety: Safe for concurrent use after loading.
type Catalog struct {
	// languages maps language name to its entry.
	languages map[string]*Language

	// extIndex maps lowercase extensions to language names for O(1) lookup.
	extIndex map[string]string

	// markerIndex maps marker file names to language names.
	markerIndex map[string]string

	// loadedAt is when the catalog was loaded.
	loadedAt time.Time

	// source records where the catalog came from ("embedded" or a path).
	source string
}

// Get returns the entry for a language name, or nil if unknown.
func (c *Catalog) Get(language string) *Language {
	lang, ok := c.languages[language]
	if !ok {
		catalogLookups.WithLabelValues("miss").Inc()
		return nil
	}
	catalogLookups.WithLabelValues("hit").Inc()
	return lang
}

// ByExtension returns the language owning a file extension, or nil.
//
// The extension must include the dot; matching is case-insensitive.
func (c *Catalog) ByExtension(ext string) *Language {
	name, ok := c.extIndex[strings.ToLower(ext)]
	if !ok {
		catalogLookups.WithLabelValues("miss").Inc()
		return nil
	}
	catalogLookups.WithLabelValues("hit").Inc()
	return c.languages[name]
}

// ByMarker returns the language identified by a marker file name, or nil.
func (c *Catalog) ByMarker(marker string) *Language {
	name, ok := c.markerIndex[marker]
	if !ok {
		return nil
	}
	return c.languages[name]
}

// Languages returns all language names, sorted for deterministic iteration.
func (c *Catalog) Languages() []string {
	names := make([]string, 0, len(c.languages))
	for name := range c.languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Markers returns every marker file name known to the catalog.
func (c *Catalog) Markers() []string {
	markers := make([]string, 0, len(c.markerIndex))
	for m := range c.markerIndex {
		markers = append(markers, m)
	}
	sort.Strings(markers)
	return markers
}

// SkipDirs returns the union of all languages' skip directories.
func (c *Catalog) SkipDirs() map[string]bool {
	skip := make(map[string]bool)
	for _, lang := range c.languages {
		for _, d := range lang.SkipDirs {
			skip[d] = true
		}
	}
	return skip
}

// Source reports where the catalog was loaded from.
func (c *Catalog) Source() string {
	return c.source
}

// =============================================================================
// Singleton Load
// =============================================================================

var (
	catalogMu      sync.RWMutex
	cachedCatalog  *Catalog
	catalogLoadErr error
)

// Load returns the cached catalog, loading it on first call.
//
// Description:
//
//	Loads from the BREAKWATER_CATALOG path when set, otherwise from the
//	embedded default. The result is cached for the process lifetime.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*Catalog - The loaded catalog. Never nil on success.
//	error - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use.
func Load(ctx context.Context) (*Catalog, error) {
	if ctx == nil {
		return nil, fmt.Errorf("catalog.Load: ctx must not be nil")
	}

	catalogMu.RLock()
	if cachedCatalog != nil || catalogLoadErr != nil {
		cat, err := cachedCatalog, catalogLoadErr
		catalogMu.RUnlock()
		return cat, err
	}
	catalogMu.RUnlock()

	catalogMu.Lock()
	defer catalogMu.Unlock()

	// Double-check after acquiring write lock
	if cachedCatalog != nil || catalogLoadErr != nil {
		return cachedCatalog, catalogLoadErr
	}

	cachedCatalog, catalogLoadErr = load(ctx)
	return cachedCatalog, catalogLoadErr
}

// Reset clears the cached catalog so the next Load reloads it.
//
// Intended for tests that set BREAKWATER_CATALOG.
func Reset() {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	cachedCatalog = nil
	catalogLoadErr = nil
}

func load(ctx context.Context) (*Catalog, error) {
	_, span := catalogTracer.Start(ctx, "catalog.Load")
	defer span.End()
	start := time.Now()

	data := defaultCatalogYAML
	source := "embedded"

	if path := os.Getenv(CatalogEnvVar); path != "" {
		info, err := os.Stat(path)
		if err != nil {
			catalogLoadErrors.Inc()
			span.SetStatus(codes.Error, "stat failed")
			return nil, fmt.Errorf("%w: %s: %v", ErrCatalogUnreadable, path, err)
		}
		if info.Size() > MaxYAMLFileSize {
			catalogLoadErrors.Inc()
			span.SetStatus(codes.Error, "file too large")
			return nil, fmt.Errorf("%w: %s is %d bytes (max %d)",
				ErrCatalogTooLarge, path, info.Size(), MaxYAMLFileSize)
		}
		data, err = os.ReadFile(path)
		if err != nil {
			catalogLoadErrors.Inc()
			span.SetStatus(codes.Error, "read failed")
			return nil, fmt.Errorf("%w: %s: %v", ErrCatalogUnreadable, path, err)
		}
		source = path
	}

	cat, err := parse(data, source)
	if err != nil {
		catalogLoadErrors.Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	catalogLoadDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("catalog.source", source),
		attribute.Int("catalog.languages", len(cat.languages)),
	)

	slog.Debug("Catalog loaded",
		slog.String("source", source),
		slog.Int("languages", len(cat.languages)),
		slog.Duration("duration", time.Since(start)),
	)

	return cat, nil
}

// parse deserializes and validates catalog YAML.
func parse(data []byte, source string) (*Catalog, error) {
	var root catalogYAML
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogInvalid, err)
	}

	if len(root.Languages) == 0 {
		return nil, fmt.Errorf("%w: no languages defined", ErrCatalogInvalid)
	}
	if len(root.Languages) > MaxLanguages {
		return nil, fmt.Errorf("%w: %d languages (max %d)",
			ErrCatalogInvalid, len(root.Languages), MaxLanguages)
	}

	cat := &Catalog{
		languages:   make(map[string]*Language, len(root.Languages)),
		extIndex:    make(map[string]string),
		markerIndex: make(map[string]string),
		loadedAt:    time.Now(),
		source:      source,
	}

	for i := range root.Languages {
		lang := &root.Languages[i]
		if err := validateLanguage(lang); err != nil {
			return nil, err
		}
		if _, dup := cat.languages[lang.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate language %q", ErrCatalogInvalid, lang.Name)
		}
		cat.languages[lang.Name] = lang

		for _, ext := range lang.Extensions {
			ext = strings.ToLower(ext)
			// First language wins for shared extensions (catalog order)
			if _, taken := cat.extIndex[ext]; !taken {
				cat.extIndex[ext] = lang.Name
			}
		}
		for _, marker := range lang.Markers {
			if _, taken := cat.markerIndex[marker]; !taken {
				cat.markerIndex[marker] = lang.Name
			}
		}
	}

	return cat, nil
}

func validateLanguage(lang *Language) error {
	if lang.Name == "" {
		return fmt.Errorf("%w: language with empty name", ErrCatalogInvalid)
	}
	if len(lang.Extensions) == 0 {
		return fmt.Errorf("%w: language %q has no extensions", ErrCatalogInvalid, lang.Name)
	}
	for _, ext := range lang.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("%w: language %q extension %q missing dot",
				ErrCatalogInvalid, lang.Name, ext)
		}
	}
	if lang.Lint != nil && lang.Lint.Command == "" {
		return fmt.Errorf("%w: language %q lint tool has empty command",
			ErrCatalogInvalid, lang.Name)
	}
	if lang.Format != nil && lang.Format.Command == "" {
		return fmt.Errorf("%w: language %q format tool has empty command",
			ErrCatalogInvalid, lang.Name)
	}
	if tc := lang.Test; tc != nil {
		if len(tc.FocusedPatterns) > MaxPatternsPerLanguage {
			return fmt.Errorf("%w: language %q has %d focused patterns (max %d)",
				ErrCatalogInvalid, lang.Name, len(tc.FocusedPatterns), MaxPatternsPerLanguage)
		}
		if len(tc.FocusedPatterns) > 0 && len(tc.FocusedCommand) == 0 {
			return fmt.Errorf("%w: language %q has focused patterns but no focused command",
				ErrCatalogInvalid, lang.Name)
		}
	}
	return nil
}
