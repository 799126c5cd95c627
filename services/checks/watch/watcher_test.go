// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harborworks/breakwater/services/checks/catalog"
	"github.com/harborworks/breakwater/services/checks/ignore"
)

func loadCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	catalog.Reset()
	t.Cleanup(catalog.Reset)
	cat, err := catalog.Load(context.Background())
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	return cat
}

func TestRelevantFiltering(t *testing.T) {
	cat := loadCatalog(t)
	root := t.TempDir()
	matcher := ignore.NewMatcher("generated/")

	w, err := NewWatcher(root, cat, matcher, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	tests := []struct {
		rel  string
		want bool
	}{
		{"main.go", true},
		{"svc/parser.py", true},
		{"app/index.ts", true},
		{"README.md", false},             // unknown extension
		{"node_modules/x/index.js", false}, // catalog skip dir
		{".git/hooks/pre-commit.py", false},
		{"generated/code.go", false}, // ignore rule
	}
	for _, tt := range tests {
		got := w.relevant(filepath.Join(root, filepath.FromSlash(tt.rel)))
		if got != tt.want {
			t.Errorf("relevant(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}

	if w.relevant("/outside/main.go") {
		t.Error("paths outside the root must not trigger")
	}
}

func TestWatcherTriggersRun(t *testing.T) {
	cat := loadCatalog(t)
	root := t.TempDir()

	runs := make(chan Run, 10)
	run := func(_ context.Context, path string) Run {
		rel, _ := filepath.Rel(root, path)
		r := Run{ID: "t", Path: filepath.ToSlash(rel), Passed: true}
		runs <- r
		return r
	}

	w, err := NewWatcher(root, cat, nil, run, &Options{
		Debounce:      50 * time.Millisecond,
		RunsPerSecond: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !w.IsWatching() {
		t.Fatal("IsWatching = false after Start")
	}

	if err := os.WriteFile(filepath.Join(root, "main.go"),
		[]byte("package main\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-runs:
		if got.Path != "main.go" {
			t.Errorf("Path = %q", got.Path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no run dispatched")
	}

	if w.History().Len() == 0 {
		t.Error("run not recorded in history")
	}
}

func TestWatcherIgnoresIrrelevantWrites(t *testing.T) {
	cat := loadCatalog(t)
	root := t.TempDir()

	runs := make(chan Run, 10)
	run := func(_ context.Context, path string) Run {
		r := Run{Path: path}
		runs <- r
		return r
	}

	w, err := NewWatcher(root, cat, nil, run, &Options{
		Debounce:      50 * time.Millisecond,
		RunsPerSecond: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "notes.txt"),
		[]byte("scratch\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-runs:
		t.Errorf("unexpected run for %q", got.Path)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcherStopIdempotent(t *testing.T) {
	cat := loadCatalog(t)
	w, err := NewWatcher(t.TempDir(), cat, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
	if w.IsWatching() {
		t.Error("IsWatching = true after Stop")
	}
}
