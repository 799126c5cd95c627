// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watch runs checks continuously as files change.
//
// A Watcher mirrors what the editor hook does per save, but driven by
// filesystem events: writes to recognized source files are debounced,
// rate-limited, and handed to a run callback. Results land in a bounded
// History that the status server and TUI read.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/harborworks/breakwater/services/checks/catalog"
	"github.com/harborworks/breakwater/services/checks/ignore"
)

// RunFunc executes checks for one changed file and reports the result.
// The path is absolute. Implementations are called from a single
// goroutine, one file at a time.
type RunFunc func(ctx context.Context, path string) Run

// Watcher triggers check runs on file changes.
//
// Description:
//
//	Recursively watches a project root. Events are filtered against the
//	language catalog (only recognized source extensions trigger) and the
//	project ignore file, debounced so a burst of saves coalesces, and
//	rate-limited so a branch switch touching hundreds of files cannot
//	spawn hundreds of tool invocations.
//
// Thread Safety: Safe for concurrent use. The run callback is invoked
// from a single goroutine.
type Watcher struct {
	root     string
	cat      *catalog.Catalog
	matcher  *ignore.Matcher
	run      RunFunc
	onRun    func(Run)
	history  *History
	logger   *slog.Logger
	debounce time.Duration
	limiter  *rate.Limiter

	watcher  *fsnotify.Watcher
	changes  chan string
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long to wait for more changes before running.
	// Default: 300ms.
	Debounce time.Duration

	// RunsPerSecond caps sustained run frequency. Default: 2.
	RunsPerSecond float64

	// HistorySize bounds the run history. Default: 100.
	HistorySize int

	// Logger receives watcher diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// OnRun is called after each run is recorded. The status server uses
	// this to broadcast results to websocket clients. May be nil.
	OnRun func(Run)
}

// NewWatcher creates a watcher for the project at root.
//
// Inputs:
//
//	root - Absolute project root.
//	cat - Loaded language catalog (drives extension and skip-dir filters).
//	matcher - Project ignore rules. May be nil.
//	run - Callback executing checks for one file.
//	opts - Optional tuning. Nil selects defaults.
//
// Outputs:
//
//	*Watcher - Ready to Start.
//	error - Non-nil if the OS watcher cannot be created.
func NewWatcher(root string, cat *catalog.Catalog, matcher *ignore.Matcher, run RunFunc, opts *Options) (*Watcher, error) {
	if opts == nil {
		opts = &Options{}
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	rps := opts.RunsPerSecond
	if rps <= 0 {
		rps = 2
	}
	size := opts.HistorySize
	if size <= 0 {
		size = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:     root,
		cat:      cat,
		matcher:  matcher,
		run:      run,
		onRun:    opts.OnRun,
		history:  NewHistory(size),
		logger:   logger,
		debounce: debounce,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		watcher:  fsw,
		changes:  make(chan string, 1000),
		done:     make(chan struct{}),
	}, nil
}

// History returns the run history for this watcher.
func (w *Watcher) History() *History {
	return w.history
}

// Start begins watching and dispatching runs.
//
// Spawns two goroutines: an event filter feeding the change channel,
// and a debounce loop invoking the run callback. Both exit on Stop or
// context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop halts watching. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// addRecursive registers root and every non-skipped subdirectory.
func (w *Watcher) addRecursive(root string) error {
	skip := w.cat.SkipDirs()
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (skip[name] || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// relevant decides whether a change event should trigger checks.
func (w *Watcher) relevant(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)

	skip := w.cat.SkipDirs()
	for _, seg := range strings.Split(rel, "/") {
		if skip[seg] || strings.HasPrefix(seg, ".") {
			return false
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" || w.cat.ByExtension(ext) == nil {
		return false
	}

	if w.matcher != nil && w.matcher.Match(rel) {
		return false
	}
	return true
}

// processEvents filters fsnotify events into the change channel.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// New directories join the watch set.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if w.relevantDir(event.Name) {
						_ = w.watcher.Add(event.Name)
					}
					continue
				}
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !w.relevant(event.Name) {
				continue
			}

			select {
			case w.changes <- event.Name:
			default:
				// Buffer full; the debouncer will pick up later saves.
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// relevantDir reports whether a new directory should be watched.
func (w *Watcher) relevantDir(path string) bool {
	name := filepath.Base(path)
	return !w.cat.SkipDirs()[name] && !strings.HasPrefix(name, ".")
}

// debounceLoop batches changed paths and dispatches runs.
func (w *Watcher) debounceLoop(ctx context.Context) {
	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		for path := range pending {
			delete(pending, path)
			// Sustained bursts wait; a stopped watcher does not.
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
			w.dispatch(ctx, path)
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case path := <-w.changes:
			pending[path] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// dispatch runs checks for one file and records the outcome.
func (w *Watcher) dispatch(ctx context.Context, path string) {
	if w.run == nil {
		return
	}
	run := w.run(ctx, path)
	w.history.Add(run)
	if w.onRun != nil {
		w.onRun(run)
	}
	w.logger.Info("checks complete",
		"path", run.Path,
		"passed", run.Passed,
		"duration", run.Duration,
	)
}
