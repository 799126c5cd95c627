// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache stores check results keyed by file content.
//
// A cache hit means the exact bytes of a file were already checked by
// the exact tool, so the stored result can be replayed without spawning
// the tool. Keys are sha256(content) + tool identity; entries expire so
// tool upgrades age out naturally. Backed by BadgerDB for low-latency
// local storage.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DefaultTTL is how long a cached result stays valid.
const DefaultTTL = 7 * 24 * time.Hour

// ErrClosed indicates the store was used after Close.
var ErrClosed = errors.New("cache closed")

// =============================================================================
// CONFIG
// =============================================================================

// Config holds configuration for the result store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Used by
	// tests.
	InMemory bool

	// TTL is the entry lifetime. Zero selects DefaultTTL.
	TTL time.Duration

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger
}

// =============================================================================
// STORE
// =============================================================================

// Store is a content-addressed check-result cache.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Entry is one cached check result.
type Entry struct {
	// Tool identifies the producing tool (command name).
	Tool string `json:"tool"`

	// Kind is the check kind ("lint", "format", "test").
	Kind string `json:"kind"`

	// Passed is whether the check succeeded.
	Passed bool `json:"passed"`

	// Payload is the serialized result for replay.
	Payload json.RawMessage `json:"payload,omitempty"`

	// StoredAt is when the entry was written.
	StoredAt time.Time `json:"stored_at"`
}

// Open creates a store at the configured path.
//
// Outputs:
//
//	*Store - The opened store. Caller must Close it.
//	error - Non-nil if the directory or database cannot be opened.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("cache path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{db: db, ttl: ttl}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key derives the cache key for a file's content and a tool identity.
//
// The tool string should include anything that changes the verdict:
// command name and check kind at minimum.
func Key(content []byte, tool, kind string) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]) + ":" + tool + ":" + kind
}

// Get returns the entry for a key, or nil on miss.
func (s *Store) Get(key string) (*Entry, error) {
	var entry *Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var e Entry
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			entry = &e
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	return entry, nil
}

// Put stores an entry under a key with the configured TTL.
func (s *Store) Put(key string, entry *Entry) error {
	entry.StoredAt = time.Now()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data).WithTTL(s.ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Purge drops every entry. Used by `breakwater cache clear`.
func (s *Store) Purge() error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("cache purge: %w", err)
	}
	return nil
}

// Stats summarizes the cache for `breakwater cache info`.
type Stats struct {
	Entries  int   `json:"entries"`
	LSMSize  int64 `json:"lsm_size_bytes"`
	VLogSize int64 `json:"vlog_size_bytes"`
}

// Stats counts live entries and reports on-disk size.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			stats.Entries++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	lsm, vlog := s.db.Size()
	stats.LSMSize = lsm
	stats.VLogSize = vlog
	return stats, nil
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
