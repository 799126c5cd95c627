// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := openTestStore(t)

	key := Key([]byte("package main\n"), "golangci-lint", "lint")
	entry := &Entry{
		Tool:    "golangci-lint",
		Kind:    "lint",
		Passed:  true,
		Payload: json.RawMessage(`{"issues":0}`),
	}
	require.NoError(t, s.Put(key, entry))

	got, err := s.Get(key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "golangci-lint", got.Tool)
	assert.True(t, got.Passed)
	assert.JSONEq(t, `{"issues":0}`, string(got.Payload))
	assert.False(t, got.StoredAt.IsZero())
}

func TestMiss(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Get(Key([]byte("never stored"), "ruff", "lint"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKeyIsContentAddressed(t *testing.T) {
	content := []byte("print('x')\n")

	// Same content, same tool: same key.
	assert.Equal(t,
		Key(content, "ruff", "lint"),
		Key(content, "ruff", "lint"),
	)
	// Any change to content, tool, or kind changes the key.
	assert.NotEqual(t, Key(content, "ruff", "lint"), Key([]byte("print('y')\n"), "ruff", "lint"))
	assert.NotEqual(t, Key(content, "ruff", "lint"), Key(content, "ruff", "format"))
	assert.NotEqual(t, Key(content, "ruff", "lint"), Key(content, "pylint", "lint"))
}

func TestPurge(t *testing.T) {
	s := openTestStore(t)

	key := Key([]byte("x"), "gofmt", "format")
	require.NoError(t, s.Put(key, &Entry{Tool: "gofmt", Kind: "format", Passed: false}))
	require.NoError(t, s.Purge())

	got, err := s.Get(key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStats(t *testing.T) {
	s := openTestStore(t)

	for _, content := range []string{"a", "b", "c"} {
		key := Key([]byte(content), "gofmt", "format")
		require.NoError(t, s.Put(key, &Entry{Tool: "gofmt", Kind: "format", Passed: true}))
	}

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Entries)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestPersistentStore(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Config{Path: dir})
	require.NoError(t, err)

	key := Key([]byte("persist"), "rubocop", "lint")
	require.NoError(t, s.Put(key, &Entry{Tool: "rubocop", Kind: "lint", Passed: true}))
	require.NoError(t, s.Close())

	// Reopen and read back.
	s, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Passed)
}
