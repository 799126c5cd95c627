// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hook

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// SettingsRelPath is the agent settings file relative to the project root.
const SettingsRelPath = ".claude/settings.json"

// hookEvent is the lifecycle event breakwater binds to.
const hookEvent = "PostToolUse"

// hookMatcher selects the edit tools in the agent's settings schema.
const hookMatcher = "Edit|Write|MultiEdit|NotebookEdit"

// ErrInstall indicates the settings file could not be updated.
var ErrInstall = fmt.Errorf("hook install")

// Install binds the breakwater hook into the agent settings file.
//
// Description:
//
//	Reads the existing settings (if any), adds a PostToolUse entry
//	invoking the given command, and writes the file back atomically.
//	Unrelated keys and existing hooks are preserved; installing twice is
//	a no-op.
//
// Inputs:
//
//	root - Project root; the settings file lives at .claude/settings.json.
//	command - Shell command the agent should run, e.g. "breakwater hook".
//
// Outputs:
//
//	bool - True when the file changed, false when already installed.
//	error - Non-nil on read/parse/write failure.
func Install(root, command string) (bool, error) {
	path := filepath.Join(root, filepath.FromSlash(SettingsRelPath))

	settings := map[string]json.RawMessage{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &settings); err != nil {
			return false, fmt.Errorf("%w: %s: %v", ErrInstall, path, err)
		}
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("%w: %s: %v", ErrInstall, path, err)
	}

	hooks := map[string][]matcherEntry{}
	if raw, ok := settings["hooks"]; ok {
		if err := json.Unmarshal(raw, &hooks); err != nil {
			return false, fmt.Errorf("%w: %s: hooks section: %v", ErrInstall, path, err)
		}
	}

	entries := hooks[hookEvent]
	for _, e := range entries {
		for _, h := range e.Hooks {
			if h.Command == command {
				return false, nil
			}
		}
	}

	entries = append(entries, matcherEntry{
		Matcher: hookMatcher,
		Hooks:   []hookSpec{{Type: "command", Command: command}},
	})
	hooks[hookEvent] = entries

	raw, err := json.Marshal(hooks)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInstall, err)
	}
	settings["hooks"] = raw

	out, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInstall, err)
	}
	out = append(out, '\n')

	if err := writeAtomic(path, out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrInstall, path, err)
	}

	slog.Info("Hook installed",
		slog.String("settings", path),
		slog.String("command", command),
	)
	return true, nil
}

// matcherEntry mirrors one element of the agent's hooks arrays.
type matcherEntry struct {
	Matcher string     `json:"matcher"`
	Hooks   []hookSpec `json:"hooks"`
}

type hookSpec struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// writeAtomic writes via a temp file and rename so a crash never leaves
// a truncated settings file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
