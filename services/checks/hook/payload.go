// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package hook speaks the agent lifecycle-hook protocol.
//
// The agent delivers a JSON payload on stdin after every tool call. This
// package decodes the payload, decides whether the event is an edit to a
// real file, and installs the hook binding into the agent's settings
// file.
//
// Exit-code contract (implemented by the hook command, documented here
// because the payload gate feeds it):
//
//	0 - no checks applied (non-edit event, excluded file, unknown type)
//	2 - checks ran; the report on stderr is for the agent, pass or fail
//	1 - environment error (bad payload, unresolvable config)
package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxPayloadSize bounds the stdin payload (4MB). Edit payloads carry
// the file content, so the bound is generous but still finite.
const maxPayloadSize = 4 << 20

// ErrPayload indicates the stdin payload could not be decoded.
var ErrPayload = fmt.Errorf("hook payload")

// editTools are the agent tools whose success means a file changed on
// disk. Anything else (reads, shell, search) never triggers checks.
var editTools = map[string]bool{
	"Edit":         true,
	"Write":        true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

// Payload is the decoded lifecycle event.
type Payload struct {
	HookEventName string          `json:"hook_event_name"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input"`
	CWD           string          `json:"cwd"`
}

// toolInput is the subset of tool_input breakwater cares about.
type toolInput struct {
	FilePath string `json:"file_path"`
	// NotebookEdit delivers the path under a different key.
	NotebookPath string `json:"notebook_path"`
}

// Decode reads and parses one payload from r.
func Decode(r io.Reader) (*Payload, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxPayloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read stdin: %v", ErrPayload, err)
	}
	if len(data) > maxPayloadSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrPayload, maxPayloadSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty stdin", ErrPayload)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	return &p, nil
}

// EditedFile returns the path the event edited, or empty when the event
// is not a file edit.
//
// Non-edit tools, missing tool_input, and blank paths all answer empty:
// the hook then exits 0 without touching the filesystem.
func (p *Payload) EditedFile() string {
	if !editTools[p.ToolName] {
		return ""
	}
	if len(p.ToolInput) == 0 {
		return ""
	}
	var in toolInput
	if err := json.Unmarshal(p.ToolInput, &in); err != nil {
		return ""
	}
	path := in.FilePath
	if p.ToolName == "NotebookEdit" && in.NotebookPath != "" {
		path = in.NotebookPath
	}
	return strings.TrimSpace(path)
}
