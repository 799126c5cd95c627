// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// overrideScriptTimeout bounds the override script itself. The script is
// configuration, not a check; it must resolve quickly.
const overrideScriptTimeout = 10 * time.Second

// maxOverrideOutput bounds the script's stdout (64KB).
const maxOverrideOutput = 64 * 1024

// applyOverrideScript runs .breakwater.local.sh and applies its output.
//
// Description:
//
//	The script is executed with /bin/sh from the project root, with the
//	process environment plus the current effective settings exported as
//	BREAKWATER_* variables. Its stdout is parsed as KEY=VALUE lines;
//	only BREAKWATER_* keys are applied. This gives the project a full
//	shell for conditional logic while keeping a clean child-process
//	boundary instead of in-process sourcing.
//
//	Absence of the script is not an error. Any failure of a script that
//	exists - spawn error, non-zero exit, oversized or malformed output -
//	is fatal per the error-handling contract: a project override that
//	fails to load must stop the run.
func (s *Settings) applyOverrideScript(root string) error {
	path := filepath.Join(root, OverrideScriptName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrOverrideScript, path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), overrideScriptTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", path)
	cmd.Dir = root
	cmd.Env = append(os.Environ(), s.Export().ToSlice()...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %v (stderr: %s)",
			ErrOverrideScript, path, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() > maxOverrideOutput {
		return fmt.Errorf("%w: %s: output exceeds %d bytes",
			ErrOverrideScript, path, maxOverrideOutput)
	}

	applied := 0
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("%w: %s: malformed output line %q",
				ErrOverrideScript, path, line)
		}
		key = strings.TrimSpace(key)
		if !envVarKeyPattern.MatchString(key) {
			return fmt.Errorf("%w: %s: invalid key %q", ErrOverrideScript, path, key)
		}
		// Only the breakwater namespace is applied; anything else in the
		// script's stdout is an authoring mistake worth failing on.
		if !strings.HasPrefix(key, EnvPrefix) {
			return fmt.Errorf("%w: %s: key %q outside %s namespace",
				ErrOverrideScript, path, key, EnvPrefix)
		}
		if err := s.applyEnvVar(key, value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrOverrideScript, path, err)
		}
		applied++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOverrideScript, path, err)
	}

	slog.Debug("Override script applied",
		slog.String("script", path),
		slog.Int("keys", applied),
	)
	return nil
}
