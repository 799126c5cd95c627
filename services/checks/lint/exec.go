// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lint

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// execResult captures one subprocess run.
type execResult struct {
	stdout   string
	stderr   string
	exitCode int
	timedOut bool
	// spawnErr is set when the process could not run at all (as opposed
	// to running and exiting non-zero).
	spawnErr error
}

// runCommand runs one external tool with a timeout.
//
// The child gets its own process group so the timeout kill reaches any
// grandchildren (npx, bundle, and cargo all fork).
func runCommand(ctx context.Context, dir string, timeout time.Duration, command string, args ...string) (*execResult, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, command, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := &execResult{
		stdout: stdout.String(),
		stderr: stderr.String(),
	}
	if cmdCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		res.timedOut = true
		return res, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.exitCode = exitErr.ExitCode()
		} else {
			res.spawnErr = err
		}
	}
	return res, nil
}
