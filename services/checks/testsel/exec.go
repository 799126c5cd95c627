// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package testsel

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ExecResult captures one test-runner invocation.
type ExecResult struct {
	// Output is combined stdout and stderr.
	Output string

	// ExitCode is the process exit status.
	ExitCode int

	// TimedOut is true when the timeout killed the process.
	TimedOut bool

	// SpawnErr is set when the process could not start (binary missing,
	// bad directory). Distinct from running and failing.
	SpawnErr error
}

// CommandRunner executes one test command. The default implementation
// shells out; tests substitute their own.
type CommandRunner interface {
	Run(ctx context.Context, dir string, timeout time.Duration, argv []string) (*ExecResult, error)
}

// execRunner is the subprocess-backed CommandRunner.
type execRunner struct{}

// NewExecRunner returns the default subprocess CommandRunner.
func NewExecRunner() CommandRunner {
	return execRunner{}
}

// Run executes argv in dir. Test runners are interleaved-output tools,
// so stdout and stderr are captured together in order.
//
// The child gets its own process group so a timeout kill reaches
// grandchildren (npm and bundle both fork the real runner).
func (execRunner) Run(ctx context.Context, dir string, timeout time.Duration, argv []string) (*ExecResult, error) {
	if len(argv) == 0 {
		return nil, ErrInvalidInput
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	err := cmd.Run()

	res := &ExecResult{Output: combined.String()}
	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		res.TimedOut = true
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.SpawnErr = err
		}
	}
	return res, nil
}
