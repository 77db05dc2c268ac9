// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package podmanexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"os/user"
)

// Command is one subprocess invocation. A non-empty User runs the
// command as that account with the user session environment set.
type Command struct {
	Name string
	Args []string
	User string
}

// Result carries the subprocess outputs. A non-zero ExitCode is not an
// error at this layer; callers decide what an exit status means.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts subprocess execution.
type Runner interface {
	Run(ctx context.Context, command Command) (Result, error)
}

// ExecRunner executes commands on the local host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, command Command) (Result, error) {
	name := command.Name
	args := command.Args
	if command.User != "" {
		account, err := user.Lookup(command.User)
		if err != nil {
			return Result{}, fmt.Errorf("looking up %s: %w", command.User, err)
		}
		name, args = wrapForUser(command, account.Uid)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, err
}

// wrapForUser rewrites a command to run as another account via sudo,
// with the environment a user session manager requires.
func wrapForUser(command Command, uid string) (string, []string) {
	runtimeDir := "/run/user/" + uid
	args := []string{
		"-u", command.User,
		"env",
		"XDG_RUNTIME_DIR=" + runtimeDir,
		"DBUS_SESSION_BUS_ADDRESS=unix:path=" + runtimeDir + "/bus",
		command.Name,
	}
	return "sudo", append(args, command.Args...)
}
