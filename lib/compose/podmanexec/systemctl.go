// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package podmanexec

import (
	"context"
	"log/slog"
	"strings"
)

// Systemctl implements compose.UnitManager for arbitrary units,
// per-user capable.
type Systemctl struct {
	runner Runner
	logger *slog.Logger
}

// NewSystemctl returns a Systemctl over the given runner. A nil
// runner selects ExecRunner.
func NewSystemctl(runner Runner, logger *slog.Logger) *Systemctl {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Systemctl{runner: runner, logger: logger}
}

func (s *Systemctl) command(unit, user string, args ...string) Command {
	if user != "" {
		return Command{Name: "systemctl", Args: append(append([]string{"--user"}, args...), unit), User: user}
	}
	return Command{Name: "systemctl", Args: append(args, unit)}
}

func (s *Systemctl) query(ctx context.Context, unit, user, verb string) (bool, error) {
	result, err := s.runner.Run(ctx, s.command(unit, user, verb))
	if err != nil {
		return false, err
	}
	return result.ExitCode == 0, nil
}

func (s *Systemctl) act(ctx context.Context, unit, user, verb string) (bool, error) {
	result, err := s.runner.Run(ctx, s.command(unit, user, verb))
	if err != nil {
		return false, err
	}
	if result.ExitCode != 0 {
		s.logger.Debug("systemctl failed",
			"verb", verb, "unit", unit, "user", user, "stderr", strings.TrimSpace(result.Stderr))
		return false, nil
	}
	return true, nil
}

func (s *Systemctl) IsRunning(ctx context.Context, unit, user string) (bool, error) {
	return s.query(ctx, unit, user, "is-active")
}

func (s *Systemctl) IsEnabled(ctx context.Context, unit, user string) (bool, error) {
	return s.query(ctx, unit, user, "is-enabled")
}

func (s *Systemctl) Start(ctx context.Context, unit, user string) (bool, error) {
	return s.act(ctx, unit, user, "start")
}

func (s *Systemctl) Stop(ctx context.Context, unit, user string) (bool, error) {
	return s.act(ctx, unit, user, "stop")
}

func (s *Systemctl) Enable(ctx context.Context, unit, user string) (bool, error) {
	return s.act(ctx, unit, user, "enable")
}

func (s *Systemctl) Disable(ctx context.Context, unit, user string) (bool, error) {
	return s.act(ctx, unit, user, "disable")
}
