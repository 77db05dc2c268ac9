// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package podmanexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/composed-systems/composed/lib/compose"
)

// Accounts implements compose.Accounts against the local user
// database and loginctl.
type Accounts struct {
	runner Runner
	logger *slog.Logger
}

// NewAccounts returns an Accounts over the given runner. A nil runner
// selects ExecRunner.
func NewAccounts(runner Runner, logger *slog.Logger) *Accounts {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Accounts{runner: runner, logger: logger}
}

// Lookup resolves an account by name; absence is not an error.
func (a *Accounts) Lookup(name string) (compose.Account, bool, error) {
	account, err := user.Lookup(name)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return compose.Account{}, false, nil
		}
		return compose.Account{}, false, err
	}
	uid, err := strconv.Atoi(account.Uid)
	if err != nil {
		return compose.Account{}, false, fmt.Errorf("non-numeric uid %q for %s", account.Uid, name)
	}
	gid, err := strconv.Atoi(account.Gid)
	if err != nil {
		return compose.Account{}, false, fmt.Errorf("non-numeric gid %q for %s", account.Gid, name)
	}
	return compose.Account{Name: account.Username, UID: uid, GID: gid}, true, nil
}

// lingerFile is the marker logind keeps for users with lingering
// enabled.
func lingerFile(name string) string {
	return "/var/lib/systemd/linger/" + name
}

func (a *Accounts) LingeringEnabled(ctx context.Context, name string) (bool, error) {
	_, err := os.Stat(lingerFile(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *Accounts) linger(ctx context.Context, verb, name string) (bool, error) {
	result, err := a.runner.Run(ctx, Command{Name: "loginctl", Args: []string{verb, name}})
	if err != nil {
		return false, err
	}
	if result.ExitCode != 0 {
		a.logger.Debug("loginctl failed",
			"verb", verb, "user", name, "stderr", strings.TrimSpace(result.Stderr))
		return false, nil
	}
	return true, nil
}

func (a *Accounts) LingeringEnable(ctx context.Context, name string) (bool, error) {
	return a.linger(ctx, "enable-linger", name)
}

func (a *Accounts) LingeringDisable(ctx context.Context, name string) (bool, error) {
	return a.linger(ctx, "disable-linger", name)
}

// sessionMarkerPath is the per-user session bus socket that appears
// once the user's manager is up.
func sessionMarkerPath(uid int) string {
	return fmt.Sprintf("/run/user/%d/bus", uid)
}

// SessionMarkerExists probes the session bus socket of the user's
// manager. The path existing as anything but a socket counts as
// absent; a half-initialized runtime directory is not a session.
func (a *Accounts) SessionMarkerExists(uid int) (bool, error) {
	var stat unix.Stat_t
	err := unix.Stat(sessionMarkerPath(uid), &stat)
	if errors.Is(err, unix.ENOENT) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stat.Mode&unix.S_IFMT == unix.S_IFSOCK, nil
}
