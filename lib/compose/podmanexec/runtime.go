// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package podmanexec

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/composed-systems/composed/lib/compose"
)

const (
	defaultPodPrefix       = "pod"
	defaultContainerPrefix = "container"
	defaultSeparator       = "-"
)

// composeFileNames are the accepted definition file names inside a
// composition directory, in lookup order.
var composeFileNames = []string{
	"docker-compose.yml",
	"docker-compose.yaml",
	"container-compose.yml",
	"container-compose.yaml",
}

// RuntimeOptions configures a Runtime. The zero value works for
// rootful setups with podman's stock unit naming.
type RuntimeOptions struct {
	// Runner executes subprocesses; nil selects ExecRunner.
	Runner Runner

	// ContainersBase is where project references are looked up when
	// they are not absolute paths.
	ContainersBase string

	// DefaultPodPrefix, DefaultContainerPrefix and DefaultSeparator
	// name generated units when the project does not override them.
	// Empty strings select podman's defaults (pod, container, -).
	DefaultPodPrefix       string
	DefaultContainerPrefix string
	DefaultSeparator       string

	// DefaultToDirOwner associates a composition with the owner of its
	// directory when the project names no user.
	DefaultToDirOwner bool

	// SystemServiceDir overrides where the system manager's unit files
	// live. Empty selects /etc/systemd/system.
	SystemServiceDir string

	Logger *slog.Logger
}

// Runtime implements compose.Runtime on top of podman, podman-compose
// and systemctl subprocesses.
type Runtime struct {
	runner  Runner
	options RuntimeOptions
	logger  *slog.Logger
}

// NewRuntime returns a Runtime over the given options.
func NewRuntime(options RuntimeOptions) *Runtime {
	runner := options.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if options.ContainersBase == "" {
		options.ContainersBase = "/opt/containers"
	}
	return &Runtime{runner: runner, options: options, logger: logger}
}

// project is a compose.Project with every default resolved.
type project struct {
	compose.Project

	file            string
	name            string
	podPrefix       string
	containerPrefix string
	separator       string
	user            string
}

func (r *Runtime) resolve(ctx context.Context, p compose.Project) (project, error) {
	resolved := project{Project: p}

	file, err := r.FindComposeFile(ctx, p)
	if err != nil {
		return project{}, err
	}
	resolved.file = file

	resolved.name = p.Name
	if resolved.name == "" {
		if file != "" {
			resolved.name = filepath.Base(filepath.Dir(file))
		} else {
			resolved.name = filepath.Base(p.Ref)
		}
	}

	resolved.podPrefix = stringOr(p.PodPrefix, stringDefault(r.options.DefaultPodPrefix, defaultPodPrefix))
	resolved.containerPrefix = stringOr(p.ContainerPrefix, stringDefault(r.options.DefaultContainerPrefix, defaultContainerPrefix))
	resolved.separator = stringOr(p.Separator, stringDefault(r.options.DefaultSeparator, defaultSeparator))

	resolved.user = p.User
	if resolved.user == "" && r.options.DefaultToDirOwner && file != "" {
		owner, err := fileOwner(filepath.Dir(file))
		if err != nil {
			return project{}, err
		}
		// root-owned directories stay rootful.
		if owner != "root" {
			resolved.user = owner
		}
	}
	return resolved, nil
}

func stringOr(override *string, fallback string) string {
	if override != nil {
		return *override
	}
	return fallback
}

func stringDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// fileOwner returns the username owning a path.
func fileOwner(path string) (string, error) {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	account, err := user.LookupId(fmt.Sprint(stat.Uid))
	if err != nil {
		return "", fmt.Errorf("resolving owner of %s: %w", path, err)
	}
	return account.Username, nil
}

// FindComposeFile resolves a project reference to its compose file. An
// absolute reference may name the file itself or its directory; a
// relative one is a directory under the containers base. A missing
// file is ("", nil).
func (r *Runtime) FindComposeFile(ctx context.Context, p compose.Project) (string, error) {
	if filepath.IsAbs(p.Ref) {
		info, err := os.Stat(p.Ref)
		if os.IsNotExist(err) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		if !info.IsDir() {
			return p.Ref, nil
		}
		return findComposeFileIn(p.Ref)
	}
	return findComposeFileIn(filepath.Join(r.options.ContainersBase, p.Ref))
}

func findComposeFileIn(dir string) (string, error) {
	for _, name := range composeFileNames {
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", err
		}
	}
	return "", nil
}

// ServiceDir returns where unit files live for the given account:
// the system manager's directory for the empty user, the per-user
// manager's otherwise.
func (r *Runtime) ServiceDir(ctx context.Context, username string) (string, error) {
	if username == "" {
		if r.options.SystemServiceDir != "" {
			return r.options.SystemServiceDir, nil
		}
		return "/etc/systemd/system", nil
	}
	account, err := user.Lookup(username)
	if err != nil {
		return "", fmt.Errorf("looking up %s: %w", username, err)
	}
	return filepath.Join(account.HomeDir, ".config", "systemd", "user"), nil
}

// ReadUnitFile reads an installed unit file; a missing file is
// ("", false, nil).
func (r *Runtime) ReadUnitFile(ctx context.Context, path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// ProjectInfo reports composition metadata.
func (r *Runtime) ProjectInfo(ctx context.Context, p compose.Project) (compose.ProjectInfo, error) {
	resolved, err := r.resolve(ctx, p)
	if err != nil {
		return compose.ProjectInfo{}, err
	}
	return compose.ProjectInfo{User: resolved.user}, nil
}

// Unshare runs a command inside the project user's namespace via
// podman unshare and returns its stdout.
func (r *Runtime) Unshare(ctx context.Context, p compose.Project, command ...string) (string, error) {
	resolved, err := r.resolve(ctx, p)
	if err != nil {
		return "", err
	}
	result, err := r.runner.Run(ctx, Command{
		Name: "podman",
		Args: append([]string{"unshare"}, command...),
		User: resolved.user,
	})
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("podman unshare %s: %s",
			strings.Join(command, " "), strings.TrimSpace(result.Stderr))
	}
	return result.Stdout, nil
}

// systemctl builds a systemctl invocation targeting the project's
// manager: the user manager for rootless projects, the system manager
// otherwise.
func (r *Runtime) systemctl(resolved project, args ...string) Command {
	if resolved.user != "" {
		return Command{Name: "systemctl", Args: append([]string{"--user"}, args...), User: resolved.user}
	}
	return Command{Name: "systemctl", Args: args}
}

// podmanCompose builds a podman-compose invocation for the project.
// globals go before the subcommand, args after it.
func (r *Runtime) podmanCompose(resolved project, globals []string, subcommand string, args ...string) Command {
	full := append([]string{}, globals...)
	full = append(full, "-f", resolved.file, "-p", resolved.name, subcommand)
	full = append(full, args...)
	return Command{Name: "podman-compose", Args: full, User: resolved.user}
}
