// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/spf13/pflag"

	"github.com/composed-systems/composed/cmd/composed/cli"
	"github.com/composed-systems/composed/lib/compose"
	"github.com/composed-systems/composed/lib/compose/podmanexec"
	"github.com/composed-systems/composed/lib/config"
	"github.com/composed-systems/composed/lib/owner"
	"github.com/composed-systems/composed/lib/state"
)

// Root returns the composed command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "composed",
		Summary: "Declarative lifecycle management for podman compositions",
		Description: "composed converges podman compositions toward declared states:\n" +
			"installed, removed, running, dead, enabled or disabled, with systemd\n" +
			"units generated from the compose definitions.",
		Subcommands: []*cli.Command{
			installedCommand(),
			removedCommand(),
			runningCommand(),
			deadCommand(),
			enabledCommand(),
			disabledCommand(),
			lingeringCommand(),
			unitCommand(),
			watchCommand(),
			resolveOwnerCommand(),
		},
	}
}

// commonFlags are shared by every state command.
type commonFlags struct {
	config  string
	check   bool
	jsonOut bool
	verbose bool
	timeout time.Duration
}

func (f *commonFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.config, "config", "", "path to the composed config file (default: $COMPOSED_CONFIG)")
	flags.BoolVar(&f.check, "check", false, "predict the outcome without applying anything")
	flags.BoolVar(&f.jsonOut, "json", false, "emit the outcome as JSON")
	flags.BoolVar(&f.verbose, "verbose", false, "enable debug logging")
	flags.DurationVar(&f.timeout, "timeout", 0, "verification timeout (default: from config)")
}

// projectFlags select and parameterize one composition.
type projectFlags struct {
	name            string
	user            string
	podPrefix       string
	containerPrefix string
	separator       string

	set *pflag.FlagSet
}

func (f *projectFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.name, "project-name", "", "override the project name")
	flags.StringVar(&f.user, "user", "", "account the composition runs under")
	flags.StringVar(&f.podPrefix, "pod-prefix", "", "unit name prefix for pods")
	flags.StringVar(&f.containerPrefix, "container-prefix", "", "unit name prefix for containers")
	flags.StringVar(&f.separator, "separator", "", "separator between prefix and resource name")
	f.set = flags
}

// project builds the compose.Project for the positional reference.
// Prefix flags distinguish "not given" from an explicit empty string
// via Changed, so --pod-prefix="" disables the prefix outright.
func (f *projectFlags) project(ref string) compose.Project {
	p := compose.Project{Ref: ref, Name: f.name, User: f.user}
	if f.set.Changed("pod-prefix") {
		p.PodPrefix = &f.podPrefix
	}
	if f.set.Changed("container-prefix") {
		p.ContainerPrefix = &f.containerPrefix
	}
	if f.set.Changed("separator") {
		p.Separator = &f.separator
	}
	return p
}

// app wires configuration, the podman-backed collaborators and the
// reconciler for one command invocation.
type app struct {
	reconciler *state.Reconciler
	runtime    *podmanexec.Runtime
	accounts   *podmanexec.Accounts
	config     *config.Config
	logger     *slog.Logger
}

func newApp(common commonFlags) (*app, error) {
	cfg, err := config.Load(common.config)
	if err != nil {
		return nil, err
	}

	logger := cli.NewCommandLogger(common.verbose)

	runtime := podmanexec.NewRuntime(podmanexec.RuntimeOptions{
		ContainersBase:         cfg.ContainersBase,
		DefaultPodPrefix:       cfg.DefaultPodPrefix,
		DefaultContainerPrefix: cfg.DefaultContainerPrefix,
		DefaultSeparator:       cfg.Separator,
		DefaultToDirOwner:      cfg.DirOwnerDefault(),
		Logger:                 logger,
	})
	units := podmanexec.NewSystemctl(nil, logger)
	accounts := podmanexec.NewAccounts(nil, logger)

	timeout := cfg.Timeout
	if common.timeout > 0 {
		timeout = common.timeout
	}
	reconciler := state.New(runtime, units, accounts, state.Options{
		Evaluate:     common.check,
		Timeout:      timeout,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	})

	return &app{
		reconciler: reconciler,
		runtime:    runtime,
		accounts:   accounts,
		config:     cfg,
		logger:     logger,
	}, nil
}

// emit prints the outcome and translates a failed convergence into a
// non-zero exit.
func emit(outcome state.Outcome, jsonOut bool) error {
	if jsonOut {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(outcome); err != nil {
			return err
		}
	} else {
		printOutcome(os.Stdout, outcome)
	}
	if outcome.Result == state.ResultFailed {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func printOutcome(w io.Writer, outcome state.Outcome) {
	fmt.Fprintf(w, "%s: %s\n", outcome.Name, outcome.Result)
	if outcome.Comment != "" {
		fmt.Fprintf(w, "  comment: %s\n", outcome.Comment)
	}
	if len(outcome.Changes) > 0 {
		fmt.Fprintf(w, "  changes:\n")
		keys := make([]string, 0, len(outcome.Changes))
		for key := range outcome.Changes {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "    %s: %s\n", key, outcome.Changes[key])
		}
	}
}

// requireArgs checks the positional argument count.
func requireArgs(args []string, count int, usage string) error {
	if len(args) != count {
		return fmt.Errorf("expected %s", usage)
	}
	return nil
}

// resolveOwnerCommand resolves a container-internal owner to the host
// ID, for tooling that prepares files a composition will consume.
func resolveOwnerCommand() *cli.Command {
	var common commonFlags
	var projectF projectFlags
	var containerRef string
	var group bool

	return &cli.Command{
		Name:    "resolve-owner",
		Summary: "Translate a container-internal UID/GID to the host",
		Usage:   "composed resolve-owner <project> <owner> [flags]",
		Examples: []cli.Example{
			{
				Description: "host UID that container UID 1000 maps to",
				Command:     "composed resolve-owner app 1000",
			},
			{
				Description: "host GID for the container's root group",
				Command:     "composed resolve-owner app root --group --container web",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("resolve-owner", pflag.ContinueOnError)
			common.register(flags)
			projectF.register(flags)
			flags.StringVar(&containerRef, "container", "", "container name substring to resolve against")
			flags.BoolVar(&group, "group", false, "resolve a GID instead of a UID")
			return flags
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 2, "composed resolve-owner <project> <owner>"); err != nil {
				return err
			}
			application, err := newApp(common)
			if err != nil {
				return err
			}

			kind := owner.KindUser
			if group {
				kind = owner.KindGroup
			}
			wanted, err := owner.ParseIdentity(kind, args[1])
			if err != nil {
				return err
			}

			resolver := owner.NewResolver(application.runtime, application.accounts, application.logger)
			id, err := resolver.Resolve(context.Background(), owner.Request{
				Project:      projectF.project(args[0]),
				ContainerRef: containerRef,
				Kind:         kind,
				Wanted:       wanted,
			})
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
}
