// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/composed-systems/composed/cmd/composed/cli"
	"github.com/composed-systems/composed/lib/state"
)

func installedCommand() *cli.Command {
	var common commonFlags
	var projectF projectFlags
	var noUpdate bool
	var keepOrphans bool
	var noPod, forcePod bool
	var opts = state.DefaultInstalledOptions()

	return &cli.Command{
		Name:    "installed",
		Summary: "Create the composition and install its units",
		Description: "Creates the composition's containers without starting them and\n" +
			"installs systemd units managing their lifecycle. An installed\n" +
			"composition whose definitions changed is recreated in place,\n" +
			"preserving volumes.",
		Usage: "composed installed <project> [flags]",
		Examples: []cli.Example{
			{
				Description: "install or update the composition at /opt/containers/app",
				Command:     "composed installed app",
			},
			{
				Description: "predict what an install would change",
				Command:     "composed installed app --check",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("installed", pflag.ContinueOnError)
			common.register(flags)
			projectF.register(flags)
			flags.BoolVar(&noUpdate, "no-update", false, "leave an out-of-sync composition as it is")
			flags.BoolVar(&opts.ForceRecreate, "force-recreate", false, "recreate containers even without changes")
			flags.BoolVar(&keepOrphans, "keep-orphans", false, "keep containers no longer defined in the composition")
			flags.BoolVar(&opts.Build, "build", false, "build images before creating containers")
			flags.BoolVar(&opts.Pull, "pull", false, "pull newer images before creating containers")
			flags.BoolVar(&noPod, "no-pod", false, "do not group the containers in a pod")
			flags.BoolVar(&forcePod, "pod", false, "group the containers in a pod")
			flags.StringArrayVar(&opts.PodmanCreateArgs, "podman-create-arg", nil, "extra argument passed through to podman create (repeatable)")
			flags.BoolVar(&opts.Now, "now", false, "start the units right after enabling them")
			return flags
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "composed installed <project>"); err != nil {
				return err
			}
			application, err := newApp(common)
			if err != nil {
				return err
			}
			opts.Update = !noUpdate
			opts.RemoveOrphans = !keepOrphans
			if noPod || forcePod {
				createPod := forcePod
				opts.CreatePod = &createPod
			}
			outcome := application.reconciler.Installed(context.Background(), projectF.project(args[0]), opts)
			return emit(outcome, common.jsonOut)
		},
	}
}

func removedCommand() *cli.Command {
	var common commonFlags
	var projectF projectFlags
	var volumes bool

	return &cli.Command{
		Name:    "removed",
		Summary: "Tear the composition down and remove its units",
		Usage:   "composed removed <project> [flags]",
		Examples: []cli.Example{
			{
				Description: "remove the composition including its volumes",
				Command:     "composed removed app --volumes",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("removed", pflag.ContinueOnError)
			common.register(flags)
			projectF.register(flags)
			flags.BoolVar(&volumes, "volumes", false, "also remove named and anonymous volumes")
			return flags
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "composed removed <project>"); err != nil {
				return err
			}
			application, err := newApp(common)
			if err != nil {
				return err
			}
			outcome := application.reconciler.Removed(context.Background(), projectF.project(args[0]), volumes)
			return emit(outcome, common.jsonOut)
		},
	}
}

// stateCommand covers the four probe-and-verb composition states that
// share the same shape.
func stateCommand(name, summary string, run func(*app, projectFlags, commonFlags, string) state.Outcome) *cli.Command {
	var common commonFlags
	var projectF projectFlags

	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   "composed " + name + " <project> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
			common.register(flags)
			projectF.register(flags)
			return flags
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "composed "+name+" <project>"); err != nil {
				return err
			}
			application, err := newApp(common)
			if err != nil {
				return err
			}
			outcome := run(application, projectF, common, args[0])
			return emit(outcome, common.jsonOut)
		},
	}
}

func runningCommand() *cli.Command {
	return stateCommand("running", "Start the composition's services",
		func(application *app, projectF projectFlags, common commonFlags, ref string) state.Outcome {
			return application.reconciler.Running(context.Background(), projectF.project(ref), common.timeout)
		})
}

func deadCommand() *cli.Command {
	return stateCommand("dead", "Stop the composition's services",
		func(application *app, projectF projectFlags, common commonFlags, ref string) state.Outcome {
			return application.reconciler.Dead(context.Background(), projectF.project(ref), common.timeout)
		})
}

func enabledCommand() *cli.Command {
	return stateCommand("enabled", "Enable the composition's units at boot",
		func(application *app, projectF projectFlags, common commonFlags, ref string) state.Outcome {
			return application.reconciler.Enabled(context.Background(), projectF.project(ref))
		})
}

func disabledCommand() *cli.Command {
	return stateCommand("disabled", "Disable the composition's units at boot",
		func(application *app, projectF projectFlags, common commonFlags, ref string) state.Outcome {
			return application.reconciler.Disabled(context.Background(), projectF.project(ref))
		})
}

func watchCommand() *cli.Command {
	var common commonFlags
	var projectF projectFlags

	return &cli.Command{
		Name:    "watch",
		Summary: "React to changed upstream definitions",
		Description: "Re-converges a composition after its definitions changed: a dead\n" +
			"target is stopped, a running target restarted or started, an\n" +
			"installed target stopped and recreated from scratch.",
		Usage: "composed watch <project> <installed|running|dead> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			common.register(flags)
			projectF.register(flags)
			return flags
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 2, "composed watch <project> <target>"); err != nil {
				return err
			}
			application, err := newApp(common)
			if err != nil {
				return err
			}
			outcome := application.reconciler.Watch(context.Background(), projectF.project(args[0]), args[1], state.WatchParams{
				Timeout: common.timeout,
				Install: state.DefaultInstallOptions(),
			})
			return emit(outcome, common.jsonOut)
		},
	}
}
