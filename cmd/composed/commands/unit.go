// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/composed-systems/composed/cmd/composed/cli"
	"github.com/composed-systems/composed/lib/state"
)

func unitCommand() *cli.Command {
	return &cli.Command{
		Name:    "unit",
		Summary: "Converge a bare systemd unit, per-user capable",
		Description: "Applies the composition state verbs to an arbitrary systemd unit,\n" +
			"including units of a user manager. Useful for services that belong\n" +
			"to a composition's setup but are not containers.",
		Subcommands: []*cli.Command{
			unitVerbCommand("running", "Start the unit",
				func(application *app, common commonFlags, unit, user string) state.Outcome {
					return application.reconciler.UnitRunning(context.Background(), unit, user, common.timeout)
				}),
			unitVerbCommand("dead", "Stop the unit",
				func(application *app, common commonFlags, unit, user string) state.Outcome {
					return application.reconciler.UnitDead(context.Background(), unit, user, common.timeout)
				}),
			unitVerbCommand("enabled", "Enable the unit at boot",
				func(application *app, common commonFlags, unit, user string) state.Outcome {
					return application.reconciler.UnitEnabled(context.Background(), unit, user)
				}),
			unitVerbCommand("disabled", "Disable the unit at boot",
				func(application *app, common commonFlags, unit, user string) state.Outcome {
					return application.reconciler.UnitDisabled(context.Background(), unit, user)
				}),
		},
	}
}

func unitVerbCommand(name, summary string, run func(*app, commonFlags, string, string) state.Outcome) *cli.Command {
	var common commonFlags
	var user string

	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   "composed unit " + name + " <unit> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("unit "+name, pflag.ContinueOnError)
			common.register(flags)
			flags.StringVar(&user, "user", "", "target this account's user manager")
			return flags
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "composed unit "+name+" <unit>"); err != nil {
				return err
			}
			application, err := newApp(common)
			if err != nil {
				return err
			}
			outcome := run(application, common, args[0], user)
			return emit(outcome, common.jsonOut)
		},
	}
}
