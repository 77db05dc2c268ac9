// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/composed-systems/composed/cmd/composed/cli"
)

func lingeringCommand() *cli.Command {
	return &cli.Command{
		Name:    "lingering",
		Summary: "Manage a user's lingering session manager",
		Description: "Rootless compositions need their account's session manager to\n" +
			"outlive logins; lingering keeps it running from boot.",
		Subcommands: []*cli.Command{
			lingeringVerbCommand("enable", true),
			lingeringVerbCommand("disable", false),
		},
	}
}

func lingeringVerbCommand(verb string, enable bool) *cli.Command {
	var common commonFlags

	return &cli.Command{
		Name:    verb,
		Summary: verb + " lingering for a user",
		Usage:   "composed lingering " + verb + " <user> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("lingering "+verb, pflag.ContinueOnError)
			common.register(flags)
			return flags
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "composed lingering "+verb+" <user>"); err != nil {
				return err
			}
			application, err := newApp(common)
			if err != nil {
				return err
			}
			outcome := application.reconciler.LingeringManaged(context.Background(), args[0], enable)
			return emit(outcome, common.jsonOut)
		},
	}
}
