// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the composed binary:
// a declarative command tree with pflag flag sets, structured help,
// typo suggestions for commands and flags, and exit code plumbing.
//
// Key exports:
//
//   - [Command] -- one command or subcommand with flags and help
//   - [ExitError] -- non-zero exit without a redundant error line
//   - [NewCommandLogger] -- slog logger, text on terminals, JSON
//     when piped
package cli
