// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"fmt"

	"github.com/composed-systems/composed/lib/compose"
)

// LingeringManaged makes sure lingering for the user account matches
// enable. Lingering is required to run rootless containers as general
// services: without it the user's session manager only exists while
// the user is logged in.
//
// The loginctl call returns before the session manager has actually
// come up (or gone away), so convergence is verified by polling the
// per-user session bus marker over a fixed window. An absent user is
// an invocation fault, except in evaluation mode where it passes
// softly — a preceding operation in the same run may be about to
// create the account.
func (r *Reconciler) LingeringManaged(ctx context.Context, name string, enable bool) Outcome {
	outcome, err := r.lingeringManaged(ctx, name, enable)
	return finish(name, outcome, err)
}

func (r *Reconciler) lingeringManaged(ctx context.Context, name string, enable bool) (Outcome, error) {
	account, found, err := r.accounts.Lookup(name)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		if r.options.Evaluate {
			return Outcome{
				Name:   name,
				Result: ResultUnknown,
				Comment: fmt.Sprintf(
					"User %s does not exist. If it is created by some state before this, this check will pass.", name),
			}, nil
		}
		return Outcome{}, compose.Invocationf("user %s does not exist", name)
	}

	verb := "enable"
	if !enable {
		verb = "disable"
	}

	current, err := r.accounts.LingeringEnabled(ctx, name)
	if err != nil {
		return Outcome{}, err
	}
	if current == enable {
		return satisfied(name, fmt.Sprintf("Lingering for user %s is already %sd.", name, verb)), nil
	}

	if r.options.Evaluate {
		return predicted(name, fmt.Sprintf("Lingering for user %s is set to be %sd.", name, verb), "lingering"), nil
	}

	apply := r.accounts.LingeringEnable
	if !enable {
		apply = r.accounts.LingeringDisable
	}
	ok, err := apply(ctx, name)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, compose.Executionf(
			"something went wrong while trying to %s lingering for user %s, this should not happen", verb, name)
	}

	converged, err := r.waitFor(ctx, lingerWindow, lingerPollInterval, func(context.Context) (bool, error) {
		exists, err := r.accounts.SessionMarkerExists(account.UID)
		if err != nil {
			return false, err
		}
		return exists == enable, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	if !converged {
		return Outcome{}, compose.Executionf(
			"no errors encountered, but the reported state does not match the expected")
	}
	return succeeded(name, fmt.Sprintf("Lingering for user %s has been %sd.", name, verb), "lingering"), nil
}
