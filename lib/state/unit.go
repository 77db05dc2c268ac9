// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"fmt"
	"time"

	"github.com/composed-systems/composed/lib/compose"
)

// The unit-scoped operations generalize the composition lifecycle to
// arbitrary supervisor units outside any composition, including units
// belonging to other user accounts (user empty targets the system
// manager). They follow the exact same probe / evaluate / apply /
// verify protocol.

// UnitRunning makes sure a supervisor unit is running.
func (r *Reconciler) UnitRunning(ctx context.Context, unit, user string, timeout time.Duration) Outcome {
	outcome, err := r.unitRunning(ctx, unit, user, timeout)
	return finish(unit, outcome, err)
}

func (r *Reconciler) unitRunning(ctx context.Context, unit, user string, timeout time.Duration) (Outcome, error) {
	running, err := r.units.IsRunning(ctx, unit, user)
	if err != nil {
		return Outcome{}, err
	}
	if running {
		return satisfied(unit, fmt.Sprintf("Service %s is already running.", unit)), nil
	}

	if r.options.Evaluate {
		return predicted(unit, fmt.Sprintf("Service %s is set to be started.", unit), "started"), nil
	}

	ok, err := r.units.Start(ctx, unit, user)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, compose.Executionf(
			"something went wrong while trying to start service %s, this should not happen", unit)
	}

	converged, err := r.waitFor(ctx, r.timeoutOrDefault(timeout), r.options.PollInterval, func(ctx context.Context) (bool, error) {
		return r.units.IsRunning(ctx, unit, user)
	})
	if err != nil {
		return Outcome{}, err
	}
	if !converged {
		return failed(unit, "Tried to start the service, but it is still not running."), nil
	}
	return succeeded(unit, fmt.Sprintf("Service %s has been started.", unit), "started"), nil
}

// UnitDead makes sure a supervisor unit is stopped.
func (r *Reconciler) UnitDead(ctx context.Context, unit, user string, timeout time.Duration) Outcome {
	outcome, err := r.unitDead(ctx, unit, user, timeout)
	return finish(unit, outcome, err)
}

func (r *Reconciler) unitDead(ctx context.Context, unit, user string, timeout time.Duration) (Outcome, error) {
	running, err := r.units.IsRunning(ctx, unit, user)
	if err != nil {
		return Outcome{}, err
	}
	if !running {
		return satisfied(unit, fmt.Sprintf("Service %s is already dead.", unit)), nil
	}

	if r.options.Evaluate {
		return predicted(unit, fmt.Sprintf("Service %s is set to be stopped.", unit), "stopped"), nil
	}

	ok, err := r.units.Stop(ctx, unit, user)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, compose.Executionf(
			"something went wrong while trying to stop service %s, this should not happen", unit)
	}

	converged, err := r.waitFor(ctx, r.timeoutOrDefault(timeout), r.options.PollInterval, func(ctx context.Context) (bool, error) {
		running, err := r.units.IsRunning(ctx, unit, user)
		return !running, err
	})
	if err != nil {
		return Outcome{}, err
	}
	if !converged {
		return failed(unit, "Tried to stop the service, but it is still running."), nil
	}
	return succeeded(unit, fmt.Sprintf("Service %s has been stopped.", unit), "stopped"), nil
}

// UnitEnabled makes sure a supervisor unit is enabled.
func (r *Reconciler) UnitEnabled(ctx context.Context, unit, user string) Outcome {
	outcome, err := r.unitEnabled(ctx, unit, user)
	return finish(unit, outcome, err)
}

func (r *Reconciler) unitEnabled(ctx context.Context, unit, user string) (Outcome, error) {
	enabled, err := r.units.IsEnabled(ctx, unit, user)
	if err != nil {
		return Outcome{}, err
	}
	if enabled {
		return satisfied(unit, fmt.Sprintf("Service %s is already enabled.", unit)), nil
	}

	if r.options.Evaluate {
		return predicted(unit, fmt.Sprintf("Service %s is set to be enabled.", unit), "enabled"), nil
	}

	ok, err := r.units.Enable(ctx, unit, user)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, compose.Executionf(
			"something went wrong while trying to enable service %s, this should not happen", unit)
	}

	enabled, err = r.units.IsEnabled(ctx, unit, user)
	if err != nil {
		return Outcome{}, err
	}
	if !enabled {
		return failed(unit, "Tried to enable the service, but it is reported as disabled."), nil
	}
	return succeeded(unit, fmt.Sprintf("Service %s has been enabled.", unit), "enabled"), nil
}

// UnitDisabled makes sure a supervisor unit is disabled.
func (r *Reconciler) UnitDisabled(ctx context.Context, unit, user string) Outcome {
	outcome, err := r.unitDisabled(ctx, unit, user)
	return finish(unit, outcome, err)
}

func (r *Reconciler) unitDisabled(ctx context.Context, unit, user string) (Outcome, error) {
	enabled, err := r.units.IsEnabled(ctx, unit, user)
	if err != nil {
		return Outcome{}, err
	}
	if !enabled {
		return satisfied(unit, fmt.Sprintf("Service %s is already disabled.", unit)), nil
	}

	if r.options.Evaluate {
		return predicted(unit, fmt.Sprintf("Service %s is set to be disabled.", unit), "disabled"), nil
	}

	ok, err := r.units.Disable(ctx, unit, user)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, compose.Executionf(
			"something went wrong while trying to disable service %s, this should not happen", unit)
	}

	enabled, err = r.units.IsEnabled(ctx, unit, user)
	if err != nil {
		return Outcome{}, err
	}
	if enabled {
		return failed(unit, "Tried to disable the service, but it is reported as enabled."), nil
	}
	return succeeded(unit, fmt.Sprintf("Service %s has been disabled.", unit), "disabled"), nil
}
