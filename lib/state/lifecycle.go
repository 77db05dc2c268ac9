// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/composed-systems/composed/lib/compose"
)

// InstalledOptions parameterizes the installed target. The zero value
// disables updating and unit enablement; use DefaultInstalledOptions
// for the documented defaults.
type InstalledOptions struct {
	compose.InstallOptions

	// Update also updates the services when the definitions have
	// changed. This does not pull images and ignores changes outside
	// the compose file (e.g. env files).
	Update bool
}

// DefaultUnitOptions returns the documented unit generation defaults:
// ephemeral containers, pod dependencies as Wants=, units enabled.
func DefaultUnitOptions() compose.UnitOptions {
	return compose.UnitOptions{
		Ephemeral:   true,
		PodWants:    true,
		EnableUnits: true,
	}
}

// DefaultInstallOptions returns the documented install defaults:
// DefaultUnitOptions plus orphan removal.
func DefaultInstallOptions() compose.InstallOptions {
	return compose.InstallOptions{
		UnitOptions:   DefaultUnitOptions(),
		RemoveOrphans: true,
	}
}

// DefaultInstalledOptions returns DefaultInstallOptions with updating
// enabled.
func DefaultInstalledOptions() InstalledOptions {
	return InstalledOptions{
		InstallOptions: DefaultInstallOptions(),
		Update:         true,
	}
}

// Installed makes sure the composition is installed: resources
// created and supervisor units generated for them. With a detected
// content diff on an already-installed composition it does not update
// in place — the runtime's up operation is known to leave stray
// resources after a failed implicit removal — but tears the
// composition fully down (stop, then remove keeping volumes) and
// re-applies from scratch. When only the unit file text differs, it
// rewrites the unit files without touching the running resources.
//
// Under ForceRecreate the installed probe is skipped entirely and the
// composition is reported as updated.
func (r *Reconciler) Installed(ctx context.Context, project compose.Project, opts InstalledOptions) Outcome {
	outcome, err := r.installed(ctx, project, opts)
	return finish(project.Ref, outcome, err)
}

func (r *Reconciler) installed(ctx context.Context, project compose.Project, opts InstalledOptions) (Outcome, error) {
	isInstalled := true
	hasChanges := false
	unitsChanged := false

	if !opts.ForceRecreate {
		units, err := r.runtime.ListInstalledUnits(ctx, project)
		if err != nil {
			return Outcome{}, err
		}
		isInstalled = !units.Empty()

		if isInstalled && !opts.Update {
			return satisfied(project.Ref, fmt.Sprintf("Composition %s is already installed.", project.Ref)), nil
		}

		hasChanges, err = r.runtime.HasChanges(ctx, project, !opts.RemoveOrphans)
		if err != nil {
			return Outcome{}, err
		}

		generate := opts.UnitOptions
		generate.GenerateOnly = true
		wanted, err := r.runtime.InstallUnits(ctx, project, generate)
		if err != nil {
			// A composition that has never been created has nothing to
			// describe yet; that is not a diff against anything.
			if !errors.Is(err, compose.ErrNoExistingResources) {
				return Outcome{}, err
			}
			wanted = nil
		}

		serviceDir, err := r.runtime.ServiceDir(ctx, project.User)
		if err != nil {
			return Outcome{}, err
		}
		for unitName, wantedText := range wanted {
			unitFile := filepath.Join(serviceDir, unitName+".service")
			content, exists, err := r.runtime.ReadUnitFile(ctx, unitFile)
			if err != nil {
				return Outcome{}, err
			}
			if !exists || content != wantedText {
				unitsChanged = true
				break
			}
		}

		if isInstalled && !hasChanges && !unitsChanged {
			return satisfied(project.Ref, fmt.Sprintf(
				"Composition %s is already installed and in sync with the definitions.", project.Ref)), nil
		}
	}

	verb := "installed"
	if isInstalled {
		verb = "updated"
	}

	if r.options.Evaluate {
		return predicted(project.Ref, fmt.Sprintf("Composition %s is set to be %s.", project.Ref, verb), verb), nil
	}

	if hasChanges && isInstalled {
		// The runtime's up operation sometimes fails to remove the old
		// containers before recreating: stop succeeds, rm reports "no
		// such container", pod rm succeeds, and the recreate then
		// collides with the leftovers. Tear everything down first and
		// reinstall from scratch. Volumes are kept.
		r.options.Logger.Debug("updating composition", "project", project.Ref)
		r.options.Logger.Debug("removing composition to work around runtime update issues", "project", project.Ref)
		if dead := r.Dead(ctx, project, 0); dead.Result == ResultFailed {
			r.options.Logger.Debug("pre-update stop did not converge", "project", project.Ref, "comment", dead.Comment)
		}
		if removed := r.Removed(ctx, project, false); removed.Result == ResultFailed {
			r.options.Logger.Debug("pre-update removal did not converge", "project", project.Ref, "comment", removed.Comment)
		}
	}

	var outcome Outcome
	if unitsChanged && !hasChanges {
		// Only the generated unit text drifted; rewriting the unit
		// files is enough, the running resources stay untouched.
		rewrite := opts.UnitOptions
		rewrite.GenerateOnly = false
		rewrite.Now = false
		if _, err := r.runtime.InstallUnits(ctx, project, rewrite); err != nil {
			return Outcome{}, err
		}
		outcome = succeeded(project.Ref,
			fmt.Sprintf("Unit files for composition %s have been updated.", project.Ref), "updated")
	} else {
		install := opts.InstallOptions
		install.Now = false
		ok, err := r.runtime.Install(ctx, project, install)
		if err != nil {
			return Outcome{}, err
		}
		if !ok {
			action := "install"
			if isInstalled {
				action = "update"
			}
			return Outcome{}, compose.Executionf(
				"something went wrong while trying to %s composition %s, this should not happen",
				action, project.Ref)
		}
		outcome = succeeded(project.Ref,
			fmt.Sprintf("Composition %s has been %s.", project.Ref, verb), verb)
	}

	missing, err := r.runtime.ListMissingUnits(ctx, project, opts.CreatePod)
	if err != nil {
		return Outcome{}, err
	}
	if len(missing) > 0 {
		outcome.Result = ResultFailed
		outcome.Comment = "Tried to install the composition, but there are still some missing components."
	}
	return outcome, nil
}

// Removed makes sure the composition is not installed. An absent
// compose file means there is nothing left to identify the
// composition by, so it is treated as already removed rather than an
// error. volumes also removes named and anonymous volumes.
func (r *Reconciler) Removed(ctx context.Context, project compose.Project, volumes bool) Outcome {
	outcome, err := r.removed(ctx, project, volumes)
	return finish(project.Ref, outcome, err)
}

func (r *Reconciler) removed(ctx context.Context, project compose.Project, volumes bool) (Outcome, error) {
	composeFile, err := r.runtime.FindComposeFile(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if composeFile == "" {
		return satisfied(project.Ref, fmt.Sprintf(
			"Could not find compose file for composition %s. Assuming it has been removed.", project.Ref)), nil
	}

	units, err := r.runtime.ListInstalledUnits(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if units.Empty() {
		return satisfied(project.Ref, fmt.Sprintf("Composition %s is already absent.", project.Ref)), nil
	}

	if r.options.Evaluate {
		comment := fmt.Sprintf("Composition %s is set to be removed.", project.Ref)
		if volumes {
			comment += " Volumes are set to be removed as well."
		}
		return predicted(project.Ref, comment, "removed"), nil
	}

	ok, err := r.runtime.Remove(ctx, project, volumes)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, compose.Executionf(
			"something went wrong while trying to remove composition %s, this should not happen", project.Ref)
	}

	units, err = r.runtime.ListInstalledUnits(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if !units.Empty() {
		return failed(project.Ref, "Tried to remove the composition, but some units are still installed."), nil
	}

	comment := fmt.Sprintf("Composition %s has been removed.", project.Ref)
	if volumes {
		comment += " Volumes have been removed as well."
	}
	return succeeded(project.Ref, comment, "removed"), nil
}

// Running makes sure the composition's units are running. Only the
// pod is started explicitly, so the member container services lag
// behind; the result is verified by polling up to timeout (zero
// selects the configured default).
func (r *Reconciler) Running(ctx context.Context, project compose.Project, timeout time.Duration) Outcome {
	outcome, err := r.running(ctx, project, timeout)
	return finish(project.Ref, outcome, err)
}

func (r *Reconciler) running(ctx context.Context, project compose.Project, timeout time.Duration) (Outcome, error) {
	running, err := r.runtime.IsRunning(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if running {
		return satisfied(project.Ref, fmt.Sprintf("Service for %s is already running.", project.Ref)), nil
	}

	if r.options.Evaluate {
		return predicted(project.Ref, fmt.Sprintf("Service for %s is set to be started.", project.Ref), "started"), nil
	}

	ok, err := r.runtime.Start(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, compose.Executionf(
			"something went wrong while trying to start service for %s, this should not happen", project.Ref)
	}

	converged, err := r.waitFor(ctx, r.timeoutOrDefault(timeout), r.options.PollInterval, func(ctx context.Context) (bool, error) {
		return r.runtime.IsRunning(ctx, project)
	})
	if err != nil {
		return Outcome{}, err
	}
	if !converged {
		return failed(project.Ref, "Tried to start the service, but it is still not running."), nil
	}
	return succeeded(project.Ref, fmt.Sprintf("Service for %s has been started.", project.Ref), "started"), nil
}

// Dead makes sure the composition's units are stopped. Verified by
// polling up to timeout (zero selects the configured default).
func (r *Reconciler) Dead(ctx context.Context, project compose.Project, timeout time.Duration) Outcome {
	outcome, err := r.dead(ctx, project, timeout)
	return finish(project.Ref, outcome, err)
}

func (r *Reconciler) dead(ctx context.Context, project compose.Project, timeout time.Duration) (Outcome, error) {
	composeFile, err := r.runtime.FindComposeFile(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if composeFile == "" {
		return satisfied(project.Ref, fmt.Sprintf(
			"Could not find compose file for composition %s. Assuming it has been removed.", project.Ref)), nil
	}

	units, err := r.runtime.ListInstalledUnits(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if units.Empty() {
		return satisfied(project.Ref, fmt.Sprintf(
			"Could not find any installed units for composition %s.", project.Ref)), nil
	}

	running, err := r.runtime.IsRunning(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if !running {
		return satisfied(project.Ref, fmt.Sprintf("Service for %s is already dead.", project.Ref)), nil
	}

	if r.options.Evaluate {
		return predicted(project.Ref, fmt.Sprintf("Service for %s is set to be stopped.", project.Ref), "stopped"), nil
	}

	ok, err := r.runtime.Stop(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, compose.Executionf(
			"something went wrong while trying to stop service for %s, this should not happen", project.Ref)
	}

	converged, err := r.waitFor(ctx, r.timeoutOrDefault(timeout), r.options.PollInterval, func(ctx context.Context) (bool, error) {
		return r.runtime.IsDead(ctx, project)
	})
	if err != nil {
		return Outcome{}, err
	}
	if !converged {
		return failed(project.Ref, "Tried to stop the service, but it is still running."), nil
	}
	return succeeded(project.Ref, fmt.Sprintf("Service for %s has been stopped.", project.Ref), "stopped"), nil
}

// Enabled makes sure the composition's units are enabled. Enablement
// is synchronous, so the post-check runs once without polling.
func (r *Reconciler) Enabled(ctx context.Context, project compose.Project) Outcome {
	outcome, err := r.enabled(ctx, project)
	return finish(project.Ref, outcome, err)
}

func (r *Reconciler) enabled(ctx context.Context, project compose.Project) (Outcome, error) {
	enabled, err := r.runtime.IsEnabled(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if enabled {
		return satisfied(project.Ref, fmt.Sprintf("Service for %s is already enabled.", project.Ref)), nil
	}

	if r.options.Evaluate {
		return predicted(project.Ref, fmt.Sprintf("Service for %s is set to be enabled.", project.Ref), "enabled"), nil
	}

	ok, err := r.runtime.Enable(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, compose.Executionf(
			"something went wrong while trying to enable service for %s, this should not happen", project.Ref)
	}

	enabled, err = r.runtime.IsEnabled(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if !enabled {
		return failed(project.Ref, "Tried to enable the service, but it is reported as disabled."), nil
	}
	return succeeded(project.Ref, fmt.Sprintf("Service for %s has been enabled.", project.Ref), "enabled"), nil
}

// Disabled makes sure the composition's units are disabled.
func (r *Reconciler) Disabled(ctx context.Context, project compose.Project) Outcome {
	outcome, err := r.disabled(ctx, project)
	return finish(project.Ref, outcome, err)
}

func (r *Reconciler) disabled(ctx context.Context, project compose.Project) (Outcome, error) {
	composeFile, err := r.runtime.FindComposeFile(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if composeFile == "" {
		return satisfied(project.Ref, fmt.Sprintf(
			"Could not find compose file for composition %s. Assuming it has been removed.", project.Ref)), nil
	}

	units, err := r.runtime.ListInstalledUnits(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if units.Empty() {
		return satisfied(project.Ref, fmt.Sprintf(
			"Could not find any installed units for composition %s.", project.Ref)), nil
	}

	enabled, err := r.runtime.IsEnabled(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if !enabled {
		return satisfied(project.Ref, fmt.Sprintf("Service for %s is already disabled.", project.Ref)), nil
	}

	if r.options.Evaluate {
		return predicted(project.Ref, fmt.Sprintf("Service for %s is set to be disabled.", project.Ref), "disabled"), nil
	}

	ok, err := r.runtime.Disable(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, compose.Executionf(
			"something went wrong while trying to disable service for %s, this should not happen", project.Ref)
	}

	disabled, err := r.runtime.IsDisabled(ctx, project)
	if err != nil {
		return Outcome{}, err
	}
	if !disabled {
		return failed(project.Ref, "Tried to disable the service, but it is still reported as enabled."), nil
	}
	return succeeded(project.Ref, fmt.Sprintf("Service for %s has been disabled.", project.Ref), "disabled"), nil
}
