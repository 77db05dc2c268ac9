// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"fmt"
	"time"

	"github.com/composed-systems/composed/lib/compose"
)

// WatchParams parameterizes a watch trigger. Each target consumes
// only the fields that apply to it: Timeout bounds the verify loop of
// the running and dead targets, Install parameterizes the forced
// recreate of the installed target.
type WatchParams struct {
	Timeout time.Duration
	Install compose.InstallOptions
}

// Watch is the secondary trigger invoked when a declaration this
// composition depends on changed even though its own declared target
// state did not. The action is selected from the declared target:
//
//   - "dead": stop if running, verify dead; no-op when already
//     stopped.
//   - "running": restart if running, start otherwise; verify running.
//   - "installed": stop a running composition first (the runtime's up
//     operation misbehaves against supervised units, same workaround
//     as Installed), then force a full recreate regardless of whether
//     a diff would be detected.
//
// Any other target is an explicit failure naming the target.
func (r *Reconciler) Watch(ctx context.Context, project compose.Project, target string, params WatchParams) Outcome {
	outcome, err := r.watch(ctx, project, target, params)
	return finish(project.Ref, outcome, err)
}

func (r *Reconciler) watch(ctx context.Context, project compose.Project, target string, params WatchParams) (Outcome, error) {
	noun := "Service"
	var verb, past string
	var apply func(context.Context) (bool, error)
	var verify func(context.Context) (bool, error)

	switch target {
	case "dead":
		running, err := r.runtime.IsRunning(ctx, project)
		if err != nil {
			return Outcome{}, err
		}
		if !running {
			return satisfied(project.Ref, "Service is already stopped."), nil
		}
		verb, past = "stop", "stopped"
		apply = func(ctx context.Context) (bool, error) { return r.runtime.Stop(ctx, project) }
		verify = func(ctx context.Context) (bool, error) { return r.runtime.IsDead(ctx, project) }

	case "running":
		running, err := r.runtime.IsRunning(ctx, project)
		if err != nil {
			return Outcome{}, err
		}
		if running {
			verb, past = "restart", "restarted"
			apply = func(ctx context.Context) (bool, error) { return r.runtime.Restart(ctx, project) }
		} else {
			verb, past = "start", "started"
			apply = func(ctx context.Context) (bool, error) { return r.runtime.Start(ctx, project) }
		}
		verify = func(ctx context.Context) (bool, error) { return r.runtime.IsRunning(ctx, project) }

	case "installed":
		// The upstream declaration changed but the composition's own
		// diff probes may not notice (e.g. an env file). Recreate
		// unconditionally, stopping first so the runtime's up
		// operation does not collide with supervised units.
		if !r.options.Evaluate {
			running, err := r.runtime.IsRunning(ctx, project)
			if err != nil {
				return Outcome{}, err
			}
			if running {
				if _, err := r.runtime.Stop(ctx, project); err != nil {
					return Outcome{}, err
				}
			}
		}
		install := params.Install
		install.ForceRecreate = true
		noun = "Composition"
		verb, past = "recreate", "recreated"
		apply = func(ctx context.Context) (bool, error) { return r.runtime.Install(ctx, project, install) }

	default:
		return failed(project.Ref, fmt.Sprintf("Unable to trigger watch for %s.", target)), nil
	}

	if r.options.Evaluate {
		return predicted(project.Ref, fmt.Sprintf("%s is set to be %s.", noun, past), past), nil
	}

	ok, err := apply(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		r.options.Logger.Debug("watch apply reported failure", "project", project.Ref, "verb", verb)
	}

	if verify != nil {
		converged, err := r.waitFor(ctx, r.timeoutOrDefault(params.Timeout), r.options.PollInterval, verify)
		if err != nil {
			return Outcome{}, err
		}
		if !converged {
			return failed(project.Ref, fmt.Sprintf(
				"Tried to %s the service, but it is still not %s.", verb, target)), nil
		}
	}
	return succeeded(project.Ref, fmt.Sprintf("%s was %s.", noun, past), past), nil
}
