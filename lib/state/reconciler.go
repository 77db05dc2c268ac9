// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/composed-systems/composed/lib/clock"
	"github.com/composed-systems/composed/lib/compose"
)

// Default timings for convergence verification. Most lifecycle
// transitions poll at DefaultPollInterval up to DefaultTimeout; the
// lingering session marker uses its own tighter interval over a fixed
// window because session managers come up quickly but lag the
// loginctl call.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
	lingerWindow        = 10 * time.Second
	lingerPollInterval  = 100 * time.Millisecond
)

// Options configures a Reconciler. The zero value is usable: real
// clock, default timings, discarded logs, evaluation off.
type Options struct {
	// Evaluate predicts outcomes without applying anything. No action
	// runs and no verification polls; results carry ResultUnknown.
	Evaluate bool

	// Timeout bounds verification polling for asynchronous effects.
	// Zero selects DefaultTimeout.
	Timeout time.Duration

	// PollInterval is the pause between verification probes. Zero
	// selects DefaultPollInterval.
	PollInterval time.Duration

	// Clock is the time source for the polling loops. Nil selects the
	// real clock.
	Clock clock.Clock

	// Logger receives debug-level traces of workaround paths and
	// probe decisions. Nil discards them.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Reconciler drives compositions, bare units, and per-user lingering
// toward declared target states. Construct one per batch of calls; it
// holds no state beyond its collaborators and options.
type Reconciler struct {
	runtime  compose.Runtime
	units    compose.UnitManager
	accounts compose.Accounts
	options  Options
}

// New returns a Reconciler over the given collaborators.
func New(runtime compose.Runtime, units compose.UnitManager, accounts compose.Accounts, options Options) *Reconciler {
	return &Reconciler{
		runtime:  runtime,
		units:    units,
		accounts: accounts,
		options:  options.withDefaults(),
	}
}

// timeoutOrDefault resolves a caller-supplied timeout, falling back to
// the configured one.
func (r *Reconciler) timeoutOrDefault(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return r.options.Timeout
}

// waitFor polls probe until it reports true or timeout elapses.
// Returns (false, nil) on timeout; probe errors abort immediately.
// There is no way to cancel an already-issued external action, so the
// context is only consulted between probes.
func (r *Reconciler) waitFor(ctx context.Context, timeout, interval time.Duration, probe func(context.Context) (bool, error)) (bool, error) {
	start := r.options.Clock.Now()
	for {
		ok, err := probe(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if r.options.Clock.Now().Sub(start) > timeout {
			return false, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		r.options.Clock.Sleep(interval)
	}
}

// finish applies the fault boundary: any error becomes a failed
// Outcome carrying the error text, matching the contract that no
// fault escapes a lifecycle operation.
func finish(name string, outcome Outcome, err error) Outcome {
	if err != nil {
		return failed(name, err.Error())
	}
	return outcome
}
