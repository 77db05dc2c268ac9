// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"strings"
	"testing"
)

func TestWatchDeadWhileRunning(t *testing.T) {
	reconciler, world := newTestReconciler(t, Options{})
	world.runtime.running = true

	outcome := reconciler.Watch(context.Background(), testProject, "dead", WatchParams{})
	if outcome.Result != ResultSuccess {
		t.Fatalf("result %v, comment %q", outcome.Result, outcome.Comment)
	}
	if outcome.Comment != "Service was stopped." {
		t.Errorf("comment = %q", outcome.Comment)
	}
	applied := world.runtime.applied()
	if len(applied) != 1 || applied[0] != "stop" {
		t.Errorf("applied = %v, want stop", applied)
	}
}

func TestWatchDeadAlreadyStopped(t *testing.T) {
	reconciler, world := newTestReconciler(t, Options{})

	outcome := reconciler.Watch(context.Background(), testProject, "dead", WatchParams{})
	if outcome.Result != ResultAlreadySatisfied {
		t.Fatalf("result %v, comment %q", outcome.Result, outcome.Comment)
	}
	if outcome.Comment != "Service is already stopped." {
		t.Errorf("comment = %q", outcome.Comment)
	}
	if applied := world.runtime.applied(); len(applied) != 0 {
		t.Errorf("applied = %v", applied)
	}
}

// A running composition whose upstream declaration changed is
// restarted, not merely started.
func TestWatchRunningSelectsRestart(t *testing.T) {
	reconciler, world := newTestReconciler(t, Options{})
	world.runtime.running = true

	outcome := reconciler.Watch(context.Background(), testProject, "running", WatchParams{})
	if outcome.Result != ResultSuccess {
		t.Fatalf("result %v, comment %q", outcome.Result, outcome.Comment)
	}
	if outcome.Comment != "Service was restarted." {
		t.Errorf("comment = %q", outcome.Comment)
	}
	applied := world.runtime.applied()
	if len(applied) != 1 || applied[0] != "restart" {
		t.Errorf("applied = %v, want restart", applied)
	}
}

func TestWatchRunningSelectsStart(t *testing.T) {
	reconciler, world := newTestReconciler(t, Options{})

	outcome := reconciler.Watch(context.Background(), testProject, "running", WatchParams{})
	if outcome.Result != ResultSuccess {
		t.Fatalf("result %v, comment %q", outcome.Result, outcome.Comment)
	}
	if outcome.Comment != "Service was started." {
		t.Errorf("comment = %q", outcome.Comment)
	}
	applied := world.runtime.applied()
	if len(applied) != 1 || applied[0] != "start" {
		t.Errorf("applied = %v, want start", applied)
	}
}

func TestWatchInstalledStopsThenRecreates(t *testing.T) {
	reconciler, world := newTestReconciler(t, Options{})
	world.runtime.running = true

	outcome := reconciler.Watch(context.Background(), testProject, "installed", WatchParams{
		Install: DefaultInstallOptions(),
	})
	if outcome.Result != ResultSuccess {
		t.Fatalf("result %v, comment %q", outcome.Result, outcome.Comment)
	}
	if outcome.Comment != "Composition was recreated." {
		t.Errorf("comment = %q", outcome.Comment)
	}
	applied := world.runtime.applied()
	want := []string{"stop", "install(force=true)"}
	if len(applied) != len(want) || applied[0] != want[0] || applied[1] != want[1] {
		t.Errorf("applied = %v, want %v", applied, want)
	}
}

func TestWatchInstalledNotRunningSkipsStop(t *testing.T) {
	reconciler, world := newTestReconciler(t, Options{})

	outcome := reconciler.Watch(context.Background(), testProject, "installed", WatchParams{})
	if outcome.Result != ResultSuccess {
		t.Fatalf("result %v, comment %q", outcome.Result, outcome.Comment)
	}
	applied := world.runtime.applied()
	if len(applied) != 1 || applied[0] != "install(force=true)" {
		t.Errorf("applied = %v, want forced install only", applied)
	}
}

func TestWatchUnknownTarget(t *testing.T) {
	reconciler, world := newTestReconciler(t, Options{})

	outcome := reconciler.Watch(context.Background(), testProject, "enabled", WatchParams{})
	if outcome.Result != ResultFailed {
		t.Fatalf("result %v, comment %q", outcome.Result, outcome.Comment)
	}
	if !strings.Contains(outcome.Comment, "enabled") {
		t.Errorf("comment %q does not name the target", outcome.Comment)
	}
	if applied := world.runtime.applied(); len(applied) != 0 {
		t.Errorf("applied = %v", applied)
	}
}

func TestWatchEvaluatePredicts(t *testing.T) {
	reconciler, world := newTestReconciler(t, Options{Evaluate: true})
	world.runtime.running = true

	outcome := reconciler.Watch(context.Background(), testProject, "installed", WatchParams{})
	if outcome.Result != ResultUnknown || !outcome.Changed {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.Comment != "Composition is set to be recreated." {
		t.Errorf("comment = %q", outcome.Comment)
	}
	if applied := world.runtime.applied(); len(applied) != 0 {
		t.Errorf("applied under evaluation: %v", applied)
	}
}

func TestWatchDeadTimeout(t *testing.T) {
	reconciler, world := newTestReconciler(t, Options{})
	world.runtime.running = true
	world.runtime.stuck["stop"] = true

	outcome := reconciler.Watch(context.Background(), testProject, "dead", WatchParams{})
	if outcome.Result != ResultFailed {
		t.Fatalf("result %v, comment %q", outcome.Result, outcome.Comment)
	}
	if !strings.Contains(outcome.Comment, "still not dead") {
		t.Errorf("comment = %q", outcome.Comment)
	}
	if outcome.Changed || len(outcome.Changes) != 0 {
		t.Errorf("timed-out watch recorded changes: %+v", outcome)
	}
}
