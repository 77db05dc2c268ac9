// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"strings"
	"testing"
)

func TestUnitRunning(t *testing.T) {
	reconciler, world := newTestReconciler(t, Options{})

	outcome := reconciler.UnitRunning(context.Background(), "caddy.service", "web", 0)
	if outcome.Result != ResultSuccess {
		t.Fatalf("result %v, comment %q", outcome.Result, outcome.Comment)
	}
	if len(world.units.calls) != 1 || world.units.calls[0] != "start(caddy.service,user=web)" {
		t.Errorf("calls = %v", world.units.calls)
	}

	again := reconciler.UnitRunning(context.Background(), "caddy.service", "web", 0)
	if again.Result != ResultAlreadySatisfied {
		t.Fatalf("second call: %+v", again)
	}
}

func TestUnitDeadTimeout(t *testing.T) {
	reconciler, world := newTestReconciler(t, Options{})
	world.units.running = true
	world.units.stuck["stop"] = true

	outcome := reconciler.UnitDead(context.Background(), "caddy.service", "", 0)
	if outcome.Result != ResultFailed {
		t.Fatalf("result %v, comment %q", outcome.Result, outcome.Comment)
	}
	if !strings.Contains(outcome.Comment, "still running") {
		t.Errorf("comment = %q", outcome.Comment)
	}
	if outcome.Changed {
		t.Error("timed-out stop reported a change")
	}
}

func TestUnitEnabledDisabled(t *testing.T) {
	reconciler, world := newTestReconciler(t, Options{})

	outcome := reconciler.UnitEnabled(context.Background(), "caddy.service", "")
	if outcome.Result != ResultSuccess {
		t.Fatalf("UnitEnabled: %+v", outcome)
	}
	if !world.units.enabled {
		t.Fatal("enable not applied")
	}

	outcome = reconciler.UnitDisabled(context.Background(), "caddy.service", "")
	if outcome.Result != ResultSuccess {
		t.Fatalf("UnitDisabled: %+v", outcome)
	}
	if world.units.enabled {
		t.Fatal("disable not applied")
	}
}

func TestUnitApplyFalseEscalates(t *testing.T) {
	reconciler, world := newTestReconciler(t, Options{})
	world.units.failApply["start"] = true

	outcome := reconciler.UnitRunning(context.Background(), "caddy.service", "", 0)
	if outcome.Result != ResultFailed {
		t.Fatalf("result %v, comment %q", outcome.Result, outcome.Comment)
	}
	if !strings.Contains(outcome.Comment, "this should not happen") {
		t.Errorf("comment = %q", outcome.Comment)
	}
}
