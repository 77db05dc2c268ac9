// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

// Package state implements the convergence engine for container
// compositions managed through generated supervisor units.
//
// Every operation follows the same protocol: probe current reality,
// short-circuit when the target state already holds, predict instead
// of acting in evaluation mode, apply the transition through the
// external collaborators, and verify convergence — polling with a
// bounded timeout where the effect is asynchronous. Faults never
// escape an operation; they are folded into a failed Outcome at the
// boundary.
//
// State is call-scoped: each operation probes fresh and discards
// everything at return. Concurrent convergence attempts on the same
// composition from independent callers are not coordinated.
package state
