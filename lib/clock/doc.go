// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the convergence polling loops.
//
// Production code injects Real(); tests inject Fake() so that timeout
// behavior can be exercised without real delays. Every function that
// would otherwise call time.Now or time.Sleep accepts a Clock (or is a
// method on a struct carrying one).
package clock
