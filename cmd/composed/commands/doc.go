// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands defines the composed command tree: declarative
// composition states (installed, removed, running, dead, enabled,
// disabled), lingering management, bare unit states, the watch
// dispatcher, and owner resolution.
//
// Every state command converges the system toward the named state and
// reports a structured outcome; --check predicts without applying and
// --json emits the outcome for machine consumption. A state that could
// not be reached exits non-zero.
package commands
