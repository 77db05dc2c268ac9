// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

// Package compose defines the contract between the state reconciler
// and the external collaborators it drives: the compose runtime
// (podman-compose and the unit files it generates), the process
// supervisor (systemctl), and the account manager (user lookup and
// loginctl lingering).
//
// The reconciler in lib/state and the resolver in lib/owner depend
// only on the interfaces here. The subprocess-backed implementation
// lives in the podmanexec subpackage; tests plug in hand-written
// fakes.
package compose
