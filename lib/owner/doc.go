// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

// Package owner resolves logical file owners as seen from inside a
// composition's containers to host-visible numeric IDs.
//
// Ownership-aware file tooling layered on top of a rootless
// composition needs to chown paths so that a process inside the
// container sees the intended owner. With user-namespace remapping in
// play, the in-container ID and the host ID differ; the resolver
// composes up to two remapping tables (the container's own map and
// the account's subordinate-ID map) to bridge them. The file
// operations themselves are out of scope; this package only answers
// "which host UID/GID is container UID/GID N".
package owner
