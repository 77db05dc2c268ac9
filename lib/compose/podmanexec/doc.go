// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

// Package podmanexec backs the compose collaborator interfaces with
// the real tools: podman, podman-compose, systemctl and loginctl, all
// driven as subprocesses.
//
// Rootless compositions run under their configured account; commands
// targeting a user manager are wrapped with sudo and the session
// environment (XDG_RUNTIME_DIR, DBUS_SESSION_BUS_ADDRESS) the user
// manager expects. The [Runner] seam exists so everything above the
// actual exec calls stays testable without podman installed.
package podmanexec
