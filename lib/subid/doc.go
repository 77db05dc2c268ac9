// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

// Package subid models user-namespace ID range remapping tables.
//
// A Map is an ordered list of disjoint (child start, parent start,
// length) ranges, the same shape the kernel exposes in
// /proc/<pid>/uid_map and that podman reports in inspect output under
// HostConfig.IDMappings. Translation is defined only for child IDs
// covered by some range; an uncovered ID is an error, never a silent
// identity mapping. The one exception is the empty Map, which is the
// explicit "no remapping" table and translates every ID to itself.
package subid
