// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for composed.
//
// Configuration resolves in three layers: built-in defaults, the file
// named by --config or the COMPOSED_CONFIG environment variable, and
// finally COMPOSED_* environment overrides. A missing file is not an
// error; the defaults alone describe a working setup rooted at
// /opt/containers.
//
// This package depends on no other composed packages.
package config
