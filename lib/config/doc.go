// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the spool agent's configuration.
//
// Configuration is loaded from a single file named by either the
// SPOOL_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. Files ending in .json or .jsonc are read as JSON with
// comments and trailing commas; anything else is YAML.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${SPOOL_ROOT} (the storage directory), and
// ${VAR:-default} patterns are expanded. No other environment
// variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Storage, Upload, Intake,
//     Encryption, Agent and Features
//   - [Default] -- returns a Config with the preset defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// The resolution helpers turn the presets into the tuned values the
// storage and upload packages consume.
package config
