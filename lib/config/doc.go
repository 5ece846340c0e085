// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the
// telescreen binary.
//
// Configuration is resolved in a fixed order: an explicit path (the
// --config flag) wins, then the TELESCREEN_CONFIG environment
// variable, then the per-user file at
// <UserConfigDir>/telescreen/config.yaml when it exists, and finally
// the compiled-in defaults from [Default]. A file that is named but
// missing is an error; the per-user file is the only location that may
// be silently absent.
//
// Unknown keys in a config file are errors. A typo like
// keepalive_secons fails loudly instead of silently running with the
// default cadence.
//
// Durations are explicit-unit integer fields (keepalive_seconds,
// open_backoff_ms) rather than parsed duration strings. Accessors such
// as [Config.KeepaliveInterval] return them as time.Duration.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values; command-line flags
// layered on top by the CLI are the only other override.
//
// Key exports:
//
//   - [Config] -- master struct with Log, Transport, Session, Capture,
//     Video, Registry
//   - [Default] -- returns a Config with the stock settings
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other telescreen packages.
package config
