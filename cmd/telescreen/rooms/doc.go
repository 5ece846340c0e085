// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package rooms implements the "telescreen rooms" subcommand over the
// saved-room registry. The plain form prints a table; --pick opens a
// bubbletea list where Enter joins the highlighted room. Codes in the
// registry resolve only on this machine, so everything here reads
// local state and the picker hands off to the join runner.
package rooms
