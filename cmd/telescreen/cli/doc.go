// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the telescreen
// binary.
//
// The central type is [Command], which represents a named subcommand
// with optional nested [Command.Subcommands], a [pflag.FlagSet]
// factory, and a Run function. Commands are assembled into a tree in
// cmd/telescreen/commands and dispatched via [Command.Execute], which
// handles flag parsing, subcommand routing, and structured help output
// with examples. The context handed to Execute is canceled on SIGINT
// and SIGTERM, so a Run function that honors its context gives the
// user a clean Ctrl-C teardown for free.
//
// When a user types an unknown subcommand or flag, the framework
// computes Levenshtein edit distance against all known names and
// suggests the closest match (threshold: distance <= 3).
//
// [ExitError] lets a command choose its exit code after printing its
// own output; main exits with that code without adding an error line.
// Admission rejection (the room already has two participants) uses
// code 2 to stay distinguishable from generic failures.
package cli
