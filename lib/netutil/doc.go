// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides small network helpers shared by the gossip
// layer and the CLI.
//
// [AdvertiseAddrs] expands a wildcard listener address into the
// concrete per-interface dial addresses a room ticket can carry.
// [IsExpectedCloseError] classifies link read errors so normal peer
// hangups are not logged as failures.
package netutil
