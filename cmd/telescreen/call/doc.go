// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package call implements the open and join subcommands. Both end in
// the same place: a gossip node, a frame source, and a display wired
// into a running session loop. Open creates the room and prints its
// credentials; join resolves a ticket or registry short code and
// bootstraps off the addresses it lists. The chat subcommands reuse
// the same runners with the text-only display and no capture.
package call
