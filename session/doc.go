// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the two-party room protocol on top of the
// gossip substrate.
//
// Every broadcast payload is one CBOR envelope carrying a tagged body:
// about-me, video-frame, room-full, keep-alive, or chat. The substrate
// is lossy and unordered, so the protocol leans on repetition instead
// of acknowledgment: rejections are sent three times, keep-alives
// forever, and a dropped video frame is superseded by the next tick.
//
// The Controller is the admission state machine: it classifies inbound
// envelopes per peer, enforces the one-remote-peer cap, and hands
// decoded frames and chat lines to the display loop. Rejected is
// terminal, and there is no liveness eviction: a silent peer keeps its
// seat until the process exits.
//
// Call assembles a full session: capture tick, change gating, payload
// encoding, keep-alive heartbeat, chat input, and the controller, all
// under one errgroup.
package session
