// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package gossip is the best-effort broadcast substrate sessions run
// on. A Node joins exactly one topic, links to peers over TCP, and
// floods every broadcast to all links; message IDs and a bounded seen
// cache stop flood loops. Delivery is lossy and unordered on purpose:
// the session layer transmits self-contained frames and the newest
// one always wins, so nothing here retransmits, acknowledges, or
// sequences.
//
// Broadcasts loop back to the sender as ordinary events. Consumers
// that do not want their own traffic filter on Event.Origin.
//
// Where both ends allow it, a linked pair upgrades the data path to a
// WebRTC data channel configured unordered with zero retransmits, the
// closest thing to UDP datagrams that traverses NATs. The TCP link
// stays for signaling and as the fallback path. Frames larger than a
// data channel message are fragmented and reassembled with a short
// deadline; incomplete messages are dropped whole.
//
// The Bus interface abstracts the substrate so session logic can run
// against an in-memory hub in tests.
package gossip
