// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Telescreen's standard CBOR encoding
// configuration.
//
// Everything that crosses a process boundary is CBOR: session
// envelopes broadcast on a room topic, gossip link frames, room
// tickets. This package provides the shared encoding and decoding
// modes so that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces
// identical bytes, which makes the ticket short code (a hash of the
// encoded ticket) stable across processes.
//
// For buffer-oriented operations (envelopes, tickets):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// Wire types carry `cbor` struct tags: they are only ever serialized
// as CBOR and never interact with JSON or CLI output. Types that also
// appear in human-facing output (the room registry file) use their
// serialization package's own tags (`yaml`) instead.
package codec
