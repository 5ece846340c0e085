// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package gossip

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// idLength is the byte length of peer and topic identifiers.
const idLength = 32

// PeerID identifies one node for the lifetime of a session. IDs are
// ephemeral: a fresh random identity is drawn at every start, carries
// no key material, and is never persisted except inside tickets.
type PeerID [idLength]byte

// NewPeerID returns a cryptographically random identity.
func NewPeerID() (PeerID, error) {
	var id PeerID
	if _, err := io.ReadFull(rand.Reader, id[:]); err != nil {
		return PeerID{}, fmt.Errorf("generate peer id: %w", err)
	}
	return id, nil
}

// String returns the full lowercase hex form.
func (id PeerID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns a 10-character hex prefix for logs and status lines.
func (id PeerID) Short() string {
	return id.String()[:10]
}

// IsZero reports whether the identity is unset.
func (id PeerID) IsZero() bool {
	return id == PeerID{}
}

// Less orders identities lexicographically. The smaller peer on a
// link is the canonical WebRTC offerer, which keeps the two ends from
// glaring at each other with simultaneous offers.
func (id PeerID) Less(other PeerID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// MarshalText implements encoding.TextMarshaler so identities encode
// as hex text in CBOR and YAML.
func (id PeerID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *PeerID) UnmarshalText(text []byte) error {
	decoded, err := decodeIDText("peer id", text)
	if err != nil {
		return err
	}
	copy(id[:], decoded)
	return nil
}

// TopicID identifies one room. Every node in a room joins the same
// topic; links whose hello names a different topic are refused.
type TopicID [idLength]byte

// NewTopicID returns a cryptographically random topic, drawn once
// when a room is opened and shared through its ticket.
func NewTopicID() (TopicID, error) {
	var topic TopicID
	if _, err := io.ReadFull(rand.Reader, topic[:]); err != nil {
		return TopicID{}, fmt.Errorf("generate topic id: %w", err)
	}
	return topic, nil
}

// String returns the full lowercase hex form.
func (t TopicID) String() string {
	return hex.EncodeToString(t[:])
}

// Short returns a 10-character hex prefix for logs.
func (t TopicID) Short() string {
	return t.String()[:10]
}

// IsZero reports whether the topic is unset.
func (t TopicID) IsZero() bool {
	return t == TopicID{}
}

// MarshalText implements encoding.TextMarshaler.
func (t TopicID) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TopicID) UnmarshalText(text []byte) error {
	decoded, err := decodeIDText("topic id", text)
	if err != nil {
		return err
	}
	copy(t[:], decoded)
	return nil
}

func decodeIDText(kind string, text []byte) ([]byte, error) {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return nil, fmt.Errorf("decode %s %q: %w", kind, text, err)
	}
	if len(decoded) != idLength {
		return nil, fmt.Errorf("decode %s: got %d bytes, want %d", kind, len(decoded), idLength)
	}
	return decoded, nil
}
