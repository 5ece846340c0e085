// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package ticket

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/telescreen-dev/telescreen/gossip"
	"github.com/telescreen-dev/telescreen/lib/codec"
)

// ShortCodeLength is the length of a registry short code. Join input of
// exactly this length is treated as a code; anything else is parsed as
// full ticket text. Tickets are always far longer (the topic alone
// encodes to 52 characters).
const ShortCodeLength = 8

// encoding is unpadded standard base32, the ticket text alphabet.
var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// PeerAddr lists one peer and its direct dial addresses.
type PeerAddr struct {
	ID    gossip.PeerID `cbor:"id"`
	Addrs []string      `cbor:"addrs"`
}

// Ticket is the bootstrap descriptor for a room: the topic to join and
// the peers a newcomer can dial to reach the mesh.
type Ticket struct {
	Topic gossip.TopicID `cbor:"topic"`
	Peers []PeerAddr     `cbor:"peers"`
}

// Encode returns the portable text form: canonical CBOR, base32,
// lowercased for reading aloud.
func (t Ticket) Encode() (string, error) {
	encoded, err := codec.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("ticket: encode: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(encoded)), nil
}

// Parse decodes ticket text in either case, tolerating surrounding
// whitespace from copy-paste.
func Parse(text string) (Ticket, error) {
	decoded, err := encoding.DecodeString(strings.ToUpper(strings.TrimSpace(text)))
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: invalid ticket text: %w", err)
	}
	var t Ticket
	if err := codec.Unmarshal(decoded, &t); err != nil {
		return Ticket{}, fmt.Errorf("ticket: invalid ticket payload: %w", err)
	}
	if t.Topic.IsZero() {
		return Ticket{}, fmt.Errorf("ticket: missing topic")
	}
	return t, nil
}

// ShortCode derives the registry code for this ticket: the leading
// characters of the base32 BLAKE3 digest of the canonical encoding.
// The encoding is deterministic, so every holder of the same ticket
// derives the same code.
func (t Ticket) ShortCode() (string, error) {
	encoded, err := codec.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("ticket: encode: %w", err)
	}
	digest := blake3.Sum256(encoded)
	code := strings.ToLower(encoding.EncodeToString(digest[:]))
	return code[:ShortCodeLength], nil
}

// IsShortCode reports whether join input looks like a registry code
// rather than full ticket text.
func IsShortCode(text string) bool {
	return len(strings.TrimSpace(text)) == ShortCodeLength
}
