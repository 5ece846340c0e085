// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"crypto/rand"
	"fmt"

	"github.com/telescreen-dev/telescreen/gossip"
	"github.com/telescreen-dev/telescreen/lib/codec"
)

// Body kinds. The wire values are protocol constants.
const (
	// KindAboutMe announces presence when joining a room.
	KindAboutMe = "about-me"

	// KindVideoFrame carries one encoded video frame.
	KindVideoFrame = "video-frame"

	// KindRoomFull turns a third participant away.
	KindRoomFull = "room-full"

	// KindKeepAlive is the periodic heartbeat.
	KindKeepAlive = "keep-alive"

	// KindChat carries one chat line.
	KindChat = "chat"
)

// Body is the message union: a kind discriminator plus the variant
// fields, empty fields omitted on the wire.
type Body struct {
	// Kind is the message type: "about-me", "video-frame",
	// "room-full", "keep-alive", or "chat".
	Kind string `cbor:"kind"`

	// From is the sender's claimed identity, present on every kind.
	From gossip.PeerID `cbor:"from"`

	// FrameData is the encoded pixel payload (video-frame).
	FrameData []byte `cbor:"frame_data,omitempty"`

	// Width and Height are the frame dimensions in pixels
	// (video-frame).
	Width  int `cbor:"width,omitempty"`
	Height int `cbor:"height,omitempty"`

	// Target names the peer being turned away (room-full).
	Target *gossip.PeerID `cbor:"target,omitempty"`

	// Text is the chat line (chat).
	Text string `cbor:"text,omitempty"`
}

// Envelope is the broadcast message unit.
type Envelope struct {
	Body Body `cbor:"body"`

	// Nonce is 16 random bytes drawn fresh per message. It is carried
	// on the wire and ignored on receipt; reserved for replay
	// protection.
	Nonce [16]byte `cbor:"nonce"`
}

// Seal wraps body in an envelope with a fresh nonce and encodes it
// for broadcast.
func Seal(body Body) ([]byte, error) {
	env := Envelope{Body: body}
	if _, err := rand.Read(env.Nonce[:]); err != nil {
		return nil, fmt.Errorf("session: draw nonce: %w", err)
	}
	encoded, err := codec.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("session: encode envelope: %w", err)
	}
	return encoded, nil
}

// OpenEnvelope decodes a received broadcast payload.
func OpenEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("session: decode envelope: %w", err)
	}
	if env.Body.Kind == "" {
		return Envelope{}, fmt.Errorf("session: envelope missing kind")
	}
	return env, nil
}
