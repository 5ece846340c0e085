// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package gossip

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Frame type constants for the link wire format. Each frame is a
// 5-byte header (1 byte type + 4 byte big-endian payload length)
// followed by a CBOR payload.
const (
	// frameTypeHello opens a link. Both sides send one immediately
	// after connecting; payload is helloPayload. A topic mismatch
	// closes the link.
	frameTypeHello byte = 0x01

	// frameTypeData carries one flooded message. Payload is
	// dataPayload.
	frameTypeData byte = 0x02

	// frameTypeOffer carries an SDP offer for the WebRTC upgrade,
	// sent by the lexicographically smaller peer. Payload is
	// signalPayload.
	frameTypeOffer byte = 0x03

	// frameTypeAnswer carries the SDP answer back. Payload is
	// signalPayload.
	frameTypeAnswer byte = 0x04
)

// frameHeaderLength is the fixed size of a frame header: 1 byte type
// + 4 bytes payload length.
const frameHeaderLength = 5

// maxFramePayload bounds a single frame. A raw uncompressed 320x240
// video frame is around 230 KB; 16 MB leaves room without letting a
// corrupt length field allocate the machine away.
const maxFramePayload = 16 * 1024 * 1024

// frame is a single link frame.
type frame struct {
	Type    byte
	Payload []byte
}

// writeFrame writes a framed message to w. The frame format is:
// [1 byte type] [4 bytes payload length, big-endian uint32] [payload].
func writeFrame(w io.Writer, f frame) error {
	var header [frameHeaderLength]byte
	header[0] = f.Type
	binary.BigEndian.PutUint32(header[1:5], uint32(len(f.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// readFrame reads one framed message from r. Returns an error if the
// stream is malformed or the payload exceeds maxFramePayload.
func readFrame(r io.Reader) (frame, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return frame{}, fmt.Errorf("read frame header: %w", err)
	}
	payloadLength := binary.BigEndian.Uint32(header[1:5])
	if payloadLength > maxFramePayload {
		return frame{}, fmt.Errorf("payload length %d exceeds maximum %d", payloadLength, maxFramePayload)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return frame{}, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return frame{Type: header[0], Payload: payload}, nil
}

// helloPayload is the link handshake: who is connecting and to which
// topic.
type helloPayload struct {
	Peer  PeerID  `cbor:"peer"`
	Topic TopicID `cbor:"topic"`
}

// dataPayload is one flooded message. ID deduplicates relayed copies;
// Origin survives relaying so receivers always know the original
// sender.
type dataPayload struct {
	ID     uuid.UUID `cbor:"id"`
	Origin PeerID    `cbor:"origin"`
	Body   []byte    `cbor:"body"`
}

// signalPayload carries SDP for the WebRTC upgrade, both directions.
type signalPayload struct {
	SDP string `cbor:"sdp"`
}

// fragmentPayload is one piece of a message crossing the WebRTC data
// channel, which caps individual messages well below a video frame.
// Chunks reassemble by (ID, Index); a message missing chunks past the
// reassembly deadline is dropped whole.
type fragmentPayload struct {
	ID    uuid.UUID `cbor:"id"`
	Index uint16    `cbor:"index"`
	Count uint16    `cbor:"count"`
	Chunk []byte    `cbor:"chunk"`
}

// seenCache is a fixed-capacity set of recently witnessed message
// IDs, evicting oldest-first. Callers synchronize access.
type seenCache struct {
	capacity int
	order    []uuid.UUID
	next     int
	members  map[uuid.UUID]struct{}
}

func newSeenCache(capacity int) *seenCache {
	return &seenCache{
		capacity: capacity,
		members:  make(map[uuid.UUID]struct{}, capacity),
	}
}

// witness records id and reports whether it was new. A previously
// seen id returns false, which is the signal to drop a flooded copy.
func (c *seenCache) witness(id uuid.UUID) bool {
	if _, ok := c.members[id]; ok {
		return false
	}
	if len(c.order) < c.capacity {
		c.order = append(c.order, id)
	} else {
		delete(c.members, c.order[c.next])
		c.order[c.next] = id
		c.next = (c.next + 1) % c.capacity
	}
	c.members[id] = struct{}{}
	return true
}
