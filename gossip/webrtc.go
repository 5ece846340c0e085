// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package gossip

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/telescreen-dev/telescreen/lib/clock"
	"github.com/telescreen-dev/telescreen/lib/codec"
)

const (
	// frameChannelLabel names the data channel carrying frames.
	frameChannelLabel = "frames"

	// iceGatherTimeout bounds vanilla ICE candidate gathering.
	iceGatherTimeout = 10 * time.Second

	// answerTimeout bounds the wait for the remote SDP answer over
	// the TCP link.
	answerTimeout = 15 * time.Second

	// fragmentChunkSize is the data carried per fragment. SCTP
	// message size support varies across implementations; staying
	// under 16 KB including CBOR overhead is universally safe.
	fragmentChunkSize = 15 * 1024

	// reassemblyDeadline is how long an incomplete message waits for
	// its remaining fragments. With zero retransmits a missing
	// fragment never arrives; two seconds of frames have long
	// superseded the message anyway.
	reassemblyDeadline = 2 * time.Second
)

// offerUpgrade runs the offering side of the WebRTC upgrade. Called
// on the lexicographically smaller peer of every new link unless the
// mode is tcp. Failure keeps the TCP path.
func (n *Node) offerUpgrade(link *peerLink) {
	if err := n.runOffer(link); err != nil {
		if n.mode == ModeWebRTC {
			n.logger.Error("webrtc upgrade failed",
				"remote", link.id.Short(),
				"error", err)
		} else {
			n.logger.Info("webrtc upgrade failed, staying on tcp",
				"remote", link.id.Short(),
				"error", err)
		}
	}
}

func (n *Node) runOffer(link *peerLink) error {
	pc, err := n.newPeerConnection()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	if !link.attachResource(pc) {
		return fmt.Errorf("link closed before upgrade")
	}

	// Unordered, zero retransmits: datagram semantics. A lost video
	// frame must never delay the frames behind it.
	ordered := false
	maxRetransmits := uint16(0)
	dc, err := pc.CreateDataChannel(frameChannelLabel, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
	})
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	n.bindChannel(link, dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	// Vanilla ICE: wait for the complete candidate set so the SDP is
	// self-contained and no trickle channel is needed.
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		return fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-link.stopped:
		return fmt.Errorf("link closed during ICE gathering")
	case <-n.closed:
		return net.ErrClosed
	}

	encoded, err := codec.Marshal(signalPayload{SDP: pc.LocalDescription().SDP})
	if err != nil {
		return fmt.Errorf("encode offer: %w", err)
	}
	if err := link.write(frameTypeOffer, encoded); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}

	var answer signalPayload
	select {
	case answer = <-link.answers:
	case <-time.After(answerTimeout):
		return fmt.Errorf("no answer within %s", answerTimeout)
	case <-link.stopped:
		return fmt.Errorf("link closed awaiting answer")
	case <-n.closed:
		return net.ErrClosed
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	// The channel's OnOpen installs it as the preferred path once ICE
	// connects.
	return nil
}

// answerUpgrade runs the answering side when an offer frame arrives
// over the TCP link.
func (n *Node) answerUpgrade(link *peerLink, offer signalPayload) {
	if err := n.runAnswer(link, offer); err != nil {
		if n.mode == ModeWebRTC {
			n.logger.Error("webrtc answer failed",
				"remote", link.id.Short(),
				"error", err)
		} else {
			n.logger.Info("webrtc answer failed, staying on tcp",
				"remote", link.id.Short(),
				"error", err)
		}
	}
}

func (n *Node) runAnswer(link *peerLink, offer signalPayload) error {
	if n.mode == ModeTCP {
		return fmt.Errorf("upgrade refused in tcp mode")
	}
	pc, err := n.newPeerConnection()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	if !link.attachResource(pc) {
		return fmt.Errorf("link closed before upgrade")
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != frameChannelLabel {
			dc.Close()
			return
		}
		n.bindChannel(link, dc)
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		return fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-link.stopped:
		return fmt.Errorf("link closed during ICE gathering")
	case <-n.closed:
		return net.ErrClosed
	}

	encoded, err := codec.Marshal(signalPayload{SDP: pc.LocalDescription().SDP})
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	if err := link.write(frameTypeAnswer, encoded); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	return nil
}

// newPeerConnection builds a pion PeerConnection. Loopback candidates
// are enabled so same-machine sessions and tests work where loopback
// is the only interface.
func (n *Node) newPeerConnection() (*webrtc.PeerConnection, error) {
	var servers []webrtc.ICEServer
	if len(n.stunServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: n.stunServers})
	}
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
}

// bindChannel wires a data channel's callbacks to the link: open
// installs it as the preferred data path, close falls back to TCP,
// and inbound messages flow through reassembly into the flood router.
func (n *Node) bindChannel(link *peerLink, dc *webrtc.DataChannel) {
	channel := &dataChannel{
		dc:    dc,
		frags: newReassembler(n.clock),
	}
	dc.OnOpen(func() {
		channel.opened.Store(true)
		link.setChannel(channel)
		n.logger.Info("webrtc data channel open", "remote", link.id.Short())
	})
	dc.OnClose(func() {
		channel.opened.Store(false)
		link.clearChannel(channel)
		n.logger.Info("webrtc data channel closed", "remote", link.id.Short())
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if complete, ok := channel.frags.accept(msg.Data); ok {
			n.ingest(complete, link)
		}
	})
}

// dataChannel is an open WebRTC data channel carrying fragmented
// data frames.
type dataChannel struct {
	dc     *webrtc.DataChannel
	opened atomic.Bool
	frags  *reassembler
}

func (c *dataChannel) ready() bool {
	return c.opened.Load()
}

// send fragments one encoded data frame across the channel. Every
// message is wrapped in fragmentPayload, single-chunk messages
// included, so the receive path has one shape.
func (c *dataChannel) send(encoded []byte) error {
	count := (len(encoded) + fragmentChunkSize - 1) / fragmentChunkSize
	if count == 0 {
		count = 1
	}
	if count > 0xFFFF {
		return fmt.Errorf("payload of %d bytes exceeds fragment limit", len(encoded))
	}
	id := uuid.New()
	for index := 0; index < count; index++ {
		start := index * fragmentChunkSize
		end := min(start+fragmentChunkSize, len(encoded))
		chunk, err := codec.Marshal(fragmentPayload{
			ID:    id,
			Index: uint16(index),
			Count: uint16(count),
			Chunk: encoded[start:end],
		})
		if err != nil {
			return fmt.Errorf("encode fragment: %w", err)
		}
		if err := c.dc.Send(chunk); err != nil {
			return fmt.Errorf("send fragment %d/%d: %w", index+1, count, err)
		}
	}
	return nil
}

// reassembler rebuilds messages from fragments arriving in any order.
// Incomplete messages past their deadline are swept on the next
// accept; with zero retransmits their missing pieces are gone.
type reassembler struct {
	clock   clock.Clock
	pending map[uuid.UUID]*pendingMessage
}

type pendingMessage struct {
	chunks   [][]byte
	received int
	size     int
	deadline time.Time
}

func newReassembler(clk clock.Clock) *reassembler {
	return &reassembler{
		clock:   clk,
		pending: make(map[uuid.UUID]*pendingMessage),
	}
}

// accept consumes one raw channel message. Returns the reassembled
// payload when this fragment completes a message. Malformed
// fragments are dropped. pion serializes OnMessage callbacks per
// channel, so accept needs no locking.
func (r *reassembler) accept(raw []byte) ([]byte, bool) {
	var fragment fragmentPayload
	if err := codec.Unmarshal(raw, &fragment); err != nil {
		return nil, false
	}
	if fragment.Count == 0 || int(fragment.Index) >= int(fragment.Count) {
		return nil, false
	}
	if fragment.Count == 1 {
		return fragment.Chunk, true
	}

	now := r.clock.Now()
	r.sweep(now)

	message := r.pending[fragment.ID]
	if message == nil || len(message.chunks) != int(fragment.Count) {
		message = &pendingMessage{
			chunks:   make([][]byte, fragment.Count),
			deadline: now.Add(reassemblyDeadline),
		}
		r.pending[fragment.ID] = message
	}
	if message.chunks[fragment.Index] == nil {
		message.chunks[fragment.Index] = fragment.Chunk
		message.received++
		message.size += len(fragment.Chunk)
	}
	if message.received < len(message.chunks) {
		return nil, false
	}

	delete(r.pending, fragment.ID)
	complete := make([]byte, 0, message.size)
	for _, chunk := range message.chunks {
		complete = append(complete, chunk...)
	}
	return complete, true
}

func (r *reassembler) sweep(now time.Time) {
	for id, message := range r.pending {
		if message.deadline.Before(now) {
			delete(r.pending, id)
		}
	}
}
