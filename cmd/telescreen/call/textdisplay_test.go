// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"bytes"
	"strings"
	"testing"

	"github.com/telescreen-dev/telescreen/gossip"
)

func TestTextDisplayShowChat(t *testing.T) {
	t.Parallel()

	peer, err := gossip.NewPeerID()
	if err != nil {
		t.Fatalf("NewPeerID: %v", err)
	}

	var buffer bytes.Buffer
	display := NewTextDisplay(&buffer)
	display.ShowChat(peer, "doubleplusgood")

	output := buffer.String()
	if !strings.Contains(output, peer.Short()) {
		t.Errorf("output %q missing sender short ID %q", output, peer.Short())
	}
	if !strings.Contains(output, "doubleplusgood") {
		t.Errorf("output %q missing the message", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("output %q should end with a newline", output)
	}
}

func TestTextDisplaySetPeer(t *testing.T) {
	t.Parallel()

	peer, err := gossip.NewPeerID()
	if err != nil {
		t.Fatalf("NewPeerID: %v", err)
	}

	var buffer bytes.Buffer
	display := NewTextDisplay(&buffer)
	display.SetPeer(peer)

	if !strings.Contains(buffer.String(), peer.Short()) {
		t.Errorf("notice %q missing peer short ID %q", buffer.String(), peer.Short())
	}
}

func TestTextDisplayDropsFrames(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	display := NewTextDisplay(&buffer)

	if err := display.ShowFrame(make([]byte, 12), 2, 2); err != nil {
		t.Fatalf("ShowFrame: %v", err)
	}
	if buffer.Len() != 0 {
		t.Errorf("ShowFrame wrote %q, want nothing", buffer.String())
	}
}
