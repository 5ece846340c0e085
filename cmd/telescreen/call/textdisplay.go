// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"fmt"
	"io"
	"sync"

	"github.com/telescreen-dev/telescreen/gossip"
	"github.com/telescreen-dev/telescreen/session"
)

// TextDisplay satisfies the session display contract without touching
// the screen: chat lines and peer notices print as plain text, frames
// are dropped. The remote peer may well be transmitting video even
// though this side runs chat-only.
type TextDisplay struct {
	mu  sync.Mutex
	out io.Writer
}

var _ session.Display = (*TextDisplay)(nil)

// NewTextDisplay returns a display writing to out, normally stdout.
func NewTextDisplay(out io.Writer) *TextDisplay {
	return &TextDisplay{out: out}
}

// ShowFrame discards the frame.
func (d *TextDisplay) ShowFrame(pixels []byte, width, height int) error {
	return nil
}

// ShowChat prints one incoming line prefixed with the sender's short
// identity.
func (d *TextDisplay) ShowChat(from gossip.PeerID, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "%s> %s\n", from.Short(), text)
}

// SetPeer prints a connection notice.
func (d *TextDisplay) SetPeer(id gossip.PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "* connected to %s\n", id.Short())
}
