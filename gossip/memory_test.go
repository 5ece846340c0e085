// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package gossip

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/telescreen-dev/telescreen/lib/testutil"
)

func mustPeerID(t *testing.T) PeerID {
	t.Helper()
	id, err := NewPeerID()
	if err != nil {
		t.Fatalf("NewPeerID: %v", err)
	}
	return id
}

func TestMemoryBusBroadcast(t *testing.T) {
	t.Parallel()

	hub := NewMemoryHub()
	alpha := hub.Join(mustPeerID(t))
	beta := hub.Join(mustPeerID(t))

	payload := []byte("hello room")
	if err := alpha.Broadcast(context.Background(), payload); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	echo := testutil.RequireReceive(t, alpha.Events(), time.Second, "waiting for self echo")
	if echo.Origin != alpha.ID() {
		t.Errorf("echo origin = %s, want %s", echo.Origin.Short(), alpha.ID().Short())
	}
	if !bytes.Equal(echo.Payload, payload) {
		t.Error("echo payload mismatch")
	}

	received := testutil.RequireReceive(t, beta.Events(), time.Second, "waiting for delivery")
	if received.Origin != alpha.ID() {
		t.Errorf("origin = %s, want %s", received.Origin.Short(), alpha.ID().Short())
	}
	if !bytes.Equal(received.Payload, payload) {
		t.Error("payload mismatch")
	}
}

func TestMemoryBusOverflowDropsOldest(t *testing.T) {
	t.Parallel()

	hub := NewMemoryHub()
	bus := hub.Join(mustPeerID(t))

	// One past the buffer. Delivery is synchronous, so exactly the
	// first event is displaced.
	for i := 0; i < defaultEventBuffer+1; i++ {
		if err := bus.Broadcast(context.Background(), []byte{byte(i)}); err != nil {
			t.Fatalf("Broadcast %d: %v", i, err)
		}
	}

	var got []byte
	for {
		select {
		case event := <-bus.Events():
			got = append(got, event.Payload[0])
			continue
		default:
		}
		break
	}
	if len(got) != defaultEventBuffer {
		t.Fatalf("drained %d events, want %d", len(got), defaultEventBuffer)
	}
	if got[0] != 1 {
		t.Errorf("first surviving event = %d, want 1 (event 0 dropped)", got[0])
	}
	if last := got[len(got)-1]; last != defaultEventBuffer {
		t.Errorf("last event = %d, want %d", last, defaultEventBuffer)
	}
}

func TestMemoryBusClose(t *testing.T) {
	t.Parallel()

	hub := NewMemoryHub()
	alpha := hub.Join(mustPeerID(t))
	beta := hub.Join(mustPeerID(t))

	if err := alpha.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := alpha.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := alpha.Broadcast(context.Background(), []byte("late")); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Broadcast after Close = %v, want net.ErrClosed", err)
	}

	// Remaining members keep working, and nothing lands on the
	// departed bus.
	if err := beta.Broadcast(context.Background(), []byte("carry on")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	testutil.RequireReceive(t, beta.Events(), time.Second, "waiting for self echo")
	select {
	case event := <-alpha.Events():
		t.Errorf("closed bus received %q", event.Payload)
	default:
	}
}

func TestMemoryHubRejoinReplaces(t *testing.T) {
	t.Parallel()

	hub := NewMemoryHub()
	id := mustPeerID(t)
	stale := hub.Join(id)
	current := hub.Join(id)
	other := hub.Join(mustPeerID(t))

	if err := other.Broadcast(context.Background(), []byte("to the rejoined peer")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	received := testutil.RequireReceive(t, current.Events(), time.Second, "waiting for delivery")
	if received.Origin != other.ID() {
		t.Errorf("origin = %s, want %s", received.Origin.Short(), other.ID().Short())
	}
	select {
	case event := <-stale.Events():
		t.Errorf("replaced bus received %q", event.Payload)
	default:
	}
}
