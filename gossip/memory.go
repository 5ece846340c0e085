// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package gossip

import (
	"context"
	"net"
	"sort"
	"sync"
)

// MemoryHub connects MemoryBus instances in-process with the same
// delivery semantics as the network: every broadcast reaches every
// member including the sender, and a member's full buffer drops its
// oldest event. Tests run session logic against it without sockets.
type MemoryHub struct {
	mu    sync.Mutex
	buses map[PeerID]*MemoryBus
}

// NewMemoryHub returns an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{buses: make(map[PeerID]*MemoryBus)}
}

// Join adds a member with the given identity and returns its bus.
// Joining an identity twice replaces the previous bus.
func (h *MemoryHub) Join(id PeerID) *MemoryBus {
	bus := &MemoryBus{
		hub:    h,
		id:     id,
		events: make(chan Event, defaultEventBuffer),
		closed: make(chan struct{}),
	}
	h.mu.Lock()
	h.buses[id] = bus
	h.mu.Unlock()
	return bus
}

// members returns the current buses in identity order, so delivery
// order is deterministic in tests.
func (h *MemoryHub) members() []*MemoryBus {
	h.mu.Lock()
	defer h.mu.Unlock()
	buses := make([]*MemoryBus, 0, len(h.buses))
	for _, bus := range h.buses {
		buses = append(buses, bus)
	}
	sort.Slice(buses, func(i, j int) bool { return buses[i].id.Less(buses[j].id) })
	return buses
}

func (h *MemoryHub) leave(id PeerID, bus *MemoryBus) {
	h.mu.Lock()
	if current, ok := h.buses[id]; ok && current == bus {
		delete(h.buses, id)
	}
	h.mu.Unlock()
}

// MemoryBus is one hub member. It implements Bus.
type MemoryBus struct {
	hub    *MemoryHub
	id     PeerID
	events chan Event

	closed    chan struct{}
	closeOnce sync.Once
}

var _ Bus = (*MemoryBus)(nil)

// ID returns the member identity.
func (b *MemoryBus) ID() PeerID { return b.id }

// Broadcast delivers payload to every hub member, sender included.
func (b *MemoryBus) Broadcast(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-b.closed:
		return net.ErrClosed
	default:
	}
	event := Event{Origin: b.id, Payload: payload}
	for _, member := range b.hub.members() {
		member.deliver(event)
	}
	return nil
}

// Events returns the delivery channel. Never closed.
func (b *MemoryBus) Events() <-chan Event { return b.events }

// Close removes the member from the hub.
func (b *MemoryBus) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
		b.hub.leave(b.id, b)
	})
	return nil
}

func (b *MemoryBus) deliver(event Event) {
	select {
	case <-b.closed:
		return
	default:
	}
	select {
	case b.events <- event:
		return
	default:
	}
	select {
	case <-b.events:
	default:
	}
	select {
	case b.events <- event:
	default:
	}
}
