// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package gossip

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telescreen-dev/telescreen/lib/clock"
	"github.com/telescreen-dev/telescreen/lib/codec"
	"github.com/telescreen-dev/telescreen/lib/netutil"
)

// Mode selects the link data path.
type Mode string

const (
	// ModeAuto upgrades links to WebRTC data channels when possible
	// and quietly keeps TCP when the upgrade fails.
	ModeAuto Mode = "auto"

	// ModeTCP never attempts an upgrade.
	ModeTCP Mode = "tcp"

	// ModeWebRTC insists on the upgrade: a failed upgrade is reported
	// as an error, though the TCP path keeps carrying data so the
	// session does not strand.
	ModeWebRTC Mode = "webrtc"
)

// ParseMode validates a mode string from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModeTCP, ModeWebRTC:
		return Mode(s), nil
	case "":
		return ModeAuto, nil
	}
	return "", fmt.Errorf("unknown transport mode %q (want auto, tcp, or webrtc)", s)
}

// Event is one delivered broadcast.
type Event struct {
	// Origin is the peer that first sent the message, preserved
	// across relays. A node's own broadcasts come back with its own
	// ID here.
	Origin PeerID

	// Payload is the opaque broadcast body.
	Payload []byte
}

// Bus is the substrate surface the session layer consumes: broadcast
// out, events in. Node implements it over the network; MemoryBus
// implements it in-process for tests.
type Bus interface {
	Broadcast(ctx context.Context, payload []byte) error
	Events() <-chan Event
	Close() error
}

const (
	// defaultEventBuffer bounds undelivered events. Overflow drops
	// the oldest event, never the newest.
	defaultEventBuffer = 64

	// seenCacheCapacity bounds the flood dedup cache. At 30 frames
	// per second this covers half a minute of traffic, far beyond any
	// relay loop's lifetime.
	seenCacheCapacity = 1024

	// handshakeTimeout bounds the hello exchange on a fresh
	// connection.
	handshakeTimeout = 5 * time.Second

	// dialTimeout bounds one Connect attempt.
	dialTimeout = 5 * time.Second
)

// Config assembles a Node. Topic is required; everything else has a
// usable zero value.
type Config struct {
	// Topic is the room this node participates in.
	Topic TopicID

	// ListenAddr is the TCP listen address for inbound links.
	// Defaults to ":0" (all interfaces, kernel-assigned port).
	ListenAddr string

	// Mode selects the data path. Defaults to ModeAuto.
	Mode Mode

	// STUNServers are used during WebRTC upgrades. Empty means host
	// candidates only, which covers same-LAN sessions.
	STUNServers []string

	// EventBuffer overrides the delivered-event buffer size.
	EventBuffer int

	// Clock drives reassembly deadlines. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives link diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

// Node is one gossip participant: a listener, a set of peer links,
// and a flood router.
type Node struct {
	id          PeerID
	topic       TopicID
	mode        Mode
	stunServers []string
	clock       clock.Clock
	logger      *slog.Logger

	listener net.Listener
	events   chan Event

	mu    sync.Mutex
	peers map[PeerID]*peerLink
	seen  *seenCache

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Bus = (*Node)(nil)

// Start creates a node, begins listening, and returns. Peers are
// added afterwards with Connect or arrive through the listener.
func Start(cfg Config) (*Node, error) {
	if cfg.Topic.IsZero() {
		return nil, fmt.Errorf("gossip: topic is required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":0"
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	id, err := NewPeerID()
	if err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("gossip: listen on %s: %w", cfg.ListenAddr, err)
	}

	n := &Node{
		id:          id,
		topic:       cfg.Topic,
		mode:        cfg.Mode,
		stunServers: cfg.STUNServers,
		clock:       cfg.Clock,
		logger:      cfg.Logger.With("peer", id.Short()),
		listener:    listener,
		events:      make(chan Event, cfg.EventBuffer),
		peers:       make(map[PeerID]*peerLink),
		seen:        newSeenCache(seenCacheCapacity),
		closed:      make(chan struct{}),
	}
	n.wg.Add(1)
	go n.acceptLoop()
	n.logger.Info("gossip node listening",
		"addr", listener.Addr().String(),
		"topic", cfg.Topic.Short(),
		"mode", string(cfg.Mode))
	return n, nil
}

// ID returns this node's ephemeral identity.
func (n *Node) ID() PeerID { return n.id }

// Topic returns the joined topic.
func (n *Node) Topic() TopicID { return n.topic }

// Addr returns the listener address, suitable for tickets.
func (n *Node) Addr() string { return n.listener.Addr().String() }

// Peers returns the identities of currently linked peers.
func (n *Node) Peers() []PeerID {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]PeerID, 0, len(n.peers))
	for id := range n.peers {
		ids = append(ids, id)
	}
	return ids
}

// Events returns the delivery channel. It is never closed; callers
// select against their own context.
func (n *Node) Events() <-chan Event { return n.events }

// Connect dials addr, performs the hello exchange, and adds the peer.
// One attempt only; callers own retry policy.
func (n *Node) Connect(ctx context.Context, addr string) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("gossip: dial %s: %w", addr, err)
	}
	remote, reader, err := n.handshake(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("gossip: handshake with %s: %w", addr, err)
	}
	if remote == n.id {
		conn.Close()
		return fmt.Errorf("gossip: %s is this node's own address", addr)
	}
	n.addLink(remote, conn, reader)
	return nil
}

// Broadcast floods payload to every link and loops it back locally.
// Per-link send failures are logged, not returned: the substrate is
// best-effort and a dead link is detected by its read loop.
func (n *Node) Broadcast(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-n.closed:
		return net.ErrClosed
	default:
	}

	message := dataPayload{ID: uuid.New(), Origin: n.id, Body: payload}
	encoded, err := codec.Marshal(message)
	if err != nil {
		return fmt.Errorf("gossip: encode broadcast: %w", err)
	}

	n.mu.Lock()
	// Witness our own ID so relayed copies die on return.
	n.seen.witness(message.ID)
	links := make([]*peerLink, 0, len(n.peers))
	for _, link := range n.peers {
		links = append(links, link)
	}
	n.mu.Unlock()

	n.deliver(Event{Origin: n.id, Payload: payload})
	for _, link := range links {
		if err := link.sendData(encoded); err != nil {
			n.logger.Debug("broadcast send failed",
				"remote", link.id.Short(),
				"error", err)
		}
	}
	return nil
}

// Close shuts the listener and all links. Pending events stay
// readable; the events channel is not closed.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		close(n.closed)
		n.listener.Close()
		n.mu.Lock()
		links := make([]*peerLink, 0, len(n.peers))
		for _, link := range n.peers {
			links = append(links, link)
		}
		n.peers = make(map[PeerID]*peerLink)
		n.mu.Unlock()
		for _, link := range links {
			link.close()
		}
		n.wg.Wait()
	})
	return nil
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.closed:
				return
			default:
			}
			n.logger.Warn("accept failed", "error", err)
			return
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			remote, reader, err := n.handshake(conn)
			if err != nil {
				n.logger.Debug("inbound handshake failed",
					"remote_addr", conn.RemoteAddr().String(),
					"error", err)
				conn.Close()
				return
			}
			n.addLink(remote, conn, reader)
		}()
	}
}

// handshake exchanges hello frames on a fresh connection, in either
// direction: send ours, read theirs, check the topic. Returns the
// remote identity and the buffered reader that subsequent frame reads
// must continue from.
func (n *Node) handshake(conn net.Conn) (PeerID, *bufio.Reader, error) {
	hello, err := codec.Marshal(helloPayload{Peer: n.id, Topic: n.topic})
	if err != nil {
		return PeerID{}, nil, fmt.Errorf("encode hello: %w", err)
	}
	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	if err := writeFrame(conn, frame{Type: frameTypeHello, Payload: hello}); err != nil {
		return PeerID{}, nil, err
	}
	reader := bufio.NewReader(conn)
	received, err := readFrame(reader)
	if err != nil {
		return PeerID{}, nil, err
	}
	if received.Type != frameTypeHello {
		return PeerID{}, nil, fmt.Errorf("first frame type 0x%02x, want hello", received.Type)
	}
	var remote helloPayload
	if err := codec.Unmarshal(received.Payload, &remote); err != nil {
		return PeerID{}, nil, fmt.Errorf("decode hello: %w", err)
	}
	if remote.Topic != n.topic {
		return PeerID{}, nil, fmt.Errorf("topic mismatch: remote joined %s", remote.Topic.Short())
	}
	if remote.Peer.IsZero() {
		return PeerID{}, nil, fmt.Errorf("hello carries a zero peer id")
	}
	return remote.Peer, reader, nil
}

// addLink registers a handshaken connection, replacing any existing
// link to the same peer, and starts its read loop. The smaller peer
// starts the WebRTC upgrade.
func (n *Node) addLink(remote PeerID, conn net.Conn, reader *bufio.Reader) {
	link := &peerLink{
		id:      remote,
		conn:    conn,
		reader:  reader,
		answers: make(chan signalPayload, 1),
		stopped: make(chan struct{}),
	}

	n.mu.Lock()
	previous := n.peers[remote]
	n.peers[remote] = link
	n.mu.Unlock()
	if previous != nil {
		previous.close()
	}

	n.logger.Info("peer linked",
		"remote", remote.Short(),
		"remote_addr", conn.RemoteAddr().String())

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.readLoop(link)
	}()

	if n.mode != ModeTCP && n.id.Less(remote) {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.offerUpgrade(link)
		}()
	}
}

// removeLink drops a link whose read loop ended, unless it was
// already replaced by a newer connection to the same peer.
func (n *Node) removeLink(link *peerLink) {
	n.mu.Lock()
	if current, ok := n.peers[link.id]; ok && current == link {
		delete(n.peers, link.id)
	}
	n.mu.Unlock()
	link.close()
	n.logger.Info("peer unlinked", "remote", link.id.Short())
}

// readLoop consumes frames from one link until it fails.
func (n *Node) readLoop(link *peerLink) {
	defer n.removeLink(link)
	for {
		received, err := readFrame(link.reader)
		if err != nil {
			select {
			case <-n.closed:
			case <-link.stopped:
			default:
				if netutil.IsExpectedCloseError(err) {
					n.logger.Debug("link closed by peer",
						"remote", link.id.Short())
				} else {
					n.logger.Warn("link read failed",
						"remote", link.id.Short(),
						"error", err)
				}
			}
			return
		}
		switch received.Type {
		case frameTypeData:
			n.ingest(received.Payload, link)
		case frameTypeOffer:
			var offer signalPayload
			if err := codec.Unmarshal(received.Payload, &offer); err != nil {
				n.logger.Debug("bad offer frame", "error", err)
				continue
			}
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				n.answerUpgrade(link, offer)
			}()
		case frameTypeAnswer:
			var answer signalPayload
			if err := codec.Unmarshal(received.Payload, &answer); err != nil {
				n.logger.Debug("bad answer frame", "error", err)
				continue
			}
			select {
			case link.answers <- answer:
			default:
			}
		default:
			n.logger.Debug("unexpected frame type",
				"type", received.Type,
				"remote", link.id.Short())
		}
	}
}

// ingest routes one received data frame: dedup, deliver locally,
// relay to every other link. encoded is the original frame payload so
// relaying never re-encodes.
func (n *Node) ingest(encoded []byte, from *peerLink) {
	var message dataPayload
	if err := codec.Unmarshal(encoded, &message); err != nil {
		n.logger.Debug("bad data frame", "remote", from.id.Short(), "error", err)
		return
	}

	n.mu.Lock()
	fresh := n.seen.witness(message.ID)
	var links []*peerLink
	if fresh {
		links = make([]*peerLink, 0, len(n.peers))
		for id, link := range n.peers {
			if id != from.id {
				links = append(links, link)
			}
		}
	}
	n.mu.Unlock()
	if !fresh {
		return
	}

	n.deliver(Event{Origin: message.Origin, Payload: message.Body})
	for _, link := range links {
		if err := link.sendData(encoded); err != nil {
			n.logger.Debug("relay send failed",
				"remote", link.id.Short(),
				"error", err)
		}
	}
}

// deliver hands an event to the consumer. A full buffer drops the
// oldest event so a slow consumer always sees the newest traffic.
func (n *Node) deliver(event Event) {
	select {
	case n.events <- event:
		return
	default:
	}
	select {
	case <-n.events:
	default:
	}
	select {
	case n.events <- event:
	default:
	}
}

// peerLink is one linked peer: the TCP connection that carries
// handshake, signaling, and fallback data, plus the WebRTC channel
// once upgraded.
type peerLink struct {
	id      PeerID
	conn    net.Conn
	reader  *bufio.Reader
	answers chan signalPayload

	writeMu sync.Mutex

	mu        sync.Mutex
	channel   *dataChannel
	resources []io.Closer
	stopped   chan struct{}
	closeOnce sync.Once
}

// attachResource ties a closer (a PeerConnection, in practice) to the
// link's lifetime. Returns false, closing the resource immediately,
// when the link is already down.
func (l *peerLink) attachResource(resource io.Closer) bool {
	l.mu.Lock()
	select {
	case <-l.stopped:
		l.mu.Unlock()
		resource.Close()
		return false
	default:
	}
	l.resources = append(l.resources, resource)
	l.mu.Unlock()
	return true
}

// sendData sends one encoded data frame, preferring the WebRTC
// channel when it is open.
func (l *peerLink) sendData(encoded []byte) error {
	l.mu.Lock()
	channel := l.channel
	l.mu.Unlock()
	if channel != nil && channel.ready() {
		return channel.send(encoded)
	}
	return l.write(frameTypeData, encoded)
}

// write sends one frame over TCP. Serialized: read loops relay from
// multiple goroutines.
func (l *peerLink) write(frameType byte, payload []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return writeFrame(l.conn, frame{Type: frameType, Payload: payload})
}

// setChannel installs an opened WebRTC channel as the preferred path.
func (l *peerLink) setChannel(channel *dataChannel) {
	l.mu.Lock()
	select {
	case <-l.stopped:
	default:
		l.channel = channel
	}
	l.mu.Unlock()
}

// clearChannel removes a closed channel, falling back to TCP.
func (l *peerLink) clearChannel(channel *dataChannel) {
	l.mu.Lock()
	if l.channel == channel {
		l.channel = nil
	}
	l.mu.Unlock()
}

func (l *peerLink) close() {
	l.closeOnce.Do(func() {
		close(l.stopped)
		l.conn.Close()
		l.mu.Lock()
		resources := l.resources
		l.resources = nil
		l.channel = nil
		l.mu.Unlock()
		for _, resource := range resources {
			resource.Close()
		}
	})
}
