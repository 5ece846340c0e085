// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/telescreen-dev/telescreen/gossip"
	"github.com/telescreen-dev/telescreen/lib/clock"
	"github.com/telescreen-dev/telescreen/video"
)

// ErrRoomOccupied reports a targeted room-full: the room this session
// tried to join already has both participants.
var ErrRoomOccupied = errors.New("room already occupied")

const (
	// maxConnectedPeers caps the room at one remote participant; the
	// local process is the second.
	maxConnectedPeers = 1

	// roomFullRepeats is how many times a rejection is broadcast. The
	// substrate drops messages, so a single rejection might never
	// arrive; three spaced copies make delivery overwhelmingly likely.
	roomFullRepeats = 3

	// roomFullDelay separates the repeated rejection broadcasts.
	roomFullDelay = 75 * time.Millisecond

	// frameBuffer is the inbound frame hand-off capacity. One slot,
	// keep-latest: a renderer that falls behind skips straight to the
	// newest frame instead of replaying a backlog.
	frameBuffer = 1

	// chatBuffer bounds undelivered chat lines.
	chatBuffer = 16

	// admittedBuffer bounds pending admission notifications.
	admittedBuffer = 4
)

// Status is a remote peer's admission state.
type Status int

const (
	// StatusUnknown is the default: the peer has not been classified.
	StatusUnknown Status = iota

	// StatusConnected peers occupy the room's single remote seat.
	StatusConnected

	// StatusRejected is terminal. A rejected peer is never re-admitted
	// within the process lifetime.
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusConnected:
		return "connected"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// RemoteFrame is one decoded video frame from the connected peer.
type RemoteFrame struct {
	From   gossip.PeerID
	Pixels []byte
	Width  int
	Height int
}

// ChatLine is one chat message from the connected peer.
type ChatLine struct {
	From gossip.PeerID
	Text string
}

// ControllerConfig assembles a Controller.
type ControllerConfig struct {
	// Self is the local identity; envelopes claiming it are dropped
	// (the substrate echoes our own broadcasts).
	Self gossip.PeerID

	// Bus carries outbound rejections.
	Bus gossip.Bus

	// Clock paces the repeated rejection sends. Defaults to the real
	// clock.
	Clock clock.Clock

	// Logger receives protocol diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

// Controller is the admission state machine. Run drains the bus; the
// display loop drains Frames, Chat, and Admitted.
type Controller struct {
	self   gossip.PeerID
	bus    gossip.Bus
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	statuses map[gossip.PeerID]Status

	frames   chan RemoteFrame
	chat     chan ChatLine
	admitted chan gossip.PeerID

	wg sync.WaitGroup
}

// NewController returns a controller with every peer Unknown.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		self:     cfg.Self,
		bus:      cfg.Bus,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		statuses: make(map[gossip.PeerID]Status),
		frames:   make(chan RemoteFrame, frameBuffer),
		chat:     make(chan ChatLine, chatBuffer),
		admitted: make(chan gossip.PeerID, admittedBuffer),
	}
}

// Frames returns the decoded-frame channel. Capacity 1: only the
// newest undelivered frame is kept.
func (c *Controller) Frames() <-chan RemoteFrame { return c.frames }

// Chat returns the chat-line channel.
func (c *Controller) Chat() <-chan ChatLine { return c.chat }

// Admitted returns the admission notification channel.
func (c *Controller) Admitted() <-chan gossip.PeerID { return c.admitted }

// Status returns a peer's current admission state.
func (c *Controller) Status(peer gossip.PeerID) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statuses[peer]
}

// Peer returns the connected remote peer, if any.
func (c *Controller) Peer() (gossip.PeerID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for peer, status := range c.statuses {
		if status == StatusConnected {
			return peer, true
		}
	}
	return gossip.PeerID{}, false
}

// Run consumes bus events until ctx is canceled or a targeted
// room-full arrives, in which case it returns ErrRoomOccupied. It
// waits for any in-flight rejection sends before returning.
func (c *Controller) Run(ctx context.Context) error {
	defer c.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-c.bus.Events():
			if err := c.handle(event); err != nil {
				return err
			}
		}
	}
}

// handle classifies one received broadcast. Only a targeted room-full
// produces an error; everything else is absorbed.
func (c *Controller) handle(event gossip.Event) error {
	// The substrate loops our own broadcasts back.
	if event.Origin == c.self {
		return nil
	}
	env, err := OpenEnvelope(event.Payload)
	if err != nil {
		c.logger.Warn("dropping malformed envelope",
			"origin", event.Origin.Short(),
			"error", err)
		return nil
	}
	from := env.Body.From
	if from == c.self {
		return nil
	}

	switch env.Body.Kind {
	case KindRoomFull:
		if env.Body.Target != nil && *env.Body.Target == c.self {
			c.logger.Info("room is occupied", "from", from.Short())
			return ErrRoomOccupied
		}
		// Someone else being turned away is not our business.
		return nil

	case KindKeepAlive:
		c.observeKeepAlive(from)
		return nil

	case KindAboutMe:
		c.admit(from)
		return nil

	case KindVideoFrame:
		if !c.admit(from) {
			return nil
		}
		c.deliverFrame(from, env.Body)
		return nil

	case KindChat:
		if !c.admit(from) {
			return nil
		}
		c.deliverChat(ChatLine{From: from, Text: env.Body.Text})
		return nil

	default:
		c.logger.Warn("dropping envelope of unknown kind",
			"kind", env.Body.Kind,
			"from", from.Short())
		return nil
	}
}

// admit classifies a peer on a strong admission signal (about-me,
// video-frame, chat) and reports whether it holds the room's remote
// seat. A full room rejects; Rejected peers are re-rejected on every
// subsequent message, re-broadcasting the turn-away in case the
// earlier copies were lost.
func (c *Controller) admit(from gossip.PeerID) bool {
	c.mu.Lock()
	switch c.statuses[from] {
	case StatusConnected:
		c.mu.Unlock()
		return true
	case StatusRejected:
		c.mu.Unlock()
		c.sendRoomFull(from)
		return false
	}
	if c.connectedLocked() < maxConnectedPeers {
		c.statuses[from] = StatusConnected
		c.mu.Unlock()
		c.logger.Info("peer connected", "peer", from.Short())
		c.notifyAdmitted(from)
		return true
	}
	c.statuses[from] = StatusRejected
	c.mu.Unlock()
	c.logger.Info("peer rejected, room full", "peer", from.Short())
	c.sendRoomFull(from)
	return false
}

// observeKeepAlive handles the weak admission signal: an Unknown peer
// is promoted silently when the room has space, and ignored (not
// rejected) when it does not.
func (c *Controller) observeKeepAlive(from gossip.PeerID) {
	c.mu.Lock()
	if c.statuses[from] != StatusUnknown || c.connectedLocked() >= maxConnectedPeers {
		c.mu.Unlock()
		return
	}
	c.statuses[from] = StatusConnected
	c.mu.Unlock()
	c.logger.Info("peer connected via keep-alive", "peer", from.Short())
	c.notifyAdmitted(from)
}

func (c *Controller) connectedLocked() int {
	connected := 0
	for _, status := range c.statuses {
		if status == StatusConnected {
			connected++
		}
	}
	return connected
}

// sendRoomFull broadcasts the targeted rejection roomFullRepeats times
// with short delays, off the receive loop so a rejection burst cannot
// stall frame delivery.
func (c *Controller) sendRoomFull(target gossip.PeerID) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for i := 0; i < roomFullRepeats; i++ {
			if i > 0 {
				c.clock.Sleep(roomFullDelay)
			}
			sealed, err := Seal(Body{Kind: KindRoomFull, From: c.self, Target: &target})
			if err != nil {
				c.logger.Warn("encode room-full failed", "error", err)
				return
			}
			if err := c.bus.Broadcast(context.Background(), sealed); err != nil {
				c.logger.Debug("room-full send failed",
					"target", target.Short(),
					"error", err)
			}
		}
	}()
}

// deliverFrame decodes a video-frame body and hands it to the display
// loop. Malformed payloads are logged and skipped; the sender is not
// penalized.
func (c *Controller) deliverFrame(from gossip.PeerID, body Body) {
	if body.Width <= 0 || body.Height <= 0 {
		c.logger.Warn("dropping video frame with invalid dimensions",
			"from", from.Short(),
			"width", body.Width,
			"height", body.Height)
		return
	}
	pixels, err := video.DecodePayload(body.FrameData, video.PixelLength(body.Width, body.Height))
	if err != nil {
		c.logger.Warn("dropping undecodable video frame",
			"from", from.Short(),
			"error", err)
		return
	}
	frame := RemoteFrame{From: from, Pixels: pixels, Width: body.Width, Height: body.Height}
	select {
	case c.frames <- frame:
		return
	default:
	}
	select {
	case <-c.frames:
	default:
	}
	select {
	case c.frames <- frame:
	default:
	}
}

func (c *Controller) deliverChat(line ChatLine) {
	select {
	case c.chat <- line:
		return
	default:
	}
	select {
	case <-c.chat:
		c.logger.Warn("chat backlog full, dropping oldest line")
	default:
	}
	select {
	case c.chat <- line:
	default:
	}
}

func (c *Controller) notifyAdmitted(peer gossip.PeerID) {
	select {
	case c.admitted <- peer:
		return
	default:
	}
	select {
	case <-c.admitted:
	default:
	}
	select {
	case c.admitted <- peer:
	default:
	}
}
