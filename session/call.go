// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/telescreen-dev/telescreen/gossip"
	"github.com/telescreen-dev/telescreen/lib/clock"
	"github.com/telescreen-dev/telescreen/video"
)

const (
	// DefaultCaptureInterval paces the camera at roughly 30 frames per
	// second.
	DefaultCaptureInterval = 33 * time.Millisecond

	// DefaultKeepaliveInterval spaces the presence beacons.
	DefaultKeepaliveInterval = 5 * time.Second

	// DefaultTransmitWidth and DefaultTransmitHeight bound outgoing
	// frames. Cameras capture larger; frames are downscaled into this
	// box before encoding so a broadcast fits comfortably on the wire.
	DefaultTransmitWidth  = 320
	DefaultTransmitHeight = 240
)

// Display renders the remote side of a call. Implementations must
// tolerate ShowFrame dimensions changing between calls.
type Display interface {
	// ShowFrame paints one decoded frame. Pixels is packed RGB,
	// width*height*3 bytes. An error ends the session.
	ShowFrame(pixels []byte, width, height int) error

	// ShowChat presents one chat line from the remote peer.
	ShowChat(from gossip.PeerID, text string)

	// SetPeer reports the admitted remote peer.
	SetPeer(id gossip.PeerID)
}

// FrameSource produces local frames for transmission. Frame blocks
// until a frame is available or ctx is canceled. The returned frame's
// pixels are only valid until the next Frame call.
type FrameSource interface {
	Frame(ctx context.Context) (*video.Frame, error)
}

// healthSource is the optional FrameSource surface reporting device
// health (capture.Source has it). Health transitions are forwarded to
// displays implementing healthDisplay.
type healthSource interface {
	Healthy() bool
}

// healthDisplay is the optional Display surface for camera health.
type healthDisplay interface {
	SetCameraHealthy(healthy bool)
}

// CallConfig assembles one end of a call.
type CallConfig struct {
	// Self is the local identity.
	Self gossip.PeerID

	// Bus is the room's broadcast substrate.
	Bus gossip.Bus

	// Source supplies local video. Nil means receive-only: no frames
	// are transmitted, which is the text-chat arrangement.
	Source FrameSource

	// Display renders the remote peer.
	Display Display

	// ChatInput carries outgoing chat lines. Nil disables sending.
	// Closing the channel stops chat transmission without ending the
	// session.
	ChatInput <-chan string

	// Compression fixes the frame codec. Nil probes the first
	// captured frame and picks whichever codec earns its keep.
	Compression *video.CompressionTag

	// CaptureInterval overrides the camera pacing.
	CaptureInterval time.Duration

	// KeepaliveInterval overrides the presence beacon spacing.
	KeepaliveInterval time.Duration

	// TransmitWidth and TransmitHeight override the outgoing frame
	// bound.
	TransmitWidth  int
	TransmitHeight int

	// Clock drives the capture and keepalive timers. Defaults to the
	// real clock.
	Clock clock.Clock

	// Logger receives session diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

func (cfg CallConfig) withDefaults() CallConfig {
	if cfg.CaptureInterval <= 0 {
		cfg.CaptureInterval = DefaultCaptureInterval
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if cfg.TransmitWidth <= 0 {
		cfg.TransmitWidth = DefaultTransmitWidth
	}
	if cfg.TransmitHeight <= 0 {
		cfg.TransmitHeight = DefaultTransmitHeight
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// Call announces the local peer, then runs the capture, keepalive,
// chat, and render loops until ctx is canceled, the room turns us
// away, or the display fails. Cancellation is a clean shutdown and
// returns nil.
func Call(ctx context.Context, cfg CallConfig) error {
	cfg = cfg.withDefaults()

	controller := NewController(ControllerConfig{
		Self:   cfg.Self,
		Bus:    cfg.Bus,
		Clock:  cfg.Clock,
		Logger: cfg.Logger,
	})

	// Announce before anything else so the room classifies us from
	// our first broadcast rather than from a mid-stream frame.
	sealed, err := Seal(Body{Kind: KindAboutMe, From: cfg.Self})
	if err != nil {
		return fmt.Errorf("session: announce: %w", err)
	}
	if err := cfg.Bus.Broadcast(ctx, sealed); err != nil {
		return fmt.Errorf("session: announce: %w", err)
	}

	// Camera health transitions cross from the capture loop to the
	// render loop here; capacity 1, keep-latest. Nil when there is no
	// camera, which parks the render loop's select case forever.
	var health chan bool
	if cfg.Source != nil {
		if _, ok := cfg.Source.(healthSource); ok {
			health = make(chan bool, 1)
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return controller.Run(ctx)
	})
	if cfg.Source != nil {
		group.Go(func() error {
			return captureLoop(ctx, cfg, health)
		})
	}
	group.Go(func() error {
		return keepaliveLoop(ctx, cfg)
	})
	group.Go(func() error {
		return renderLoop(ctx, cfg, controller, health)
	})
	if cfg.ChatInput != nil {
		group.Go(func() error {
			return chatLoop(ctx, cfg)
		})
	}

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// captureLoop reads frames on a fixed cadence, downscales them into
// the transmit box, and broadcasts the ones that changed enough to be
// worth sending.
func captureLoop(ctx context.Context, cfg CallConfig, health chan bool) error {
	gate := video.NewChangeGate()
	ticker := cfg.Clock.NewTicker(cfg.CaptureInterval)
	defer ticker.Stop()

	compression := cfg.Compression
	lastHealthy := true
	var lastSent []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		frame, err := cfg.Source.Frame(ctx)
		if source, ok := cfg.Source.(healthSource); ok {
			lastHealthy = reportHealth(health, source.Healthy(), lastHealthy)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			cfg.Logger.Warn("frame capture failed", "error", err)
			continue
		}

		width, height := video.FitDimensions(frame.Width, frame.Height, cfg.TransmitWidth, cfg.TransmitHeight)
		pixels := frame.Pixels
		if width != frame.Width || height != frame.Height {
			pixels, err = video.Downscale(frame.Pixels, frame.Width, frame.Height, width, height)
			if err != nil {
				return fmt.Errorf("session: downscale frame: %w", err)
			}
		}

		if !gate.Changed(pixels, lastSent) {
			continue
		}

		if compression == nil {
			tag := video.SelectCompression(pixels)
			compression = &tag
			cfg.Logger.Info("selected frame compression", "codec", tag)
		}
		payload, err := video.EncodePayload(pixels, *compression)
		if err != nil {
			return fmt.Errorf("session: encode frame: %w", err)
		}
		sealed, err := Seal(Body{
			Kind:      KindVideoFrame,
			From:      cfg.Self,
			FrameData: payload,
			Width:     width,
			Height:    height,
		})
		if err != nil {
			return fmt.Errorf("session: seal frame: %w", err)
		}
		if err := cfg.Bus.Broadcast(ctx, sealed); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			cfg.Logger.Debug("frame broadcast failed", "error", err)
			continue
		}
		// The source may reuse the frame buffer; keep our own copy
		// for the next change comparison.
		lastSent = append(lastSent[:0], pixels...)
	}
}

// reportHealth pushes a health transition into the hand-off channel,
// replacing an undelivered older value, and returns the new state.
func reportHealth(health chan bool, healthy, last bool) bool {
	if healthy == last || health == nil {
		return last
	}
	select {
	case health <- healthy:
		return healthy
	default:
	}
	select {
	case <-health:
	default:
	}
	select {
	case health <- healthy:
	default:
	}
	return healthy
}

// keepaliveLoop broadcasts a presence beacon on a fixed cadence so a
// quiet peer (shy camera, no chat) still holds its seat.
func keepaliveLoop(ctx context.Context, cfg CallConfig) error {
	ticker := cfg.Clock.NewTicker(cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		sealed, err := Seal(Body{Kind: KindKeepAlive, From: cfg.Self})
		if err != nil {
			return fmt.Errorf("session: seal keep-alive: %w", err)
		}
		if err := cfg.Bus.Broadcast(ctx, sealed); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			cfg.Logger.Debug("keep-alive broadcast failed", "error", err)
		}
	}
}

// chatLoop broadcasts lines from ChatInput. A closed channel ends
// chat transmission, not the session: the remote peer may still be
// talking.
func chatLoop(ctx context.Context, cfg CallConfig) error {
	input := cfg.ChatInput
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-input:
			if !ok {
				input = nil
				continue
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			sealed, err := Seal(Body{Kind: KindChat, From: cfg.Self, Text: line})
			if err != nil {
				return fmt.Errorf("session: seal chat: %w", err)
			}
			if err := cfg.Bus.Broadcast(ctx, sealed); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				cfg.Logger.Debug("chat broadcast failed", "error", err)
			}
		}
	}
}

// renderLoop feeds the display from the controller's channels. A
// display error ends the session.
func renderLoop(ctx context.Context, cfg CallConfig, controller *Controller, health <-chan bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-controller.Frames():
			if err := cfg.Display.ShowFrame(frame.Pixels, frame.Width, frame.Height); err != nil {
				return fmt.Errorf("session: show frame: %w", err)
			}
		case line := <-controller.Chat():
			cfg.Display.ShowChat(line.From, line.Text)
		case peer := <-controller.Admitted():
			cfg.Display.SetPeer(peer)
		case healthy := <-health:
			if display, ok := cfg.Display.(healthDisplay); ok {
				display.SetCameraHealthy(healthy)
			}
		}
	}
}

// ReadLines turns a reader into a channel of lines, one per Scan. The
// channel closes on EOF or read error. Capacity one: the producer
// blocks until the session consumes the previous line.
func ReadLines(r io.Reader) <-chan string {
	lines := make(chan string, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
