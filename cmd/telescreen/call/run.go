// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/muesli/termenv"

	"github.com/telescreen-dev/telescreen/capture"
	"github.com/telescreen-dev/telescreen/capture/webcam"
	"github.com/telescreen-dev/telescreen/cmd/telescreen/cli"
	"github.com/telescreen-dev/telescreen/gossip"
	"github.com/telescreen-dev/telescreen/lib/clock"
	"github.com/telescreen-dev/telescreen/lib/config"
	"github.com/telescreen-dev/telescreen/render"
	"github.com/telescreen-dev/telescreen/session"
	"github.com/telescreen-dev/telescreen/ticket"
	"github.com/telescreen-dev/telescreen/video"
)

// sessionOptions select the shape of a session run shared by open,
// join, and their chat variants.
type sessionOptions struct {
	// NoCamera transmits no video but still renders the remote peer.
	NoCamera bool

	// RequireCamera turns the synthetic-frame fallback into a hard
	// error when the webcam cannot be opened.
	RequireCamera bool

	// Text drops capture and render entirely: chat in, chat out.
	Text bool
}

// sessionLogger builds the logger the config asks for. During a video
// session the renderer owns stdout, so a configured log file keeps
// diagnostics off the terminal; without one they go to stderr like any
// other command.
func sessionLogger(cfg *config.Config) (*slog.Logger, func() error, error) {
	if cfg.Log.File != "" {
		return cli.NewFileLogger(cfg.SlogLevel(), cfg.Log.File)
	}
	return cli.NewCommandLogger(cfg.SlogLevel()), func() error { return nil }, nil
}

// startNode opens the gossip node per the transport config.
func startNode(cfg *config.Config, topic gossip.TopicID, logger *slog.Logger) (*gossip.Node, error) {
	mode, err := gossip.ParseMode(cfg.Transport.Mode)
	if err != nil {
		return nil, err
	}
	return gossip.Start(gossip.Config{
		Topic:       topic,
		ListenAddr:  cfg.Transport.ListenAddr,
		Mode:        mode,
		STUNServers: cfg.Transport.STUNServers,
		Logger:      logger.With("component", "gossip"),
	})
}

// RegistryPath returns the room registry location: the configured
// override, or the per-user default.
func RegistryPath(cfg *config.Config) (string, error) {
	if cfg.Registry.Path != "" {
		return cfg.Registry.Path, nil
	}
	return ticket.DefaultPath()
}

// openSource opens the webcam, falling back to synthetic frames when
// no device candidate works out. A call without a camera is still a
// call; the fallback keeps the session alive on machines with a
// broken or absent device unless the caller demanded the real thing.
func openSource(ctx context.Context, cfg *config.Config, requireCamera bool, logger *slog.Logger) (*capture.Source, error) {
	return openFrom(ctx, webcam.Opener{}, cfg, requireCamera, logger)
}

func openFrom(ctx context.Context, camera capture.Opener, cfg *config.Config, requireCamera bool, logger *slog.Logger) (*capture.Source, error) {
	captureCfg := capture.Config{
		Ladder:       capture.DefaultLadder(cfg.Capture.DeviceIndices),
		OpenAttempts: cfg.Capture.OpenAttempts,
		OpenBackoff:  cfg.OpenBackoff(),
	}
	captureLogger := logger.With("component", "capture")

	source, err := capture.Open(ctx, camera, captureCfg, clock.Real(), captureLogger)
	if err == nil {
		return source, nil
	}
	if requireCamera {
		return nil, fmt.Errorf("open camera: %w", err)
	}
	logger.Warn("camera unavailable, transmitting synthetic frames", "error", err)

	source, err = capture.Open(ctx, capture.SyntheticOpener{}, captureCfg, clock.Real(), captureLogger)
	if err != nil {
		return nil, fmt.Errorf("open synthetic source: %w", err)
	}
	return source, nil
}

// runSession assembles the display, source, and chat input around an
// already-connected node and runs the session until it ends. Context
// cancellation is the normal hangup path, not an error.
func runSession(ctx context.Context, cfg *config.Config, node *gossip.Node, opts sessionOptions, logger *slog.Logger) error {
	var source session.FrameSource
	if !opts.Text && !opts.NoCamera {
		src, err := openSource(ctx, cfg, opts.RequireCamera, logger)
		if err != nil {
			return err
		}
		defer src.Close()
		source = src
	}

	var display session.Display
	if opts.Text {
		display = NewTextDisplay(os.Stdout)
	} else {
		pipeline, err := render.NewPipeline(render.Config{
			Profile: termenv.ColorProfile(),
			Self:    node.ID(),
			Logger:  logger.With("component", "render"),
		})
		if err != nil {
			return fmt.Errorf("start renderer: %w", err)
		}
		defer pipeline.Close()
		display = pipeline
	}

	var compression *video.CompressionTag
	if cfg.Video.Compression != "" {
		tag, err := video.ParseCompressionTag(cfg.Video.Compression)
		if err != nil {
			return err
		}
		compression = &tag
	}

	err := session.Call(ctx, session.CallConfig{
		Self:              node.ID(),
		Bus:               node,
		Source:            source,
		Display:           display,
		ChatInput:         session.ReadLines(os.Stdin),
		Compression:       compression,
		CaptureInterval:   cfg.CaptureInterval(),
		KeepaliveInterval: cfg.KeepaliveInterval(),
		TransmitWidth:     cfg.Session.TransmitWidth,
		TransmitHeight:    cfg.Session.TransmitHeight,
		Logger:            logger,
	})
	if errors.Is(err, session.ErrRoomOccupied) {
		fmt.Fprintln(os.Stderr, "room is already occupied")
		return &cli.ExitError{Code: cli.ExitCodeRoomFull}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
