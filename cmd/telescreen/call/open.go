// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/telescreen-dev/telescreen/cmd/telescreen/cli"
	"github.com/telescreen-dev/telescreen/gossip"
	"github.com/telescreen-dev/telescreen/lib/config"
	"github.com/telescreen-dev/telescreen/lib/netutil"
	"github.com/telescreen-dev/telescreen/ticket"
)

// OpenOptions configure an open run. Exported for the chat variant,
// which forces Text.
type OpenOptions struct {
	ConfigPath    string
	Label         string
	NoCamera      bool
	RequireCamera bool
	Text          bool
}

// OpenCommand returns the "open" subcommand.
func OpenCommand() *cli.Command {
	var opts OpenOptions

	return &cli.Command{
		Name:    "open",
		Summary: "Create a room and wait for a caller",
		Description: `Create a room and wait for a caller.

Prints two credentials: the ticket, a self-contained string carrying
the room identity and this machine's reachable addresses, and an
8-character short code saved to the local room registry. Give the
ticket to your caller; the short code reopens the room later from this
machine ("telescreen rooms" lists what is saved).

The session starts as soon as a caller connects. Video goes both ways
by default: the webcam is opened against a ladder of device modes, and
if no device works the outgoing picture degrades to synthetic frames
rather than killing the call. A third party trying to enter an
occupied room is refused.

Ctrl-C hangs up.`,
		Usage: "telescreen open [flags]",
		Examples: []cli.Example{
			{
				Description: "Open a room and share the printed ticket",
				Command:     "telescreen open",
			},
			{
				Description: "Label the saved registry entry",
				Command:     "telescreen open --label standup",
			},
			{
				Description: "Receive-only: render the caller, transmit nothing",
				Command:     "telescreen open --no-camera",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("open", pflag.ContinueOnError)
			flagSet.StringVar(&opts.ConfigPath, "config", "", "config file path")
			flagSet.StringVar(&opts.Label, "label", "", "label for the saved room entry")
			flagSet.BoolVar(&opts.NoCamera, "no-camera", false, "transmit no video, still render the caller")
			flagSet.BoolVar(&opts.RequireCamera, "require-camera", false, "fail when the webcam cannot be opened instead of sending synthetic frames")
			flagSet.BoolVar(&opts.Text, "text", false, "text-only session: no capture, no render")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			return RunOpen(ctx, opts)
		},
	}
}

// RunOpen creates a room, prints its credentials, and runs the session
// loop until hangup.
func RunOpen(ctx context.Context, opts OpenOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger, closeLogger, err := sessionLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLogger()

	topic, err := gossip.NewTopicID()
	if err != nil {
		return err
	}
	node, err := startNode(cfg, topic, logger)
	if err != nil {
		return err
	}
	defer node.Close()

	addrs, err := netutil.AdvertiseAddrs(node.Addr())
	if err != nil {
		return fmt.Errorf("derive advertised addresses: %w", err)
	}
	roomTicket := ticket.Ticket{
		Topic: node.Topic(),
		Peers: []ticket.PeerAddr{{ID: node.ID(), Addrs: addrs}},
	}
	ticketText, err := roomTicket.Encode()
	if err != nil {
		return fmt.Errorf("encode ticket: %w", err)
	}

	// A registry failure loses the short code, not the room: the
	// ticket still works, so warn and carry on.
	code, err := registerRoom(cfg, roomTicket, opts.Label)
	if err != nil {
		logger.Warn("cannot save room to registry", "error", err)
		code = ""
	}

	fmt.Println(renderBanner(opts.Label, code, ticketText))

	return runSession(ctx, cfg, node, sessionOptions{
		NoCamera:      opts.NoCamera,
		RequireCamera: opts.RequireCamera,
		Text:          opts.Text,
	}, logger)
}

func registerRoom(cfg *config.Config, roomTicket ticket.Ticket, label string) (string, error) {
	path, err := RegistryPath(cfg)
	if err != nil {
		return "", err
	}
	return ticket.Register(ticket.NewFileStore(path), roomTicket, label, time.Now())
}
