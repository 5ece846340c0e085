// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/telescreen-dev/telescreen/cmd/telescreen/cli"
	"github.com/telescreen-dev/telescreen/gossip"
	"github.com/telescreen-dev/telescreen/lib/config"
	"github.com/telescreen-dev/telescreen/ticket"
)

// JoinOptions configure a join run. Exported for the chat variant and
// the rooms picker.
type JoinOptions struct {
	ConfigPath    string
	Target        string
	NoCamera      bool
	RequireCamera bool
	Text          bool
}

// JoinCommand returns the "join" subcommand.
func JoinCommand() *cli.Command {
	var opts JoinOptions

	return &cli.Command{
		Name:    "join",
		Summary: "Join a room by ticket or short code",
		Description: `Join a room.

The argument is either a ticket string from the room's creator or an
8-character short code resolving through this machine's room registry
("telescreen rooms" lists saved entries). The ticket carries the
creator's addresses; each is tried in order until one connects.

If the room already holds two parties the far end refuses the session
and the command exits with code 2.

Ctrl-C hangs up.`,
		Usage: "telescreen join <ticket|code> [flags]",
		Examples: []cli.Example{
			{
				Description: "Join with a ticket string",
				Command:     "telescreen join nbswy3dpeb3w64tmmqqq...",
			},
			{
				Description: "Rejoin a saved room by short code",
				Command:     "telescreen join k3jf8a2q",
			},
			{
				Description: "Join without transmitting video",
				Command:     "telescreen join k3jf8a2q --no-camera",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("join", pflag.ContinueOnError)
			flagSet.StringVar(&opts.ConfigPath, "config", "", "config file path")
			flagSet.BoolVar(&opts.NoCamera, "no-camera", false, "transmit no video, still render the peer")
			flagSet.BoolVar(&opts.RequireCamera, "require-camera", false, "fail when the webcam cannot be opened instead of sending synthetic frames")
			flagSet.BoolVar(&opts.Text, "text", false, "text-only session: no capture, no render")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) == 0 {
				return errors.New("ticket or short code required")
			}
			if len(args) > 1 {
				return fmt.Errorf("unexpected argument: %s", args[1])
			}
			opts.Target = args[0]
			return RunJoin(ctx, opts)
		},
	}
}

// RunJoin resolves the target, connects to the room's creator, and
// runs the session loop until hangup.
func RunJoin(ctx context.Context, opts JoinOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger, closeLogger, err := sessionLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLogger()

	roomTicket, err := resolveTarget(cfg, opts.Target)
	if err != nil {
		return err
	}

	node, err := startNode(cfg, roomTicket.Topic, logger)
	if err != nil {
		return err
	}
	defer node.Close()

	if err := connectAny(ctx, node, roomTicket, logger); err != nil {
		return err
	}

	return runSession(ctx, cfg, node, sessionOptions{
		NoCamera:      opts.NoCamera,
		RequireCamera: opts.RequireCamera,
		Text:          opts.Text,
	}, logger)
}

// resolveTarget maps the join argument to a ticket. Unknown short
// codes name the registry file so the user knows where the lookup
// happened.
func resolveTarget(cfg *config.Config, target string) (ticket.Ticket, error) {
	path, err := RegistryPath(cfg)
	if err != nil {
		return ticket.Ticket{}, err
	}
	store := ticket.NewFileStore(path)
	roomTicket, err := ticket.Resolve(store, target)
	if errors.Is(err, ticket.ErrUnknownCode) {
		return ticket.Ticket{}, fmt.Errorf("%w (registry: %s)", err, store.Path())
	}
	return roomTicket, err
}

// connectAny dials the ticket's addresses in order until one link
// comes up. Creators list their reachable interfaces first and
// loopback last, so the first success is also the best guess.
func connectAny(ctx context.Context, node *gossip.Node, roomTicket ticket.Ticket, logger *slog.Logger) error {
	var lastErr error
	for _, peer := range roomTicket.Peers {
		for _, addr := range peer.Addrs {
			if err := node.Connect(ctx, addr); err != nil {
				logger.Debug("bootstrap address failed", "addr", addr, "error", err)
				lastErr = err
				continue
			}
			return nil
		}
	}
	if lastErr == nil {
		return errors.New("ticket lists no addresses")
	}
	return fmt.Errorf("no ticket address reachable: %w", lastErr)
}
