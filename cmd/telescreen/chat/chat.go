// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/telescreen-dev/telescreen/cmd/telescreen/call"
	"github.com/telescreen-dev/telescreen/cmd/telescreen/cli"
)

// Command returns the "chat" subcommand group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "chat",
		Summary: "Text-only rooms",
		Description: `Text-only rooms.

Same rooms, same tickets, same two-party limit as a video call, with
stdin lines going out as chat and incoming lines printed with the
sender's short identity. Blank lines are skipped. Closing stdin stops
sending without leaving the room; Ctrl-C hangs up.`,
		Subcommands: []*cli.Command{
			openCommand(),
			joinCommand(),
		},
	}
}

func openCommand() *cli.Command {
	var opts call.OpenOptions

	return &cli.Command{
		Name:    "open",
		Summary: "Create a text-only room",
		Usage:   "telescreen chat open [flags]",
		Examples: []cli.Example{
			{
				Description: "Open a room for typing only",
				Command:     "telescreen chat open --label standup",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("open", pflag.ContinueOnError)
			flagSet.StringVar(&opts.ConfigPath, "config", "", "config file path")
			flagSet.StringVar(&opts.Label, "label", "", "label for the saved room entry")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			opts.Text = true
			return call.RunOpen(ctx, opts)
		},
	}
}

func joinCommand() *cli.Command {
	var opts call.JoinOptions

	return &cli.Command{
		Name:    "join",
		Summary: "Join a room as text only",
		Usage:   "telescreen chat join <ticket|code> [flags]",
		Examples: []cli.Example{
			{
				Description: "Join a saved room without video",
				Command:     "telescreen chat join k3jf8a2q",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("join", pflag.ContinueOnError)
			flagSet.StringVar(&opts.ConfigPath, "config", "", "config file path")
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
			opts.Text = true
			return call.RunJoin(ctx, opts)
		},
	}
}
