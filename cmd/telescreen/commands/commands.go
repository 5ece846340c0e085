// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete telescreen CLI command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/telescreen-dev/telescreen/cmd/telescreen/call"
	"github.com/telescreen-dev/telescreen/cmd/telescreen/chat"
	"github.com/telescreen-dev/telescreen/cmd/telescreen/cli"
	"github.com/telescreen-dev/telescreen/cmd/telescreen/rooms"
	"github.com/telescreen-dev/telescreen/lib/version"
)

// Root builds and returns the telescreen command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "telescreen",
		Description: `Telescreen: live video calls between two terminals.

One side opens a room and shares the printed ticket; the other joins
with it. Video renders as colored half-blocks in the terminal, chat
rides alongside, and a room never holds more than two parties.`,
		Subcommands: []*cli.Command{
			call.OpenCommand(),
			call.JoinCommand(),
			chat.Command(),
			rooms.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Printf("telescreen %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Open a room and share the printed ticket",
				Command:     "telescreen open --label standup",
			},
			{
				Description: "Join from the other terminal",
				Command:     "telescreen join <ticket>",
			},
			{
				Description: "Rejoin a saved room by its short code",
				Command:     "telescreen join k3jf8a2q",
			},
			{
				Description: "Type instead of transmitting video",
				Command:     "telescreen chat join k3jf8a2q",
			},
			{
				Description: "Browse saved rooms and join one",
				Command:     "telescreen rooms --pick",
			},
		},
	}
}
