// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/telescreen-dev/telescreen/cmd/telescreen/cli"
	"github.com/telescreen-dev/telescreen/cmd/telescreen/commands"
)

func main() {
	if err := run(); err != nil {
		// Commands that manage their own output return an exit error
		// with the desired code; no redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Ctrl-C and SIGTERM cancel the context, which is how a session in
	// flight becomes a clean hangup rather than a killed process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := cli.NewCommandLogger(slog.LevelInfo)
	return commands.Root().Execute(ctx, os.Args[1:], logger)
}
