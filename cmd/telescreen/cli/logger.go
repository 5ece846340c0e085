// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates the structured logger for CLI commands,
// writing to stderr. When stderr is a terminal, it uses
// slog.TextHandler for human-readable output; when stderr is piped or
// redirected it uses slog.JSONHandler for machine-parseable output.
//
// Callers scope the logger with component context via With:
//
//	logger := cli.NewCommandLogger(cfg.SlogLevel()).With("component", "gossip")
func NewCommandLogger(level slog.Level) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

// NewFileLogger creates a logger appending JSON records to the file at
// path, creating it if needed. A live video session owns the terminal,
// so commands route their logs here when log.file is configured. The
// returned close function releases the file and must be called before
// exit.
func NewFileLogger(level slog.Level, path string) (*slog.Logger, func() error, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(handler), file.Close, nil
}
