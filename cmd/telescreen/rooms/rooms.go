// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package rooms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/telescreen-dev/telescreen/cmd/telescreen/call"
	"github.com/telescreen-dev/telescreen/cmd/telescreen/cli"
	"github.com/telescreen-dev/telescreen/lib/config"
	"github.com/telescreen-dev/telescreen/ticket"
)

// Command returns the "rooms" subcommand.
func Command() *cli.Command {
	var configPath string
	var pick bool

	return &cli.Command{
		Name:    "rooms",
		Summary: "List saved rooms",
		Description: `List rooms saved in the local registry.

Every "telescreen open" saves its room under an 8-character short
code; this command shows what is saved. Codes resolve only on this
machine, so the list is personal history, not a directory.

With --pick the list becomes interactive: Enter joins the highlighted
room, q leaves without joining.`,
		Usage: "telescreen rooms [flags]",
		Examples: []cli.Example{
			{
				Description: "Show saved rooms",
				Command:     "telescreen rooms",
			},
			{
				Description: "Pick one interactively and join it",
				Command:     "telescreen rooms --pick",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("rooms", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file path")
			flagSet.BoolVar(&pick, "pick", false, "pick a room interactively and join it")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			path, err := call.RegistryPath(cfg)
			if err != nil {
				return err
			}
			entries, err := ticket.NewFileStore(path).Load()
			if err != nil {
				return err
			}
			items := sortedItems(entries)
			if len(items) == 0 {
				fmt.Println("no saved rooms")
				return nil
			}

			if pick {
				return runPicker(ctx, configPath, items)
			}
			return printTable(os.Stdout, items)
		},
	}
}

// sortedItems flattens the registry newest-first so the room most
// likely wanted sits on top of both the table and the picker. Ties
// break on code for a stable listing.
func sortedItems(entries map[string]ticket.Entry) []pickerItem {
	items := make([]pickerItem, 0, len(entries))
	for code, entry := range entries {
		items = append(items, pickerItem{code: code, entry: entry})
	}
	slices.SortFunc(items, func(a, b pickerItem) int {
		if !a.entry.CreatedAt.Equal(b.entry.CreatedAt) {
			if a.entry.CreatedAt.After(b.entry.CreatedAt) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.code, b.code)
	})
	return items
}

func printTable(w io.Writer, items []pickerItem) error {
	writer := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "CODE\tLABEL\tCREATED")
	for _, item := range items {
		fmt.Fprintf(writer, "%s\t%s\t%s\n",
			item.code,
			item.entry.Label,
			item.entry.CreatedAt.Format("2006-01-02 15:04"))
	}
	return writer.Flush()
}

func runPicker(ctx context.Context, configPath string, items []pickerItem) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("interactive picker needs a terminal (drop --pick when piping)")
	}

	program := tea.NewProgram(newPicker(items), tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("run picker: %w", err)
	}
	chosen := final.(Model).Selected()
	if chosen == "" {
		return nil
	}
	return call.RunJoin(ctx, call.JoinOptions{ConfigPath: configPath, Target: chosen})
}
