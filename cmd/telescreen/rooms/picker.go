// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package rooms

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/telescreen-dev/telescreen/lib/tui"
	"github.com/telescreen-dev/telescreen/ticket"
)

const labelColumnWidth = 24

// pickerItem is one saved room row.
type pickerItem struct {
	code  string
	entry ticket.Entry
}

// Model is the bubbletea model for the room picker: a flat list, a
// cursor, and a selection committed on Enter.
type Model struct {
	items []pickerItem
	keys  KeyMap
	theme tui.Theme

	width  int
	height int
	ready  bool

	cursor   int
	selected string
}

func newPicker(items []pickerItem) Model {
	return Model{
		items: items,
		keys:  DefaultKeyMap,
		theme: tui.DefaultTheme,
	}
}

// Selected returns the code chosen on Enter, or "" when the picker
// was quit without choosing.
func (model Model) Selected() string { return model.selected }

func (model Model) Init() tea.Cmd {
	return nil
}

func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true

	case tea.KeyMsg:
		switch {
		case key.Matches(message, model.keys.Quit):
			return model, tea.Quit

		case key.Matches(message, model.keys.Up):
			if model.cursor > 0 {
				model.cursor--
			}

		case key.Matches(message, model.keys.Down):
			if model.cursor < len(model.items)-1 {
				model.cursor++
			}

		case key.Matches(message, model.keys.Home):
			model.cursor = 0

		case key.Matches(message, model.keys.End):
			model.cursor = max(0, len(model.items)-1)

		case key.Matches(message, model.keys.Select):
			if len(model.items) > 0 {
				model.selected = model.items[model.cursor].code
			}
			return model, tea.Quit
		}
	}
	return model, nil
}

func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground)
	normal := lipgloss.NewStyle().Foreground(model.theme.NormalText)
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	accent := lipgloss.NewStyle().Foreground(model.theme.Accent)
	selected := lipgloss.NewStyle().
		Background(model.theme.SelectedBackground).
		Foreground(model.theme.SelectedForeground)
	help := lipgloss.NewStyle().Foreground(model.theme.HelpText)

	var view strings.Builder
	view.WriteString(header.Render("Saved rooms"))
	view.WriteString("\n\n")

	for index, item := range model.items {
		label := item.entry.Label
		if label == "" {
			label = "(unlabeled)"
		}
		row := fmt.Sprintf("%s  %-*s  %s",
			item.code,
			labelColumnWidth, ansi.Truncate(label, labelColumnWidth, "…"),
			item.entry.CreatedAt.Format("2006-01-02 15:04"))

		if index == model.cursor {
			view.WriteString(selected.Render("> " + row))
		} else {
			// Accent the code only on unselected rows; the selection
			// background carries its own foreground.
			view.WriteString("  " + accent.Render(item.code) + normal.Render(row[len(item.code):]))
		}
		view.WriteString("\n")
	}

	view.WriteString("\n")
	view.WriteString(faint.Render(fmt.Sprintf("%d saved", len(model.items))))
	view.WriteString("\n")
	view.WriteString(help.Render(" q quit  ↑↓/jk move  Enter join  g/G top/bottom"))
	return view.String()
}
