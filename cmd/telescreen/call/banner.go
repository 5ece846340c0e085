// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/telescreen-dev/telescreen/lib/tui"
)

// renderBanner builds the credentials block "open" prints before the
// session starts. The ticket text stands on its own plain line so it
// survives copy-paste; the box holds the parts meant for the eye. An
// empty code means registry save failed, so the code row is omitted
// rather than shown as something that will not resolve.
func renderBanner(label, code, ticketText string) string {
	theme := tui.DefaultTheme
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.HeaderForeground)
	faint := lipgloss.NewStyle().Foreground(theme.FaintText)
	codeStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.Accent)
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.BorderColor).
		Padding(0, 2)

	heading := "Room open"
	if label != "" {
		heading = "Room open: " + label
	}

	lines := []string{title.Render(heading)}
	if code != "" {
		lines = append(lines,
			faint.Render("code  ")+codeStyle.Render(code),
			faint.Render("rejoin from this machine with 'telescreen rooms' or 'telescreen join "+code+"'"))
	}

	var banner strings.Builder
	banner.WriteString(box.Render(strings.Join(lines, "\n")))
	banner.WriteString("\n\n")
	banner.WriteString("ticket for your caller:\n\n")
	fmt.Fprintf(&banner, "  %s\n\n", ticketText)
	banner.WriteString(faint.Render("waiting for a caller, Ctrl-C hangs up"))
	return banner.String()
}
