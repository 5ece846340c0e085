// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui holds the shared terminal look for telescreen's
// interactive surfaces: one color theme used by the rooms picker and
// the open banner so both read as parts of the same program. Colors
// are lipgloss ANSI 256 codes for broad terminal compatibility.
package tui
