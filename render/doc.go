// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package render paints remote video into a terminal.
//
// Each character cell is a '▀' half-block covering two vertically
// stacked pixels: foreground colors the top pixel, background the
// bottom. Frames are downscaled by an integer factor to fit the
// terminal, centered with padding, and repainted in place from the
// home position; the full clear-and-redraw is reserved for the first
// frame and for resizes. An SGR sequence is emitted only when a cell's
// color pair differs from its predecessor in the row, which keeps the
// escape-byte volume proportional to color variety rather than area.
//
// The color profile decides the palette: truecolor terminals get
// 24-bit SGR, 256-color terminals get the same half-blocks with
// quantized colors, and colorless terminals fall back to a brightness
// ramp of plain ASCII. The bottom row carries a status line with the
// peer identity, a frame-rate estimate, and the latest chat line.
//
// Pipeline implements the session's Display contract. It is not safe
// for concurrent use: the session render loop is its single caller.
package render
