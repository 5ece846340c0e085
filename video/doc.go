// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package video holds the frame model and the pixel-level operations
// applied to frames between capture and the wire: change detection,
// nearest-neighbor downscaling, and payload compression.
//
// All pixel data is packed RGB24: three bytes per pixel, row-major,
// no padding. A frame of width W and height H is exactly W*H*3 bytes.
//
// The operations here are pure functions over byte slices. Nothing in
// this package touches devices, sockets, or terminals.
package video
