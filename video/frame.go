// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package video

import "fmt"

// BytesPerPixel is the size of one packed RGB24 pixel.
const BytesPerPixel = 3

// Frame is one video frame in packed RGB24. Pixels is row-major,
// top-left origin, exactly Width*Height*3 bytes.
//
// Frames returned by the capture layer reference reusable buffers;
// callers that need the pixels beyond the next few reads must Clone.
type Frame struct {
	Width  int
	Height int
	Pixels []byte
}

// PixelLength returns the byte length of a packed RGB24 frame with
// the given dimensions.
func PixelLength(width, height int) int {
	return width * height * BytesPerPixel
}

// NewFrame allocates a zeroed frame of the given dimensions.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pixels: make([]byte, PixelLength(width, height)),
	}
}

// Validate checks that the frame's pixel buffer matches its declared
// dimensions.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	if len(f.Pixels) != PixelLength(f.Width, f.Height) {
		return fmt.Errorf("frame pixel buffer is %d bytes, want %d for %dx%d",
			len(f.Pixels), PixelLength(f.Width, f.Height), f.Width, f.Height)
	}
	return nil
}

// Clone returns a deep copy of the frame with its own pixel buffer.
func (f *Frame) Clone() *Frame {
	pixels := make([]byte, len(f.Pixels))
	copy(pixels, f.Pixels)
	return &Frame{Width: f.Width, Height: f.Height, Pixels: pixels}
}
