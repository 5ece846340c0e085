// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package video

import "fmt"

// Downscale resizes a packed RGB24 buffer to the target dimensions
// using nearest-neighbor sampling. The source pixel for destination
// column x is column x*srcWidth/dstWidth (and likewise for rows), so
// the result covers the full source extent without interpolation.
//
// The returned buffer is always freshly allocated and exactly
// dstWidth*dstHeight*3 bytes; identity dimensions return a copy.
func Downscale(src []byte, srcWidth, srcHeight, dstWidth, dstHeight int) ([]byte, error) {
	if srcWidth <= 0 || srcHeight <= 0 || dstWidth <= 0 || dstHeight <= 0 {
		return nil, fmt.Errorf("downscale: invalid dimensions %dx%d -> %dx%d",
			srcWidth, srcHeight, dstWidth, dstHeight)
	}
	if len(src) != PixelLength(srcWidth, srcHeight) {
		return nil, fmt.Errorf("downscale: source is %d bytes, want %d for %dx%d",
			len(src), PixelLength(srcWidth, srcHeight), srcWidth, srcHeight)
	}

	dst := make([]byte, PixelLength(dstWidth, dstHeight))

	if srcWidth == dstWidth && srcHeight == dstHeight {
		copy(dst, src)
		return dst, nil
	}

	for y := 0; y < dstHeight; y++ {
		srcY := y * srcHeight / dstHeight
		srcRow := srcY * srcWidth * BytesPerPixel
		dstRow := y * dstWidth * BytesPerPixel
		for x := 0; x < dstWidth; x++ {
			srcX := x * srcWidth / dstWidth
			srcOffset := srcRow + srcX*BytesPerPixel
			dstOffset := dstRow + x*BytesPerPixel
			dst[dstOffset] = src[srcOffset]
			dst[dstOffset+1] = src[srcOffset+1]
			dst[dstOffset+2] = src[srcOffset+2]
		}
	}
	return dst, nil
}

// FitDimensions returns the largest dimensions preserving srcWidth x
// srcHeight's aspect ratio that fit within maxWidth x maxHeight. A
// source already within the box is returned unchanged (frames are
// never upscaled for transmission).
func FitDimensions(srcWidth, srcHeight, maxWidth, maxHeight int) (int, int) {
	if srcWidth <= maxWidth && srcHeight <= maxHeight {
		return srcWidth, srcHeight
	}

	width := maxWidth
	height := srcHeight * maxWidth / srcWidth
	if height > maxHeight {
		height = maxHeight
		width = srcWidth * maxHeight / srcHeight
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height
}
