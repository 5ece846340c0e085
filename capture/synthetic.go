// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"

	"github.com/telescreen-dev/telescreen/video"
)

// SyntheticDevice generates an animated test pattern: a diagonal
// color gradient with a bright horizontal band sweeping down the
// frame. It backs the --no-camera mode and the fallback path when no
// real camera opens, so a session can always be demonstrated.
//
// The pattern is a pure function of the frame counter, which makes
// the stream deterministic for tests and guarantees every frame
// differs from the previous one (the change gate will pass it).
type SyntheticDevice struct {
	width  int
	height int
	tick   int
	buffer []byte
}

var _ Device = (*SyntheticDevice)(nil)

// NewSyntheticDevice returns a generator producing width x height
// frames. Non-positive dimensions take 640x480.
func NewSyntheticDevice(width, height int) *SyntheticDevice {
	if width <= 0 || height <= 0 {
		width, height = 640, 480
	}
	return &SyntheticDevice{
		width:  width,
		height: height,
		buffer: make([]byte, video.PixelLength(width, height)),
	}
}

// ReadFrame renders the next pattern frame. The returned frame reuses
// the device's internal buffer, per the Device contract.
func (d *SyntheticDevice) ReadFrame(ctx context.Context) (*video.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.render()
	d.tick++
	return &video.Frame{Width: d.width, Height: d.height, Pixels: d.buffer}, nil
}

func (d *SyntheticDevice) render() {
	maxX := d.width - 1
	if maxX < 1 {
		maxX = 1
	}
	maxY := d.height - 1
	if maxY < 1 {
		maxY = 1
	}
	bandCenter := (d.tick * 3) % d.height
	offset := 0
	for y := 0; y < d.height; y++ {
		inBand := abs(y-bandCenter) <= 4
		rowGreen := byte(y * 255 / maxY)
		for x := 0; x < d.width; x++ {
			red := byte(x * 255 / maxX)
			green := rowGreen
			blue := byte((x + y + d.tick*4) & 0xFF)
			if inBand {
				red, green, blue = 255, 255, byte(255-blue/4)
			}
			d.buffer[offset] = red
			d.buffer[offset+1] = green
			d.buffer[offset+2] = blue
			offset += video.BytesPerPixel
		}
	}
}

func (d *SyntheticDevice) Format() Format {
	return Format{Width: d.width, Height: d.height}
}

func (d *SyntheticDevice) Close() error {
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// SyntheticOpener satisfies Opener with synthetic devices so the
// no-camera path can reuse the normal Source plumbing. Candidates
// always succeed; constrained dimensions are honored, unconstrained
// ones take the generator default.
type SyntheticOpener struct{}

var _ Opener = SyntheticOpener{}

func (SyntheticOpener) Open(ctx context.Context, c Candidate) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewSyntheticDevice(c.Width, c.Height), nil
}
