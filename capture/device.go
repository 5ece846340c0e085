// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"fmt"

	"github.com/telescreen-dev/telescreen/video"
)

// Format describes the negotiated output of an open device. Frames
// are always packed RGB24 regardless of what the device produces
// natively; Width and Height are the dimensions every subsequent
// frame will carry.
type Format struct {
	Width  int
	Height int
}

// Candidate is one rung of the open ladder: a device index plus the
// source format to request from it. PixelFormat names the native
// format to constrain the device to ("YUY2", "RGB", "MJPG"); empty
// means unconstrained, letting the device pick its preferred mode.
// Width and Height of zero likewise leave the dimensions to the
// device.
type Candidate struct {
	DeviceIndex int
	Width       int
	Height      int
	PixelFormat string
}

func (c Candidate) String() string {
	if c.PixelFormat == "" && c.Width == 0 {
		return fmt.Sprintf("device %d (native)", c.DeviceIndex)
	}
	if c.Width == 0 {
		return fmt.Sprintf("device %d %s", c.DeviceIndex, c.PixelFormat)
	}
	return fmt.Sprintf("device %d %dx%d %s", c.DeviceIndex, c.Width, c.Height, c.PixelFormat)
}

// Device is an open camera. ReadFrame blocks until the next frame is
// available or ctx is done. The returned frame's pixel buffer may be
// reused by the device on the next read; callers that keep the bytes
// must copy them out first ([Source] does).
type Device interface {
	ReadFrame(ctx context.Context) (*video.Frame, error)
	Format() Format
	Close() error
}

// Opener opens a device for one ladder candidate. Implementations
// should fail fast when the candidate cannot be satisfied; [Source]
// handles retries and moving down the ladder.
type Opener interface {
	Open(ctx context.Context, c Candidate) (Device, error)
}

// DefaultLadder returns the open ladder for the given device indices,
// cheapest request first. Each format tier is tried on every index
// before moving to the next tier, so a low-resolution mode on a second
// camera beats a high-resolution mode on the first. The final rungs
// are unconstrained, accepting whatever each device offers natively.
func DefaultLadder(indices []int) []Candidate {
	tiers := []struct {
		width, height int
		pixelFormat   string
	}{
		{320, 240, "YUY2"},
		{320, 240, "RGB"},
		{640, 480, "YUY2"},
		{320, 240, "MJPG"},
	}
	ladder := make([]Candidate, 0, (len(tiers)+1)*len(indices))
	for _, tier := range tiers {
		for _, index := range indices {
			ladder = append(ladder, Candidate{
				DeviceIndex: index,
				Width:       tier.width,
				Height:      tier.height,
				PixelFormat: tier.pixelFormat,
			})
		}
	}
	for _, index := range indices {
		ladder = append(ladder, Candidate{DeviceIndex: index})
	}
	return ladder
}
