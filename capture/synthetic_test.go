// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"context"
	"testing"

	"github.com/telescreen-dev/telescreen/video"
)

func TestSyntheticDeviceDimensions(t *testing.T) {
	t.Parallel()

	device := NewSyntheticDevice(32, 16)
	frame, err := device.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := frame.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got, want := len(frame.Pixels), video.PixelLength(32, 16); got != want {
		t.Errorf("pixel length = %d, want %d", got, want)
	}
	if got, want := device.Format(), (Format{Width: 32, Height: 16}); got != want {
		t.Errorf("Format() = %v, want %v", got, want)
	}
}

func TestSyntheticDeviceDefaultsDimensions(t *testing.T) {
	t.Parallel()

	device := NewSyntheticDevice(0, 0)
	if got, want := device.Format(), (Format{Width: 640, Height: 480}); got != want {
		t.Errorf("Format() = %v, want %v", got, want)
	}
}

func TestSyntheticDeviceAnimates(t *testing.T) {
	t.Parallel()

	device := NewSyntheticDevice(32, 16)
	first, err := device.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	// The device reuses its buffer, so keep a copy.
	firstCopy := first.Clone()

	second, err := device.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if bytes.Equal(firstCopy.Pixels, second.Pixels) {
		t.Error("consecutive frames are identical, want animation")
	}
}

func TestSyntheticDeviceDeterministic(t *testing.T) {
	t.Parallel()

	a := NewSyntheticDevice(32, 16)
	b := NewSyntheticDevice(32, 16)
	for i := 0; i < 3; i++ {
		frameA, err := a.ReadFrame(context.Background())
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		frameB, err := b.ReadFrame(context.Background())
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if !bytes.Equal(frameA.Pixels, frameB.Pixels) {
			t.Fatalf("frame %d differs between identical devices", i)
		}
	}
}

func TestSyntheticOpener(t *testing.T) {
	t.Parallel()

	device, err := SyntheticOpener{}.Open(context.Background(), Candidate{Width: 320, Height: 240})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got, want := device.Format(), (Format{Width: 320, Height: 240}); got != want {
		t.Errorf("constrained Format() = %v, want %v", got, want)
	}

	device, err = SyntheticOpener{}.Open(context.Background(), Candidate{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got, want := device.Format(), (Format{Width: 640, Height: 480}); got != want {
		t.Errorf("unconstrained Format() = %v, want %v", got, want)
	}
}
