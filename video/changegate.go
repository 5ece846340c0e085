// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package video

// Default change gate tuning. A pixel whose summed channel delta
// exceeds DefaultPixelDelta counts as changed; the gate opens when
// more than DefaultThresholdPercent of sampled pixels changed.
const (
	DefaultPixelDelta       = 30
	DefaultThresholdPercent = 2.0
)

// Sampling stride tiers by frame pixel count. Small frames are
// scanned densely; large frames are subsampled to keep the gate cheap
// at capture rate.
const (
	strideTierMedium = 100_000
	strideTierLarge  = 400_000
)

// ChangeGate decides whether a captured frame differs enough from the
// previously transmitted one to be worth sending. It is a pure
// function of the two pixel buffers: symmetric in its arguments, and
// false for identical input.
type ChangeGate struct {
	// PixelDelta is the per-pixel change threshold: a sampled pixel
	// counts as changed when |ΔR|+|ΔG|+|ΔB| exceeds it.
	PixelDelta int

	// ThresholdPercent is the percentage of sampled pixels that must
	// change for the gate to open.
	ThresholdPercent float64
}

// NewChangeGate returns a gate with the default tuning.
func NewChangeGate() ChangeGate {
	return ChangeGate{
		PixelDelta:       DefaultPixelDelta,
		ThresholdPercent: DefaultThresholdPercent,
	}
}

// Changed reports whether current differs materially from previous.
//
// Buffers of different lengths (a resolution change) and an empty
// previous buffer always read as changed. The scan exits early the
// moment the changed-pixel count crosses the threshold, so a frame
// with broad motion costs far less than a full scan.
func (g ChangeGate) Changed(current, previous []byte) bool {
	if len(previous) == 0 {
		return true
	}
	if len(current) != len(previous) {
		return true
	}

	pixels := len(current) / BytesPerPixel
	stride := sampleStride(pixels)
	sampled := (pixels + stride - 1) / stride

	// The gate opens strictly above the percentage bound. bound is the
	// number of changed samples that must be exceeded.
	bound := int(float64(sampled) * g.ThresholdPercent / 100.0)

	changed := 0
	for pixel := 0; pixel < pixels; pixel += stride {
		offset := pixel * BytesPerPixel
		delta := absDiff(current[offset], previous[offset]) +
			absDiff(current[offset+1], previous[offset+1]) +
			absDiff(current[offset+2], previous[offset+2])
		if delta > g.PixelDelta {
			changed++
			if changed > bound {
				return true
			}
		}
	}
	return false
}

// sampleStride returns the pixel sampling stride for a frame of the
// given pixel count. Three tiers: small frames are scanned densely,
// large frames sparsely.
func sampleStride(pixels int) int {
	switch {
	case pixels < strideTierMedium:
		return 1
	case pixels < strideTierLarge:
		return 4
	default:
		return 8
	}
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
