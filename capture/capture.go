// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/telescreen-dev/telescreen/lib/clock"
	"github.com/telescreen-dev/telescreen/video"
)

const (
	// DefaultOpenAttempts is how many times each ladder candidate is
	// tried before moving to the next rung.
	DefaultOpenAttempts = 5

	// DefaultOpenBackoff is the pause between open attempts on the
	// same candidate. Webcams that were just released by another
	// process often need a beat before they accept a new open.
	DefaultOpenBackoff = 300 * time.Millisecond

	// DefaultMaxConsecutiveFailures is the failure run length beyond
	// which the device is marked unhealthy.
	DefaultMaxConsecutiveFailures = 5

	// poolSize is the number of reusable frame buffers reads rotate
	// through. A returned frame stays valid until poolSize subsequent
	// reads; the session loop hands frames off well before that.
	poolSize = 3
)

// Config controls ladder walking and failure handling. Zero fields
// take the defaults above; an empty Ladder takes DefaultLadder over
// device indices 0 and 1.
type Config struct {
	Ladder                 []Candidate
	OpenAttempts           int
	OpenBackoff            time.Duration
	MaxConsecutiveFailures int
}

func (c Config) withDefaults() Config {
	if len(c.Ladder) == 0 {
		c.Ladder = DefaultLadder([]int{0, 1})
	}
	if c.OpenAttempts <= 0 {
		c.OpenAttempts = DefaultOpenAttempts
	}
	if c.OpenBackoff <= 0 {
		c.OpenBackoff = DefaultOpenBackoff
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	return c
}

// Source reads frames from an open device and absorbs its failures.
// It is not safe for concurrent use; the session loop is the only
// reader.
type Source struct {
	device Device
	format Format
	logger *slog.Logger

	maxConsecutiveFailures int

	pool      [poolSize][]byte
	poolIndex int

	backup *video.Frame

	consecutiveFailures int
	unhealthy           bool
	unhealthyTick       int
}

// Open walks the candidate ladder until a device opens and produces
// one good probe frame, then wraps it in a Source. Each candidate
// gets cfg.OpenAttempts tries with cfg.OpenBackoff between them; a
// candidate that opens but fails the probe read is closed and counts
// as failed. The probe frame seeds the backup so the very first
// transient read error already has something to serve.
func Open(ctx context.Context, opener Opener, cfg Config, clk clock.Clock, logger *slog.Logger) (*Source, error) {
	cfg = cfg.withDefaults()
	openErr := &OpenError{}
	for _, candidate := range cfg.Ladder {
		var lastErr error
		for attempt := 1; attempt <= cfg.OpenAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			device, err := opener.Open(ctx, candidate)
			if err == nil {
				source, probeErr := probe(ctx, device, candidate, cfg, logger)
				if probeErr == nil {
					return source, nil
				}
				err = probeErr
			}
			lastErr = err
			logger.Debug("camera open attempt failed",
				"candidate", candidate.String(),
				"attempt", attempt,
				"error", err)
			if attempt < cfg.OpenAttempts {
				clk.Sleep(cfg.OpenBackoff)
			}
		}
		openErr.Failures = append(openErr.Failures, CandidateFailure{
			Candidate: candidate,
			Err:       lastErr,
		})
	}
	return nil, openErr
}

// probe verifies a freshly opened device by reading one frame and
// builds the Source around it. The device is closed on failure.
func probe(ctx context.Context, device Device, candidate Candidate, cfg Config, logger *slog.Logger) (*Source, error) {
	frame, err := device.ReadFrame(ctx)
	if err == nil {
		err = frame.Validate()
	}
	if err != nil {
		device.Close()
		return nil, fmt.Errorf("probe read: %w", err)
	}
	source := &Source{
		device:                 device,
		format:                 device.Format(),
		logger:                 logger,
		maxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		backup:                 frame.Clone(),
	}
	logger.Info("camera open",
		"candidate", candidate.String(),
		"width", source.format.Width,
		"height", source.format.Height)
	return source, nil
}

// Format returns the negotiated device format.
func (s *Source) Format() Format {
	return s.format
}

// Healthy reports whether the device is currently trusted. Unhealthy
// sources still produce frames (from the backup) but are read at half
// rate.
func (s *Source) Healthy() bool {
	return !s.unhealthy
}

// Close releases the underlying device.
func (s *Source) Close() error {
	return s.device.Close()
}

// Frame returns the next frame to transmit. On a good device read the
// bytes are copied into the next pool buffer and into the backup; the
// returned frame stays valid until three subsequent calls. On a
// transient device error the backup is served instead. Any other
// error gets one immediate retry before it too falls back to the
// backup. The error return is non-nil only when there is nothing to
// serve at all, which cannot happen after a successful Open.
func (s *Source) Frame(ctx context.Context) (*video.Frame, error) {
	if s.unhealthy {
		// Half-rate mode: touch the device only every other call so a
		// wedged driver cannot stall the session loop on every tick.
		s.unhealthyTick++
		if s.unhealthyTick%2 == 1 {
			return s.serveBackup()
		}
	}

	frame, err := s.device.ReadFrame(ctx)
	if err != nil && !IsTransient(err) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug("camera read failed, retrying once", "error", err)
		frame, err = s.device.ReadFrame(ctx)
	}
	if err == nil {
		err = frame.Validate()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.recordFailure(err)
		return s.serveBackup()
	}

	s.recordSuccess()
	out := s.copyToPool(frame)
	s.copyToBackup(frame)
	return out, nil
}

func (s *Source) recordFailure(err error) {
	s.consecutiveFailures++
	s.logger.Debug("camera read failed, serving backup frame",
		"error", err,
		"consecutive_failures", s.consecutiveFailures)
	if !s.unhealthy && s.consecutiveFailures > s.maxConsecutiveFailures {
		s.unhealthy = true
		s.unhealthyTick = 0
		s.logger.Warn("camera unhealthy, halving read rate",
			"consecutive_failures", s.consecutiveFailures)
	}
}

func (s *Source) recordSuccess() {
	if s.unhealthy {
		s.logger.Info("camera recovered",
			"after_failures", s.consecutiveFailures)
	}
	s.consecutiveFailures = 0
	s.unhealthy = false
	s.unhealthyTick = 0
}

// serveBackup returns the last good frame through the pool so the
// returned buffer has the same lifetime contract as a live read.
func (s *Source) serveBackup() (*video.Frame, error) {
	if s.backup == nil {
		return nil, fmt.Errorf("no backup frame available")
	}
	return s.copyToPool(s.backup), nil
}

// copyToPool copies frame's pixels into the next pool buffer and
// returns a frame backed by it.
func (s *Source) copyToPool(frame *video.Frame) *video.Frame {
	buffer := s.pool[s.poolIndex]
	if len(buffer) != len(frame.Pixels) {
		buffer = make([]byte, len(frame.Pixels))
		s.pool[s.poolIndex] = buffer
	}
	s.poolIndex = (s.poolIndex + 1) % poolSize
	copy(buffer, frame.Pixels)
	return &video.Frame{Width: frame.Width, Height: frame.Height, Pixels: buffer}
}

func (s *Source) copyToBackup(frame *video.Frame) {
	if s.backup == nil || len(s.backup.Pixels) != len(frame.Pixels) {
		s.backup = frame.Clone()
		return
	}
	s.backup.Width = frame.Width
	s.backup.Height = frame.Height
	copy(s.backup.Pixels, frame.Pixels)
}
