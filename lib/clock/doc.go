// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface parameter instead of calling
// time.Now, time.After, time.NewTicker, time.AfterFunc, or time.Sleep
// directly. In production, Real() provides the standard library
// behavior. In tests, Fake() provides a deterministic clock that
// advances only when Advance is called.
//
// Telescreen's timing behavior is all policy: camera open retries back
// off at a fixed interval, the capture loop ticks at the frame rate,
// keep-alives broadcast on a low-rate timer, rejection replies are
// spaced by short delays, and fragment reassembly buffers expire. Every
// one of those policies is tested against a FakeClock rather than wall
// time.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Source struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	s := &Source{clock: clock.Real()}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	s := &Source{clock: c}
//	// ... start goroutines ...
//	c.WaitForTimers(1)                  // wait for a timer to register
//	c.Advance(300 * time.Millisecond)   // fire it deterministically
//
// # FakeClock Synchronization
//
// When a goroutine calls Sleep, After, NewTicker, or AfterFunc on a
// FakeClock, it registers a pending timer. Use WaitForTimers to block
// until a specific number of timers are registered before calling
// Advance. This eliminates the race between timer registration and
// time advancement that plagues tests using time.Sleep for
// synchronization.
package clock
