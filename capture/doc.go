// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture reads frames from a camera and keeps the frame
// stream alive across the failures cheap webcams actually produce.
//
// The layering:
//
//   - [Device] is a source of RGB24 frames: the GStreamer webcam in
//     capture/webcam, the synthetic test-pattern generator here, or a
//     scripted fake in tests.
//   - [Opener] turns a probe [Candidate] into an open Device.
//   - [Source] is the resilience layer: it walks the candidate ladder
//     at open time, rotates reads through a small buffer pool, keeps a
//     backup of the last good frame to serve through transient device
//     errors, and tracks device health.
//
// The health model is deliberately blunt. Transient failures serve the
// backup frame and bump a counter; more than five consecutive failures
// mark the device unhealthy, which halves the device read rate (every
// other call is served from backup without touching the device). A
// single successful read restores full health.
package capture
