// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Telescreen packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. These are
// the only place in the test suite where real wall-clock timeouts are
// used; everything else runs against lib/clock's FakeClock.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation. Use it instead of time.Now() when tests need unique
// chat lines, room labels, or payloads distinguishable across
// concurrent subtests.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Telescreen-internal dependencies.
package testutil
