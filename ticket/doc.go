// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package ticket implements room bootstrap descriptors and the saved
// room registry.
//
// A ticket names a room topic and the peers already in it, with their
// direct addresses. It travels out of band (pasted into a chat or read
// over the phone), so the text form is base32: case-insensitive to
// parse, safe in URLs, no padding to trip up copy-paste.
//
// Short codes are derived, not allocated: the code is a prefix of the
// BLAKE3 digest of the canonical ticket encoding, so both parties
// compute the same code without coordination. The registry maps codes
// back to full tickets on this machine only; it is a local convenience,
// not a directory service.
package ticket
