// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat implements the "telescreen chat" subcommand group:
// open and join restricted to text. The variants run the same session
// machinery as a full call with capture and render left out, so a
// chat participant still occupies one of the room's two seats and a
// video peer on the far side simply goes unrendered.
package chat
