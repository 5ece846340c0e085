// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"strings"
)

// transientSignatures are substrings of driver error text that mark a
// read failure as a momentary hiccup rather than a dead device. The
// hex code and the MFT phrases are the Media Foundation stall
// signatures seen from cheap UVC webcams on Windows backends; the
// bare "hardware" entry catches the same class of message from other
// drivers. Matching is case-insensitive.
var transientSignatures = []string{
	"0xc00d3704",
	"hardware mft failed to start streaming",
	"mft",
	"hardware",
}

// IsTransient reports whether err looks like a momentary device
// failure worth papering over with the backup frame. Unknown errors
// are not transient; the caller gives those one immediate retry and
// then treats them the same way, so misclassification only costs one
// extra read attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, signature := range transientSignatures {
		if strings.Contains(text, signature) {
			return true
		}
	}
	return false
}

// OpenError reports that every rung of the open ladder failed. It
// keeps the last error per candidate so the operator can see which
// devices exist but refuse which modes.
type OpenError struct {
	Failures []CandidateFailure
}

// CandidateFailure is the final error for one ladder candidate after
// all open attempts were exhausted.
type CandidateFailure struct {
	Candidate Candidate
	Err       error
}

func (e *OpenError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no camera could be opened (%d candidates tried)", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n  %s: %v", f.Candidate, f.Err)
	}
	return b.String()
}

// Unwrap exposes the last candidate's error, the unconstrained
// request at the bottom of the ladder, for errors.Is chains.
func (e *OpenError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[len(e.Failures)-1].Err
}
