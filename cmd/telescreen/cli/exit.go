// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitCodeRoomFull is returned when the room already holds two
// participants. Scripts can distinguish "the call happened and ended"
// (0), "something broke" (1), and "try again later" (2).
const ExitCodeRoomFull = 2

// ExitError signals a non-zero exit code without printing an extra
// error message. When a command handler returns an ExitError, main
// exits with the specified code without printing the error string;
// the command is expected to have already written its own output.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this interface on
// returned errors to distinguish "handled non-zero exit" from
// "unexpected error to display".
func (e *ExitError) ExitCode() int {
	return e.Code
}
