// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package rtc

import (
	"errors"
	"fmt"

	"github.com/atrium-rtc/atrium/ffi"
)

// ErrNotConnected is returned by participant operations on a room
// whose session has ended or never established.
var ErrNotConnected = errors.New("rtc: not connected")

// ConnectError reports a connect rejected by the engine. Message is
// the engine's error string, verbatim.
//
//	var connectErr *rtc.ConnectError
//	if errors.As(err, &connectErr) { ... }
type ConnectError struct {
	Message string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("rtc: connect failed: %s", e.Message)
}

// IsConnectError checks whether err is a *ConnectError.
func IsConnectError(err error) bool {
	var connectErr *ConnectError
	return errors.As(err, &connectErr)
}

// RequestError reports an engine-rejected participant operation. Op
// names the operation; Message is the engine's error string.
type RequestError struct {
	Op      string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("rtc: %s rejected by engine: %s", e.Op, e.Message)
}

// consistencyError marks a lookup miss on an event kind that assumes
// presence: an internal fault between the engine's reported state and
// the mirrors, never a user-facing error. The dispatch loop logs it
// and drops the event.
type consistencyError struct {
	kind    ffi.RoomEventKind
	subject string
}

func (e *consistencyError) Error() string {
	return fmt.Sprintf("rtc: %s references unknown %s", e.kind, e.subject)
}
