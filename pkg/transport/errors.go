// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"

	"go.bug.st/serial"
)

var (
	// ErrUnavailable means the port could not be opened or locked.
	ErrUnavailable = errors.New("port unavailable")
	// ErrTimeout means no reply arrived within the link timeout.
	ErrTimeout = errors.New("timeout waiting for response")
	// ErrIO is a lower-level read or write failure.
	ErrIO = errors.New("i/o failure")
)

// Error carries the failed operation and link name. Kind is one of the
// sentinel errors above; Err is the underlying cause, if any.
type Error struct {
	Op   string
	Port string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Port, e.Kind, e.Err)
}

// Unwrap exposes both the sentinel kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// classifyOpen maps an open failure to a transport error. Every open
// failure is Unavailable; serial.PortError codes stay reachable via
// errors.As for callers that want the reason.
func classifyOpen(port string, err error) *Error {
	return &Error{Op: "open", Port: port, Kind: ErrUnavailable, Err: err}
}

// classifyIO maps a read/write failure. A port closed underneath us is
// reported as Unavailable so callers can reconnect.
func classifyIO(op, port string, err error) *Error {
	var pe *serial.PortError
	if errors.As(err, &pe) {
		switch pe.Code() {
		case serial.PortClosed, serial.PortNotFound, serial.InvalidSerialPort:
			return &Error{Op: op, Port: port, Kind: ErrUnavailable, Err: err}
		}
	}
	return &Error{Op: op, Port: port, Kind: ErrIO, Err: err}
}

func timeoutError(port string) *Error {
	return &Error{Op: "request", Port: port, Kind: ErrTimeout}
}
