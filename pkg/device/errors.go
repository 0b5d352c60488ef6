// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotReady means the current mode does not permit the operation
	ErrNotReady = errors.New("device not ready")
	// ErrInvalidInput means a stage or current was out of range. Nothing
	// was sent to the device.
	ErrInvalidInput = errors.New("invalid input")
)

// Error carries the context of a failed controller operation. Err is a
// sentinel above or the underlying transport/protocol error.
type Error struct {
	Op        string
	Mode      Mode
	Stage     int
	CurrentMA int
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Stage > 0 {
		fmt.Fprintf(&b, " stage %d", e.Stage)
	}
	if e.CurrentMA != 0 {
		fmt.Fprintf(&b, " at %dmA", e.CurrentMA)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}
