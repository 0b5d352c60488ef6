// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lumidox

import (
	"errors"
	"fmt"
)

// ErrMalformed is matched by every frame that fails to decode
var ErrMalformed = errors.New("malformed frame")

// ProtocolError describes a frame that did not match its expected shape
type ProtocolError struct {
	Raw    []byte
	Reason string
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed frame %q: %s", e.Raw, e.Reason)
}

// Unwrap lets errors.Is(err, ErrMalformed) match
func (e *ProtocolError) Unwrap() error {
	return ErrMalformed
}

func malformed(raw []byte, format string, args ...interface{}) *ProtocolError {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return &ProtocolError{Raw: cp, Reason: fmt.Sprintf(format, args...)}
}
