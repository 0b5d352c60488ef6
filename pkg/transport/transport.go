// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides the blocking request/response exchange used to
// talk to a Lumidox II device.
//
// A Transport owns exactly one link. Request writes a command frame and
// waits, bounded by the link timeout, for the reply frame. Transports never
// retry; a failed exchange is returned to the caller.
package transport

// Transport is a half-duplex request/response link to one device.
type Transport interface {
	// Request sends frame and returns the device reply. It blocks until a
	// complete reply arrives or the link timeout expires.
	Request(frame []byte) ([]byte, error)

	// Name identifies the link (port name, bridge URL) in logs and errors.
	Name() string

	Close() error
}

// Handler answers command frames in-process. A nil reply means no answer.
// *lumidox.Simulator satisfies Handler.
type Handler interface {
	Handle(frame []byte) []byte
}
