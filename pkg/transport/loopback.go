// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"sync"
)

// Loopback is an in-process Transport that hands each frame to a Handler.
// It backs --simulate and the test suites.
type Loopback struct {
	mu      sync.Mutex
	handler Handler
	name    string
	closed  bool
}

// NewLoopback creates a loopback link named name answering through h
func NewLoopback(name string, h Handler) *Loopback {
	return &Loopback{handler: h, name: name}
}

func (l *Loopback) Name() string {
	return l.name
}

// Request passes frame to the handler. A nil reply is a timeout.
func (l *Loopback) Request(frame []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, &Error{Op: "request", Port: l.name, Kind: ErrUnavailable, Err: errors.New("port closed")}
	}
	reply := l.handler.Handle(frame)
	if reply == nil {
		return nil, timeoutError(l.name)
	}
	return reply, nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
