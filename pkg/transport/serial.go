// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"go.bug.st/serial"
)

// Port is the subset of serial.Port used by SerialTransport.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

// Opener opens a serial port. Tests replace it with fakes.
type Opener func(name string, mode *serial.Mode) (Port, error)

// OpenSerialPort is the default Opener backed by go.bug.st/serial.
func OpenSerialPort(name string, mode *serial.Mode) (Port, error) {
	return serial.Open(name, mode)
}

// Config holds the parameters for opening a serial link.
type Config struct {
	Port     string
	BaudRate int
	Timeout  time.Duration
}

// SerialTransport is an exclusively owned serial link at one baud rate.
type SerialTransport struct {
	mu      sync.Mutex
	port    Port
	name    string
	baud    int
	timeout time.Duration
}

// Open opens a serial port 8N1 with the given configuration.
func Open(cfg Config) (*SerialTransport, error) {
	return OpenWith(OpenSerialPort, cfg)
}

// OpenWith opens a serial link through opener.
func OpenWith(opener Opener, cfg Config) (*SerialTransport, error) {
	if cfg.Port == "" {
		return nil, classifyOpen(cfg.Port, errors.New("serial port path is required"))
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = lumidox.DefaultBaudRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = lumidox.DefaultTimeout
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := opener(cfg.Port, mode)
	if err != nil {
		return nil, classifyOpen(cfg.Port, err)
	}

	if err := port.SetReadTimeout(cfg.Timeout); err != nil {
		port.Close()
		return nil, classifyOpen(cfg.Port, err)
	}

	return &SerialTransport{
		port:    port,
		name:    cfg.Port,
		baud:    cfg.BaudRate,
		timeout: cfg.Timeout,
	}, nil
}

// Name returns the serial port name
func (t *SerialTransport) Name() string {
	return t.name
}

// BaudRate returns the configured baud rate
func (t *SerialTransport) BaudRate() int {
	return t.baud
}

// Timeout returns the per-request timeout
func (t *SerialTransport) Timeout() time.Duration {
	return t.timeout
}

// Request writes frame and reads until the response end marker, the
// response size cap, or the timeout. Stale input is discarded before the
// write. A partial reply at the deadline is returned as-is for the codec to
// reject; no reply at all is ErrTimeout.
func (t *SerialTransport) Request(frame []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, &Error{Op: "request", Port: t.name, Kind: ErrUnavailable, Err: errors.New("port closed")}
	}

	if err := t.port.ResetInputBuffer(); err != nil {
		return nil, classifyIO("reset", t.name, err)
	}

	n, err := t.port.Write(frame)
	if err != nil {
		return nil, classifyIO("write", t.name, err)
	}
	if n != len(frame) {
		return nil, &Error{Op: "write", Port: t.name, Kind: ErrIO, Err: errors.New("short write")}
	}

	deadline := time.Now().Add(t.timeout)
	reply := make([]byte, 0, lumidox.ResponseSize)
	chunk := make([]byte, lumidox.ResponseSize)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := t.port.SetReadTimeout(remaining); err != nil {
			return nil, classifyIO("read", t.name, err)
		}

		n, err := t.port.Read(chunk)
		if err != nil {
			return nil, classifyIO("read", t.name, err)
		}
		reply = append(reply, chunk[:n]...)

		if i := bytes.IndexByte(reply, lumidox.ResponseEnd); i >= 0 {
			return reply[:i+1], nil
		}
		if len(reply) >= lumidox.MaxResponseSize {
			return reply, nil
		}
	}

	if len(reply) > 0 {
		return reply, nil
	}
	return nil, timeoutError(t.name)
}

// Close releases the port. Closing twice is a no-op.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}
